package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// Is reports whether target is an *AppError with the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// --- Graph errors ---

// DuplicateJob reports a job id declared more than once.
func DuplicateJob(id string) *AppError {
	return &AppError{
		Code: ErrCodeDuplicateJob, Message: fmt.Sprintf("job %q is declared more than once", id),
		Details: map[string]any{"job": id},
	}
}

// UnknownDependency reports a dependency on an undeclared job.
func UnknownDependency(job, dep string) *AppError {
	return &AppError{
		Code: ErrCodeUnknownDependency, Message: fmt.Sprintf("job %q depends on undeclared job %q", job, dep),
		Details: map[string]any{"job": job, "dependency": dep},
	}
}

// CycleDetected reports the jobs left over after a topological sort.
func CycleDetected(residual []string) *AppError {
	jobs := append([]string(nil), residual...)
	sort.Strings(jobs)
	return &AppError{
		Code: ErrCodeCycleDetected, Message: fmt.Sprintf("dependency cycle among jobs: %s", strings.Join(jobs, ", ")),
		Details: map[string]any{"jobs": jobs},
	}
}

// InvalidMatrix reports a malformed matrix on a job.
func InvalidMatrix(job, reason string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidMatrix, Message: fmt.Sprintf("job %q: invalid matrix: %s", job, reason),
		Details: map[string]any{"job": job},
	}
}

// UnknownGate reports a gate that names an undeclared job.
func UnknownGate(gate string) *AppError {
	return &AppError{
		Code: ErrCodeUnknownGate, Message: fmt.Sprintf("gate job %q is not declared", gate),
		Details: map[string]any{"gate": gate},
	}
}

// InvalidGate reports a gate job that other jobs depend on.
func InvalidGate(gate string, dependents []string) *AppError {
	msg := fmt.Sprintf("gate job %q must be terminal but %s depend on it", gate, strings.Join(dependents, ", "))
	return &AppError{
		Code: ErrCodeInvalidGate, Message: msg,
		Details: map[string]any{"gate": gate, "dependents": dependents},
	}
}

// InvalidDefinition reports a structurally invalid pipeline definition.
func InvalidDefinition(reason string) *AppError {
	return &AppError{Code: ErrCodeInvalidDefinition, Message: reason}
}

// --- Execution errors ---

// ExecutorError reports an executor that could not run a step. The tag is a
// short diagnostic such as "timeout" or "canceled".
func ExecutorError(tag string, cause error) *AppError {
	msg := "executor could not run the step"
	if tag != "" {
		msg = fmt.Sprintf("executor could not run the step (%s)", tag)
	}
	return &AppError{
		Code: ErrCodeExecutorError, Message: msg,
		Details: map[string]any{"tag": tag}, Cause: cause,
	}
}

// StepFailed reports a step that ran and exited unsuccessfully.
func StepFailed(step string, exitCode int) *AppError {
	return &AppError{
		Code: ErrCodeStepFailed, Message: fmt.Sprintf("step %q failed with exit code %d", step, exitCode),
		Details: map[string]any{"step": step, "exit_code": exitCode},
	}
}

// Timeout reports an operation that exceeded its deadline.
func Timeout(operation string) *AppError {
	return &AppError{
		Code: ErrCodeTimeout, Message: fmt.Sprintf("%s timed out", operation),
		Details: map[string]any{"operation": operation},
	}
}

// --- Input errors ---

// NotFound creates a new AppError for a resource that was not found.
func NotFound(resource, id string) *AppError {
	details := map[string]any{"resource": resource}
	if id != "" {
		details["id"] = id
	}
	return &AppError{
		Code: ErrCodeNotFound, Message: fmt.Sprintf("%s %q was not found", resource, id), Details: details,
	}
}

// InvalidInput creates a new AppError for invalid input.
func InvalidInput(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidInput, Message: fmt.Sprintf("Invalid input: %s", reason), Details: details,
	}
}

// Validation creates a new AppError for validation errors.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeInvalidInput, Message: message}
}

// InvalidConfig creates a new AppError for a bad configuration value.
func InvalidConfig(key, reason string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidConfig, Message: fmt.Sprintf("invalid configuration %s: %s", key, reason),
		Details: map[string]any{"key": key},
	}
}

// InvalidExpression reports an expression that failed to parse or evaluate.
func InvalidExpression(expr string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeInvalidExpression, Message: fmt.Sprintf("invalid expression %q", expr),
		Details: map[string]any{"expression": expr}, Cause: cause,
	}
}

// Internal creates a new AppError for an unexpected internal error.
func Internal(cause error) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: "an unexpected error occurred", Cause: cause}
}

// --- Inspection helpers ---

// IsAppError checks if an error is an AppError.
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode reports whether err wraps an AppError with the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && stderrors.Is(err, &AppError{Code: code})
}

// IsGraphError reports whether err is a fatal graph error.
func IsGraphError(err error) bool {
	appErr, ok := AsAppError(err)
	return ok && IsGraphCode(appErr.Code)
}

// Wrap converts any error into an AppError, preserving an existing one.
func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}
	return Internal(err)
}

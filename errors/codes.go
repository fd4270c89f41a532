package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Graph errors. Fatal at load time; execution never starts.
const (
	// ErrCodeDuplicateJob indicates two jobs share the same id.
	ErrCodeDuplicateJob ErrorCode = "DUPLICATE_JOB"
	// ErrCodeUnknownDependency indicates a dependency names an undeclared job.
	ErrCodeUnknownDependency ErrorCode = "UNKNOWN_DEPENDENCY"
	// ErrCodeCycleDetected indicates the dependency relation is not acyclic.
	ErrCodeCycleDetected ErrorCode = "CYCLE_DETECTED"
	// ErrCodeInvalidMatrix indicates a malformed matrix declaration.
	ErrCodeInvalidMatrix ErrorCode = "INVALID_MATRIX"
	// ErrCodeUnknownGate indicates the terminal gate names an undeclared job.
	ErrCodeUnknownGate ErrorCode = "UNKNOWN_GATE"
	// ErrCodeInvalidGate indicates the gate job has dependents and so is not terminal.
	ErrCodeInvalidGate ErrorCode = "INVALID_GATE"
	// ErrCodeInvalidDefinition indicates a structurally invalid pipeline definition.
	ErrCodeInvalidDefinition ErrorCode = "INVALID_DEFINITION"
)

// Execution errors. Recorded per step, never retried.
const (
	// ErrCodeExecutorError indicates the executor could not run the step at all.
	ErrCodeExecutorError ErrorCode = "EXECUTOR_ERROR"
	// ErrCodeStepFailed indicates the step ran and reported failure.
	ErrCodeStepFailed ErrorCode = "STEP_FAILED"
	// ErrCodeTimeout indicates a step exceeded its deadline.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
)

// Input errors
const (
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeInvalidConfig indicates the configuration is invalid.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	// ErrCodeInvalidExpression indicates a condition or template failed to parse or evaluate.
	ErrCodeInvalidExpression ErrorCode = "INVALID_EXPRESSION"
	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
)

// Internal errors
const (
	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var graphCodes = map[ErrorCode]bool{
	ErrCodeDuplicateJob:      true,
	ErrCodeUnknownDependency: true,
	ErrCodeCycleDetected:     true,
	ErrCodeInvalidMatrix:     true,
	ErrCodeUnknownGate:       true,
	ErrCodeInvalidGate:       true,
	ErrCodeInvalidDefinition: true,
}

// IsGraphCode returns true if the code describes a rejected pipeline graph.
func IsGraphCode(code ErrorCode) bool {
	return graphCodes[code]
}

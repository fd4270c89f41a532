package main

import (
	"fmt"
	"io"

	"github.com/kbukum/pipegraph/errors"
)

// Exit codes.
const (
	ExitOK         = 0
	ExitFailed     = 1
	ExitDefinition = 2
	ExitInfra      = 3
)

// ExitError carries the process exit code of a failed command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func definitionError(err error) error { return &ExitError{Code: ExitDefinition, Err: err} }

func infraError(err error) error { return &ExitError{Code: ExitInfra, Err: err} }

// exitCode prints err to w and maps it to an exit code.
func exitCode(err error, w io.Writer) int {
	if err == nil {
		return ExitOK
	}
	code := classify(err)
	if exit, ok := err.(*ExitError); ok && exit.Err == nil {
		return code
	}
	fmt.Fprintln(w, "error:", err)
	return code
}

func classify(err error) int {
	if exit, ok := err.(*ExitError); ok {
		return exit.Code
	}
	switch {
	case errors.IsGraphError(err),
		errors.IsCode(err, errors.ErrCodeInvalidInput),
		errors.IsCode(err, errors.ErrCodeInvalidExpression):
		return ExitDefinition
	case errors.IsCode(err, errors.ErrCodeInvalidConfig):
		return ExitInfra
	case errors.IsAppError(err):
		return ExitInfra
	}
	// cobra usage errors: unknown command or flag, wrong argument count
	return ExitDefinition
}

package dag

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/kbukum/pipegraph/errors"
)

// OutcomeKind classifies what an executor observed.
type OutcomeKind string

const (
	// OutcomeSuccess means the step ran and reported success.
	OutcomeSuccess OutcomeKind = "success"
	// OutcomeFailure means the step ran and reported failure (e.g. non-zero exit).
	OutcomeFailure OutcomeKind = "failure"
	// OutcomeExecutorError means the step could not be run at all.
	OutcomeExecutorError OutcomeKind = "executor_error"
)

// Executor error tags.
const (
	TagExecutor        = "executor"
	TagTimeout         = "timeout"
	TagCanceled        = "canceled"
	TagCondition       = "condition"
	TagUnknownExecutor = "unknown_executor"
)

// Outcome is the result of one step execution. ExitCode and Output are diagnostics.
type Outcome struct {
	Kind     OutcomeKind
	ExitCode int
	Output   string
	Err      error
	// Tag is a short diagnostic for executor errors.
	Tag string
}

// Succeeded returns a success outcome.
func Succeeded(output string) Outcome {
	return Outcome{Kind: OutcomeSuccess, Output: output}
}

// Failed returns a failure outcome with the step's exit code.
func Failed(exitCode int, output string) Outcome {
	return Outcome{Kind: OutcomeFailure, ExitCode: exitCode, Output: output}
}

// ExecutorFailed returns an executor error outcome. An empty tag defaults to TagExecutor.
func ExecutorFailed(tag string, err error) Outcome {
	if tag == "" {
		tag = TagExecutor
	}
	return Outcome{Kind: OutcomeExecutorError, ExitCode: -1, Err: errors.ExecutorError(tag, err), Tag: tag}
}

// StepContext is what an executor and a condition may see of the instance
// running the step.
type StepContext struct {
	RunID      string
	JobID      string
	InstanceID string
	Assignment Assignment
	// Prior holds the results of the steps already processed in this instance.
	Prior []StepResult
}

// PriorResult returns the result of an earlier step by name.
func (sc StepContext) PriorResult(name string) (StepResult, bool) {
	for _, r := range sc.Prior {
		if r.Name == name {
			return r, true
		}
	}
	return StepResult{}, false
}

// StepExecutor runs one step. Implementations must be safe for concurrent use
// and should honor ctx.
type StepExecutor interface {
	Execute(ctx context.Context, step StepSpec, sc StepContext) Outcome
}

// ExecutorFunc adapts a function to the StepExecutor interface.
type ExecutorFunc func(ctx context.Context, step StepSpec, sc StepContext) Outcome

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, step StepSpec, sc StepContext) Outcome {
	return f(ctx, step, sc)
}

// WithTimeout bounds every execution of exec by d. A step that outlives the
// deadline is reported as an executor error tagged "timeout", and one whose
// context ends first as "canceled", without waiting for exec to return.
func WithTimeout(exec StepExecutor, d time.Duration) StepExecutor {
	return ExecutorFunc(func(ctx context.Context, step StepSpec, sc StepContext) Outcome {
		return invoke(ctx, exec, step, sc, d)
	})
}

func invoke(ctx context.Context, exec StepExecutor, step StepSpec, sc StepContext, timeout time.Duration) Outcome {
	if err := ctx.Err(); err != nil {
		return ExecutorFailed(TagCanceled, err)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- ExecutorFailed(TagExecutor, errors.Internal(nil).WithDetail("panic", r))
			}
		}()
		done <- exec.Execute(ctx, step, sc)
	}()

	select {
	case out := <-done:
		if out.Kind != OutcomeSuccess && ctx.Err() != nil && out.Kind != OutcomeExecutorError {
			// the executor noticed the cancellation and reported it as a plain failure
			return contextOutcome(ctx)
		}
		return out
	case <-ctx.Done():
		return contextOutcome(ctx)
	}
}

func contextOutcome(ctx context.Context) Outcome {
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ExecutorFailed(TagTimeout, ctx.Err())
	}
	return ExecutorFailed(TagCanceled, ctx.Err())
}

package dag

import (
	"context"
	"sync"
)

// --- test helpers ---

// recordingExecutor records every step it is asked to run and delegates the
// outcome to fn (success when fn is nil).
type recordingExecutor struct {
	mu    sync.Mutex
	calls []string
	fn    func(ctx context.Context, step StepSpec, sc StepContext) Outcome
}

func (e *recordingExecutor) Execute(ctx context.Context, step StepSpec, sc StepContext) Outcome {
	e.mu.Lock()
	e.calls = append(e.calls, sc.InstanceID+"/"+step.Name)
	e.mu.Unlock()
	if e.fn != nil {
		return e.fn(ctx, step, sc)
	}
	return Succeeded("")
}

func (e *recordingExecutor) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func (e *recordingExecutor) CallsFor(instanceID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	prefix := instanceID + "/"
	for _, c := range e.calls {
		if len(c) > len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

// failStep makes any step with the given name fail in the given job.
func failStep(jobID, stepName string) func(context.Context, StepSpec, StepContext) Outcome {
	return func(_ context.Context, step StepSpec, sc StepContext) Outcome {
		if sc.JobID == jobID && step.Name == stepName {
			return Failed(1, "boom")
		}
		return Succeeded("ok")
	}
}

func steps(names ...string) []StepSpec {
	out := make([]StepSpec, len(names))
	for i, n := range names {
		out[i] = StepSpec{Name: n, Run: n}
	}
	return out
}

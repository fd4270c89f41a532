package testutil

import (
	"context"
	"sync"

	"github.com/kbukum/pipegraph/dag"
)

// Call is one recorded step invocation.
type Call struct {
	JobID      string
	InstanceID string
	Step       string
	Assignment dag.Assignment
}

// ScriptedExecutor is a dag.StepExecutor returning preset outcomes. Steps
// with no script succeed. It records every call it receives.
type ScriptedExecutor struct {
	mu      sync.Mutex
	scripts map[string]dag.Outcome
	fn      dag.ExecutorFunc
	calls   []Call
}

var _ dag.StepExecutor = (*ScriptedExecutor)(nil)

// NewScriptedExecutor creates an executor where every step succeeds.
func NewScriptedExecutor() *ScriptedExecutor {
	return &ScriptedExecutor{scripts: make(map[string]dag.Outcome)}
}

// NewExecutorFunc creates a recording executor backed by fn.
func NewExecutorFunc(fn dag.ExecutorFunc) *ScriptedExecutor {
	e := NewScriptedExecutor()
	e.fn = fn
	return e
}

func scriptKey(jobID, step string) string { return jobID + "\x00" + step }

// Script sets the outcome of step in every instance of job.
func (e *ScriptedExecutor) Script(jobID, step string, out dag.Outcome) *ScriptedExecutor {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scripts[scriptKey(jobID, step)] = out
	return e
}

// FailStep makes step fail with exitCode in every instance of job.
func (e *ScriptedExecutor) FailStep(jobID, step string, exitCode int) *ScriptedExecutor {
	return e.Script(jobID, step, dag.Failed(exitCode, ""))
}

// Execute implements dag.StepExecutor.
func (e *ScriptedExecutor) Execute(ctx context.Context, step dag.StepSpec, sc dag.StepContext) dag.Outcome {
	e.mu.Lock()
	e.calls = append(e.calls, Call{
		JobID:      sc.JobID,
		InstanceID: sc.InstanceID,
		Step:       step.Name,
		Assignment: sc.Assignment,
	})
	out, scripted := e.scripts[scriptKey(sc.JobID, step.Name)]
	fn := e.fn
	e.mu.Unlock()

	if scripted {
		return out
	}
	if fn != nil {
		return fn(ctx, step, sc)
	}
	return dag.Succeeded("")
}

// Calls returns a copy of the recorded calls in arrival order.
func (e *ScriptedExecutor) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

// CallsFor counts the calls made for steps of job.
func (e *ScriptedExecutor) CallsFor(jobID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c.JobID == jobID {
			n++
		}
	}
	return n
}

// Ran reports whether step ran in the given instance.
func (e *ScriptedExecutor) Ran(instanceID, step string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.calls {
		if c.InstanceID == instanceID && c.Step == step {
			return true
		}
	}
	return false
}

// Reset clears the recorded calls.
func (e *ScriptedExecutor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = nil
}

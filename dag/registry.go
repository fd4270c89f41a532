package dag

import (
	"context"
	"sort"
	"sync"

	"github.com/kbukum/pipegraph/errors"
)

// Registry routes each step to the executor named by its Uses field. It is
// itself a StepExecutor, so the scheduler only ever sees one.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]StepExecutor
}

var _ StepExecutor = (*Registry)(nil)

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]StepExecutor)}
}

// Register adds an executor under name, replacing any previous one.
func (r *Registry) Register(name string, exec StepExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[name] = exec
}

// Get retrieves an executor by name.
func (r *Registry) Get(name string) (StepExecutor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[name]
	return e, ok
}

// List returns sorted names of all registered executors.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.executors))
	for name := range r.executors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute dispatches step to its executor. An unknown executor is an
// executor error, not a step failure.
func (r *Registry) Execute(ctx context.Context, step StepSpec, sc StepContext) Outcome {
	name := step.Executor()
	exec, ok := r.Get(name)
	if !ok {
		return ExecutorFailed(TagUnknownExecutor, errors.NotFound("executor", name))
	}
	return exec.Execute(ctx, step, sc)
}

package dag

import "context"

// Observer is notified of every instance status change and of the end of the
// run. Calls come from the scheduler's event loop one at a time, so an
// observer needs no locking of its own but must not block.
type Observer interface {
	InstanceChanged(ctx context.Context, runID string, inst JobInstance)
	RunFinished(ctx context.Context, result *RunResult)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are ignored.
type ObserverFuncs struct {
	OnInstance func(ctx context.Context, runID string, inst JobInstance)
	OnFinish   func(ctx context.Context, result *RunResult)
}

// InstanceChanged calls OnInstance.
func (o ObserverFuncs) InstanceChanged(ctx context.Context, runID string, inst JobInstance) {
	if o.OnInstance != nil {
		o.OnInstance(ctx, runID, inst)
	}
}

// RunFinished calls OnFinish.
func (o ObserverFuncs) RunFinished(ctx context.Context, result *RunResult) {
	if o.OnFinish != nil {
		o.OnFinish(ctx, result)
	}
}

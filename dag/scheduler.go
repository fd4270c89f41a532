package dag

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/pipegraph/logger"
	"github.com/kbukum/pipegraph/observability"
)

// Scheduler runs a graph: it expands every job into instances, starts an
// instance once all of its job's dependencies have succeeded, and skips the
// instances of jobs whose dependencies failed.
type Scheduler struct {
	executor        StepExecutor
	maxConcurrency  int
	stepTimeout     time.Duration
	cancelOnFailure bool
	sink            OutputSink
	observers       []Observer
	log             *logger.Logger
	newRunID        func() string
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithMaxConcurrency bounds the number of instances running at once (0 = unbounded).
func WithMaxConcurrency(n int) SchedulerOption {
	return func(s *Scheduler) { s.maxConcurrency = n }
}

// WithStepTimeout bounds every step that does not set its own timeout.
func WithStepTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.stepTimeout = d }
}

// WithCancelOnFailure makes the first failed instance cancel everything still
// running and skip everything not yet started.
func WithCancelOnFailure(enabled bool) SchedulerOption {
	return func(s *Scheduler) { s.cancelOnFailure = enabled }
}

// WithOutputSink hands every step result to sink.
func WithOutputSink(sink OutputSink) SchedulerOption {
	return func(s *Scheduler) { s.sink = sink }
}

// WithObserver adds an observer of instance transitions.
func WithObserver(o Observer) SchedulerOption {
	return func(s *Scheduler) { s.observers = append(s.observers, o) }
}

// WithLogger sets the scheduler's logger.
func WithLogger(l *logger.Logger) SchedulerOption {
	return func(s *Scheduler) { s.log = l }
}

// WithRunID fixes the id of every run instead of generating a UUID.
func WithRunID(id string) SchedulerOption {
	return func(s *Scheduler) { s.newRunID = func() string { return id } }
}

// NewScheduler creates a scheduler that runs steps with exec.
func NewScheduler(exec StepExecutor, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		executor: exec,
		log:      logger.Nop(),
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute loads specs into a graph and runs it. Graph errors are returned
// before any step runs.
func (s *Scheduler) Execute(ctx context.Context, specs []JobSpec, opts ...GraphOption) (*RunResult, error) {
	g, err := Load(specs, opts...)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, g)
}

// Run executes g to completion. Every instance ends succeeded, failed or
// skipped. If ctx ends first, nothing new starts, running instances are
// canceled, and the partial result is returned together with ctx.Err().
func (s *Scheduler) Run(ctx context.Context, g *Graph) (*RunResult, error) {
	runID := s.newRunID()
	ctx = logger.ContextWithRunID(ctx, runID)
	ctx, span := observability.StartSpan(ctx, observability.SpanRun)
	defer span.End()
	if tid := span.SpanContext().TraceID(); tid.IsValid() {
		ctx = logger.ContextWithTraceID(ctx, tid.String())
	}
	observability.SetSpanAttribute(ctx, observability.AttrRunID, runID)
	observability.SetSpanAttribute(ctx, observability.AttrPipeline, g.Name())
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := &run{
		s:           s,
		g:           g,
		id:          runID,
		ctx:         ctx,
		runCtx:      runCtx,
		cancel:      cancel,
		log:         s.log.WithContext(ctx).WithComponent("scheduler"),
		runner:      &Runner{Executor: s.executor, StepTimeout: s.stepTimeout, Sink: s.sink, Logger: s.log.WithContext(ctx).WithComponent("runner")},
		instances:   make(map[string][]*JobInstance, g.Len()),
		remaining:   make(map[string]int, g.Len()),
		pendingDeps: make(map[string]int, g.Len()),
		blockedBy:   make(map[string]string, g.Len()),
		aggregates:  make(map[string]Status, g.Len()),
		done:        make(chan completion),
		started:     time.Now(),
	}
	return r.loop()
}

type completion struct {
	inst   *JobInstance
	report Report
}

// run is the state of one execution. Every field below is owned by the
// goroutine running loop; workers only ever see copies.
type run struct {
	s      *Scheduler
	g      *Graph
	id     string
	ctx    context.Context
	runCtx context.Context
	cancel context.CancelFunc
	log    *logger.Logger
	runner *Runner

	instances   map[string][]*JobInstance
	remaining   map[string]int
	pendingDeps map[string]int
	// blockedBy records the first failed dependency of a job.
	blockedBy  map[string]string
	aggregates map[string]Status

	queue   []*JobInstance
	running int
	done    chan completion

	aborting    bool
	abortReason string
	started     time.Time
}

func (r *run) loop() (*RunResult, error) {
	r.log.Info("pipeline run started", logger.Fields(logger.FieldPipeline, r.g.Name(), "jobs", r.g.Len()))

	for _, id := range r.g.Order() {
		job, _ := r.g.Job(id)
		r.instances[id] = Expand(job)
		r.remaining[id] = len(r.instances[id])
		r.pendingDeps[id] = len(r.g.Dependencies(id))
	}
	for _, id := range r.g.Roots() {
		r.release(id)
	}

	ctxDone := r.ctx.Done()
	for {
		// a completion and cancellation can arrive together; never start
		// new work once the parent context is done
		if ctxDone != nil && r.ctx.Err() != nil {
			ctxDone = nil
			r.abort(fmt.Sprintf("run canceled: %v", r.ctx.Err()))
		}
		r.dispatch()
		if r.running == 0 && len(r.queue) == 0 {
			break
		}

		select {
		case c := <-r.done:
			r.running--
			r.complete(c)
		case <-ctxDone:
			ctxDone = nil
			r.abort(fmt.Sprintf("run canceled: %v", r.ctx.Err()))
		}
	}

	result := r.result()
	observability.SetSpanAttribute(r.ctx, observability.AttrStatus, string(result.Status))
	for _, o := range r.s.observers {
		o.RunFinished(r.ctx, result)
	}
	r.log.Info("pipeline run finished", logger.Fields(
		logger.FieldStatus, string(result.Status),
		logger.FieldDuration, result.Duration().Milliseconds(),
	))

	if err := r.ctx.Err(); err != nil {
		observability.SetSpanError(r.ctx, err)
		return result, err
	}
	return result, nil
}

// release is called once every dependency of job is terminal.
func (r *run) release(jobID string) {
	ready := []string{jobID}
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		job, _ := r.g.Job(id)

		var reason string
		switch {
		case r.aborting:
			reason = r.abortReason
		case r.blockedBy[id] != "" && job.Policy() != RunAlways:
			reason = fmt.Sprintf("dependency %q failed", r.blockedBy[id])
		}

		if reason == "" {
			r.queue = append(r.queue, r.instances[id]...)
			continue
		}
		for _, inst := range r.instances[id] {
			r.skip(inst, reason)
		}
		ready = append(ready, r.jobTerminal(id)...)
	}
}

// jobTerminal records the aggregate of a finished job and returns the
// dependents that became ready.
func (r *run) jobTerminal(jobID string) []string {
	agg := Aggregate(r.instances[jobID])
	r.aggregates[jobID] = agg
	r.log.Info("job finished", logger.Fields(logger.FieldJob, jobID, logger.FieldStatus, string(agg)))

	var ready []string
	for _, dep := range r.g.Dependents(jobID) {
		if agg != StatusSucceeded && r.blockedBy[dep] == "" {
			r.blockedBy[dep] = jobID
		}
		r.pendingDeps[dep]--
		if r.pendingDeps[dep] == 0 {
			ready = append(ready, dep)
		}
	}
	return ready
}

func (r *run) dispatch() {
	for len(r.queue) > 0 && !r.aborting {
		if r.s.maxConcurrency > 0 && r.running >= r.s.maxConcurrency {
			return
		}
		inst := r.queue[0]
		r.queue = r.queue[1:]

		inst.Status = StatusRunning
		inst.StartedAt = time.Now()
		r.notify(inst)
		r.running++

		job, _ := r.g.Job(inst.JobID)
		sc := StepContext{
			RunID:      r.id,
			JobID:      inst.JobID,
			InstanceID: inst.ID,
			Assignment: append(Assignment(nil), inst.Assignment...),
		}
		go func(inst *JobInstance) {
			r.done <- completion{inst: inst, report: r.runner.Run(r.runCtx, job, sc)}
		}(inst)
	}
}

func (r *run) complete(c completion) {
	inst := c.inst
	inst.Status = c.report.Status
	inst.Steps = c.report.Steps
	inst.Err = c.report.Err
	inst.StartedAt = c.report.StartedAt
	inst.FinishedAt = c.report.FinishedAt
	r.notify(inst)

	if inst.Status == StatusFailed && r.s.cancelOnFailure && !r.aborting {
		r.abort(fmt.Sprintf("canceled after %s failed", inst.ID))
	}

	r.remaining[inst.JobID]--
	if r.remaining[inst.JobID] == 0 {
		for _, id := range r.jobTerminal(inst.JobID) {
			r.release(id)
		}
	}
}

// abort stops dispatching, cancels running instances and skips the queue.
func (r *run) abort(reason string) {
	r.aborting = true
	r.abortReason = reason
	r.cancel()
	r.log.Warn("aborting pipeline run", logger.Fields(logger.FieldReason, reason))

	queued := r.queue
	r.queue = nil
	for _, inst := range queued {
		r.skip(inst, reason)
	}
	// settle jobs whose last instances were just skipped
	for _, id := range r.g.Order() {
		if r.remaining[id] == 0 {
			if _, done := r.aggregates[id]; !done && r.pendingDeps[id] == 0 {
				for _, next := range r.jobTerminal(id) {
					r.release(next)
				}
			}
		}
	}
}

func (r *run) skip(inst *JobInstance, reason string) {
	inst.Status = StatusSkipped
	inst.SkipReason = reason
	inst.FinishedAt = time.Now()
	r.remaining[inst.JobID]--
	r.notify(inst)
}

func (r *run) notify(inst *JobInstance) {
	if len(r.s.observers) == 0 {
		return
	}
	snap := inst.snapshot()
	for _, o := range r.s.observers {
		o.InstanceChanged(r.ctx, r.id, snap)
	}
}

func (r *run) result() *RunResult {
	res := &RunResult{
		ID:         r.id,
		Pipeline:   r.g.Name(),
		Gate:       r.g.Gate(),
		Jobs:       make(map[string]Status, len(r.aggregates)),
		StartedAt:  r.started,
		FinishedAt: time.Now(),
	}
	for _, id := range r.g.Order() {
		for _, inst := range r.instances[id] {
			res.Instances = append(res.Instances, inst.snapshot())
		}
		res.Jobs[id] = Aggregate(r.instances[id])
	}
	res.Status = PipelineStatus(r.g, res.Jobs)
	return res
}

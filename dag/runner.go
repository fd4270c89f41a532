package dag

import (
	"context"
	"time"

	"github.com/kbukum/pipegraph/errors"
	"github.com/kbukum/pipegraph/logger"
)

// StepStatus is the recorded outcome of one processed step.
type StepStatus string

const (
	StepSuccess StepStatus = "success"
	// StepSkipped means the step's condition was false; it counts as success.
	StepSkipped StepStatus = "skipped"
	StepFailure StepStatus = "failure"
	StepError   StepStatus = "error"
)

// StepResult records one processed step of an instance.
type StepResult struct {
	Name     string
	Status   StepStatus
	ExitCode int
	Output   string
	Err      error
	Tag      string
	Duration time.Duration
}

// OK reports whether the step lets the instance continue.
func (r StepResult) OK() bool {
	return r.Status == StepSuccess || r.Status == StepSkipped
}

// OutputSink receives the result of every step the runner processes.
type OutputSink interface {
	WriteStep(ctx context.Context, sc StepContext, result StepResult) error
}

// Report is what the runner hands back for one instance.
type Report struct {
	Status     Status
	Steps      []StepResult
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Runner executes the steps of one job instance in order, stopping at the
// first step that does not succeed.
type Runner struct {
	Executor StepExecutor
	// StepTimeout bounds each step unless the step sets its own (0 = none).
	StepTimeout time.Duration
	Sink        OutputSink
	Logger      *logger.Logger
}

// Run executes job's steps for the instance described by sc. The runner keeps
// no reference to the instance; the returned Report carries everything.
func (r *Runner) Run(ctx context.Context, job *JobSpec, sc StepContext) Report {
	log := r.log().WithFields(logger.Fields(logger.FieldJob, job.ID, logger.FieldInstance, sc.InstanceID))
	rep := Report{Status: StatusSucceeded, StartedAt: time.Now()}
	sc.Prior = nil

	for _, step := range job.Steps {
		res := r.runStep(ctx, step, sc)
		rep.Steps = append(rep.Steps, res)
		sc.Prior = rep.Steps

		if r.Sink != nil {
			if err := r.Sink.WriteStep(ctx, sc, res); err != nil {
				log.Warn("failed to write step output", logger.Fields(logger.FieldStep, step.Name, logger.FieldError, err.Error()))
			}
		}

		fields := logger.Fields(logger.FieldStep, step.Name, logger.FieldOutcome, string(res.Status), logger.FieldDuration, res.Duration.Milliseconds())
		if res.OK() {
			log.Debug("step finished", fields)
			continue
		}

		if res.Err != nil {
			fields[logger.FieldError] = res.Err.Error()
		}
		log.Info("step did not succeed, aborting instance", fields)
		rep.Status = StatusFailed
		rep.Err = res.Err
		break
	}

	rep.FinishedAt = time.Now()
	return rep
}

func (r *Runner) runStep(ctx context.Context, step StepSpec, sc StepContext) StepResult {
	res := StepResult{Name: step.Name}

	if step.Condition != nil {
		ok, err := step.Condition.Evaluate(sc)
		if err != nil {
			res.Status = StepError
			res.Tag = TagCondition
			res.ExitCode = -1
			res.Err = errors.ExecutorError(TagCondition, err)
			return res
		}
		if !ok {
			res.Status = StepSkipped
			return res
		}
	}

	timeout := r.StepTimeout
	if step.Timeout > 0 {
		timeout = step.Timeout
	}

	start := time.Now()
	out := invoke(ctx, r.Executor, step, sc, timeout)
	res.Duration = time.Since(start)
	res.ExitCode = out.ExitCode
	res.Output = out.Output

	switch out.Kind {
	case OutcomeSuccess:
		res.Status = StepSuccess
	case OutcomeFailure:
		res.Status = StepFailure
		res.Err = out.Err
		if res.Err == nil {
			res.Err = errors.StepFailed(step.Name, out.ExitCode)
		}
	default:
		res.Status = StepError
		res.Tag = out.Tag
		res.Err = out.Err
		if res.Err == nil {
			res.Err = errors.ExecutorError(out.Tag, nil)
		}
	}
	return res
}

func (r *Runner) log() *logger.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return logger.Nop()
}

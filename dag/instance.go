package dag

import "time"

// Status is the lifecycle state of a job instance, and the aggregate status of
// a job or pipeline.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusSkipped
}

// JobInstance is one matrix variant of a job. Instances are owned by the
// scheduler's event loop; everything handed out is a copy.
type JobInstance struct {
	JobID      string
	ID         string
	Index      int
	Assignment Assignment
	Status     Status

	// Steps holds the result of every processed step, in order.
	Steps      []StepResult
	Err        error
	SkipReason string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the instance ran. Zero for instances that never started.
func (i *JobInstance) Duration() time.Duration {
	if i.StartedAt.IsZero() || i.FinishedAt.IsZero() {
		return 0
	}
	return i.FinishedAt.Sub(i.StartedAt)
}

func (i *JobInstance) snapshot() JobInstance {
	c := *i
	c.Assignment = append(Assignment(nil), i.Assignment...)
	c.Steps = append([]StepResult(nil), i.Steps...)
	return c
}

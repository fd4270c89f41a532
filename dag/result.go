package dag

import "time"

// RunResult is the outcome of one pipeline run.
type RunResult struct {
	ID       string
	Pipeline string
	// Gate is the job that decided Status, or "" when sinks decided it.
	Gate   string
	Status Status
	// Jobs maps each job id to its aggregate status.
	Jobs map[string]Status
	// Instances holds every instance in topological job order, then matrix order.
	Instances  []JobInstance
	StartedAt  time.Time
	FinishedAt time.Time
}

// Succeeded reports whether the pipeline as a whole succeeded.
func (r *RunResult) Succeeded() bool { return r.Status == StatusSucceeded }

// Aggregate returns the aggregate status of one job.
func (r *RunResult) Aggregate(jobID string) Status { return r.Jobs[jobID] }

// InstancesOf returns the instances of one job in matrix order.
func (r *RunResult) InstancesOf(jobID string) []JobInstance {
	var out []JobInstance
	for _, inst := range r.Instances {
		if inst.JobID == jobID {
			out = append(out, inst)
		}
	}
	return out
}

// Instance finds an instance by its display id.
func (r *RunResult) Instance(id string) (JobInstance, bool) {
	for _, inst := range r.Instances {
		if inst.ID == id {
			return inst, true
		}
	}
	return JobInstance{}, false
}

// Counts tallies instances by status.
func (r *RunResult) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, inst := range r.Instances {
		counts[inst.Status]++
	}
	return counts
}

// Duration returns the wall time of the run.
func (r *RunResult) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

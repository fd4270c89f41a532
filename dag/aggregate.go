package dag

// Aggregate folds the statuses of a job's instances into the job's status.
// The job succeeded only if every instance succeeded; a failed or skipped
// instance makes it failed. While any instance is not terminal the job is
// still pending.
func Aggregate(instances []*JobInstance) Status {
	status := StatusSucceeded
	for _, inst := range instances {
		switch inst.Status {
		case StatusSucceeded:
		case StatusFailed, StatusSkipped:
			status = StatusFailed
		default:
			return StatusPending
		}
	}
	return status
}

// PipelineStatus derives the pipeline result from per-job aggregates: the
// gate's aggregate when the graph has a gate, otherwise succeeded only if
// every sink succeeded.
func PipelineStatus(g *Graph, jobs map[string]Status) Status {
	if gate := g.Gate(); gate != "" {
		return terminalOrPending(jobs[gate])
	}
	status := StatusSucceeded
	for _, sink := range g.Sinks() {
		switch s := terminalOrPending(jobs[sink]); s {
		case StatusSucceeded:
		case StatusFailed:
			status = StatusFailed
		default:
			return StatusPending
		}
	}
	return status
}

func terminalOrPending(s Status) Status {
	switch s {
	case StatusSucceeded, StatusFailed:
		return s
	case StatusSkipped:
		return StatusFailed
	default:
		return StatusPending
	}
}

// Package dag is the pipeline engine: a dependency graph of jobs, each
// expanded into a matrix of instances that run their steps in order.
//
// Load validates job declarations into an immutable Graph. Expand turns a job
// into its matrix instances. A Scheduler runs the graph: an instance becomes
// eligible once every dependency of its job has finished and succeeded,
// eligible instances run in parallel up to a concurrency bound, and jobs
// behind a failed dependency are skipped unless they opt in with RunAlways.
// The pipeline's result is its gate job's status when one is set, otherwise
// the conjunction of its sink jobs.
//
// Steps are executed through the StepExecutor interface; the engine never
// looks at what a step does, only at its Outcome.
//
//	g, err := dag.Load(jobs, dag.WithGate("required"))
//	res, err := dag.NewScheduler(exec, dag.WithMaxConcurrency(4)).Run(ctx, g)
//	if !res.Succeeded() { ... }
package dag

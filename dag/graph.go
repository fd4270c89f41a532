package dag

import (
	"fmt"

	"github.com/kbukum/pipegraph/errors"
)

// Graph is a validated, immutable pipeline: the jobs, both directions of the
// dependency relation, and a deterministic topological order.
type Graph struct {
	name         string
	gate         string
	jobs         map[string]*JobSpec
	declared     []string
	order        []string
	levels       [][]string
	dependents   map[string][]string
	dependencies map[string][]string
}

type graphOptions struct {
	name string
	gate string
}

// GraphOption configures Load.
type GraphOption func(*graphOptions)

// WithName sets the pipeline name reported in run results.
func WithName(name string) GraphOption {
	return func(o *graphOptions) { o.name = name }
}

// WithGate designates the terminal gate job whose aggregate status is the
// pipeline's result. Without a gate the result is the conjunction of all sinks.
func WithGate(jobID string) GraphOption {
	return func(o *graphOptions) { o.gate = jobID }
}

// Load validates specs and builds the graph. It rejects empty or duplicate
// job ids, dependencies on undeclared jobs, malformed matrices, an undeclared
// gate and cycles. Every rejection is a graph error (see errors.IsGraphError).
func Load(specs []JobSpec, opts ...GraphOption) (*Graph, error) {
	var o graphOptions
	for _, opt := range opts {
		opt(&o)
	}

	g := &Graph{
		name:         o.name,
		gate:         o.gate,
		jobs:         make(map[string]*JobSpec, len(specs)),
		declared:     make([]string, 0, len(specs)),
		dependents:   make(map[string][]string, len(specs)),
		dependencies: make(map[string][]string, len(specs)),
	}

	for i := range specs {
		id := specs[i].ID
		if id == "" {
			return nil, errors.InvalidDefinition(fmt.Sprintf("job #%d has an empty id", i+1))
		}
		if _, dup := g.jobs[id]; dup {
			return nil, errors.DuplicateJob(id)
		}
		g.jobs[id] = cloneJob(specs[i])
		g.declared = append(g.declared, id)
	}

	for _, id := range g.declared {
		job := g.jobs[id]
		seen := make(map[string]bool, len(job.DependsOn))
		deps := make([]string, 0, len(job.DependsOn))
		for _, dep := range job.DependsOn {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			if dep == id {
				return nil, errors.CycleDetected([]string{id})
			}
			if _, ok := g.jobs[dep]; !ok {
				return nil, errors.UnknownDependency(id, dep)
			}
			deps = append(deps, dep)
		}
		job.DependsOn = deps
		g.dependencies[id] = deps

		if err := job.Matrix.validate(id); err != nil {
			return nil, err
		}
		if job.When != "" && job.When != RunOnSuccess && job.When != RunAlways {
			return nil, errors.InvalidDefinition(fmt.Sprintf("job %q: unknown run policy %q", id, job.When))
		}
	}

	// dependents in declaration order of the dependent job
	for _, id := range g.declared {
		for _, dep := range g.dependencies[id] {
			g.dependents[dep] = append(g.dependents[dep], id)
		}
	}

	if g.gate != "" {
		if _, ok := g.jobs[g.gate]; !ok {
			return nil, errors.UnknownGate(g.gate)
		}
		if deps := g.dependents[g.gate]; len(deps) > 0 {
			return nil, errors.InvalidGate(g.gate, append([]string(nil), deps...))
		}
	}

	if err := g.sort(); err != nil {
		return nil, err
	}
	return g, nil
}

// sort runs Kahn's algorithm. Ties are broken by declaration order; any jobs
// left over are on or behind a cycle.
func (g *Graph) sort() error {
	inDegree := make(map[string]int, len(g.declared))
	for _, id := range g.declared {
		inDegree[id] = len(g.dependencies[id])
	}

	var queue []string
	for _, id := range g.declared {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	level := make(map[string]int, len(g.declared))
	order := make([]string, 0, len(g.declared))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		for _, dep := range g.dependencies[id] {
			if level[dep]+1 > level[id] {
				level[id] = level[dep] + 1
			}
		}
		for _, next := range g.dependents[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(g.declared) {
		var residual []string
		for _, id := range g.declared {
			if inDegree[id] > 0 {
				residual = append(residual, id)
			}
		}
		return errors.CycleDetected(residual).
			WithDetail("processed", len(order)).
			WithDetail("total", len(g.declared))
	}

	g.order = order
	for _, id := range order {
		l := level[id]
		for len(g.levels) <= l {
			g.levels = append(g.levels, nil)
		}
		g.levels[l] = append(g.levels[l], id)
	}
	return nil
}

// Name returns the pipeline name given to Load.
func (g *Graph) Name() string { return g.name }

// Gate returns the terminal gate job id, or "" when none is configured.
func (g *Graph) Gate() string { return g.gate }

// Len returns the number of jobs.
func (g *Graph) Len() int { return len(g.declared) }

// Job returns the job with the given id.
func (g *Graph) Job(id string) (*JobSpec, bool) {
	j, ok := g.jobs[id]
	return j, ok
}

// Jobs returns job ids in declaration order.
func (g *Graph) Jobs() []string { return append([]string(nil), g.declared...) }

// Order returns job ids in topological order.
func (g *Graph) Order() []string { return append([]string(nil), g.order...) }

// Levels groups job ids by dependency depth. Jobs in the same level share no
// dependency path.
func (g *Graph) Levels() [][]string {
	levels := make([][]string, len(g.levels))
	for i, l := range g.levels {
		levels[i] = append([]string(nil), l...)
	}
	return levels
}

// Dependencies returns the jobs id directly depends on.
func (g *Graph) Dependencies(id string) []string {
	return append([]string(nil), g.dependencies[id]...)
}

// Dependents returns the jobs that directly depend on id.
func (g *Graph) Dependents(id string) []string {
	return append([]string(nil), g.dependents[id]...)
}

// Roots returns the jobs with no dependencies, in declaration order.
func (g *Graph) Roots() []string {
	var roots []string
	for _, id := range g.declared {
		if len(g.dependencies[id]) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// Sinks returns the jobs nothing depends on, in declaration order.
func (g *Graph) Sinks() []string {
	var sinks []string
	for _, id := range g.declared {
		if len(g.dependents[id]) == 0 {
			sinks = append(sinks, id)
		}
	}
	return sinks
}

func errInvalidMatrix(jobID, reason string) error {
	return errors.InvalidMatrix(jobID, reason)
}

package testutil

import (
	"testing"

	"github.com/kbukum/pipegraph/dag"
)

// GraphBuilder provides a fluent API for constructing test graphs. Calls
// after Job apply to the most recently added job.
type GraphBuilder struct {
	jobs []dag.JobSpec
	opts []dag.GraphOption
}

// NewGraphBuilder creates a new GraphBuilder.
func NewGraphBuilder() *GraphBuilder {
	return &GraphBuilder{}
}

// Job adds a job whose steps have the given names.
func (b *GraphBuilder) Job(id string, steps ...string) *GraphBuilder {
	spec := dag.JobSpec{ID: id}
	for _, name := range steps {
		spec.Steps = append(spec.Steps, dag.StepSpec{Name: name, Run: name})
	}
	b.jobs = append(b.jobs, spec)
	return b
}

func (b *GraphBuilder) last() *dag.JobSpec {
	if len(b.jobs) == 0 {
		panic("testutil: no job added yet")
	}
	return &b.jobs[len(b.jobs)-1]
}

// DependsOn adds dependencies to the current job.
func (b *GraphBuilder) DependsOn(deps ...string) *GraphBuilder {
	j := b.last()
	j.DependsOn = append(j.DependsOn, deps...)
	return b
}

// Axis adds a matrix axis to the current job.
func (b *GraphBuilder) Axis(name string, values ...string) *GraphBuilder {
	j := b.last()
	j.Matrix = append(j.Matrix, dag.Axis{Name: name, Values: values})
	return b
}

// Step appends a fully specified step to the current job.
func (b *GraphBuilder) Step(step dag.StepSpec) *GraphBuilder {
	j := b.last()
	j.Steps = append(j.Steps, step)
	return b
}

// Always makes the current job run even when a dependency failed.
func (b *GraphBuilder) Always() *GraphBuilder {
	b.last().When = dag.RunAlways
	return b
}

// Gate sets the job deciding the pipeline result.
func (b *GraphBuilder) Gate(id string) *GraphBuilder {
	b.opts = append(b.opts, dag.WithGate(id))
	return b
}

// Name sets the pipeline name.
func (b *GraphBuilder) Name(name string) *GraphBuilder {
	b.opts = append(b.opts, dag.WithName(name))
	return b
}

// Specs returns the job specs built so far.
func (b *GraphBuilder) Specs() []dag.JobSpec {
	return append([]dag.JobSpec(nil), b.jobs...)
}

// Build loads the graph.
func (b *GraphBuilder) Build() (*dag.Graph, error) {
	return dag.Load(b.jobs, b.opts...)
}

// MustBuild loads the graph and fails the test on error.
func (b *GraphBuilder) MustBuild(t testing.TB) *dag.Graph {
	t.Helper()
	g, err := b.Build()
	if err != nil {
		t.Fatalf("building graph: %v", err)
	}
	return g
}

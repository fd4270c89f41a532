package pipeline

import (
	"fmt"
	"path/filepath"

	"github.com/kbukum/pipegraph/dag"
	"github.com/kbukum/pipegraph/errors"
	"github.com/kbukum/pipegraph/expr"
	"github.com/kbukum/pipegraph/logger"
	"github.com/kbukum/pipegraph/validation"
)

// Compiled is a definition ready for the graph loader.
type Compiled struct {
	Name string
	Gate string
	Jobs []dag.JobSpec
}

// GraphOptions returns the graph options carrying the name and gate.
func (c *Compiled) GraphOptions() []dag.GraphOption {
	opts := []dag.GraphOption{dag.WithName(c.Name)}
	if c.Gate != "" {
		opts = append(opts, dag.WithGate(c.Gate))
	}
	return opts
}

// Graph loads the compiled jobs into a validated graph.
func (c *Compiled) Graph() (*dag.Graph, error) {
	return dag.Load(c.Jobs, c.GraphOptions()...)
}

type compileOptions struct {
	executors map[string]bool
	log       *logger.Logger
}

// CompileOption configures Compile.
type CompileOption func(*compileOptions)

// WithExecutors rejects steps whose uses names none of the given executors.
func WithExecutors(names ...string) CompileOption {
	return func(o *compileOptions) {
		o.executors = make(map[string]bool, len(names))
		for _, n := range names {
			o.executors[n] = true
		}
	}
}

// WithLogger sets the logger Build hands to Resolve.
func WithLogger(l *logger.Logger) CompileOption {
	return func(o *compileOptions) { o.log = l }
}

// Compile validates def and turns it into job specs. Conditions and image
// templates are parsed here and may only reference declared matrix axes,
// job.id and steps that come earlier in the same job. Graph-level checks
// (dependencies, cycles, gate) are left to dag.Load.
func Compile(def *Definition, opts ...CompileOption) (*Compiled, error) {
	var o compileOptions
	for _, opt := range opts {
		opt(&o)
	}

	if err := validation.Validate(def); err != nil {
		return nil, errors.InvalidDefinition(fmt.Sprintf("pipeline %q is invalid", def.Name)).WithCause(err)
	}

	out := &Compiled{Name: def.Name, Gate: def.Gate, Jobs: make([]dag.JobSpec, 0, len(def.Jobs))}
	for _, jd := range def.Jobs {
		job, err := compileJob(jd, &o)
		if err != nil {
			return nil, err
		}
		out.Jobs = append(out.Jobs, job)
	}
	return out, nil
}

func compileJob(jd JobDef, o *compileOptions) (dag.JobSpec, error) {
	job := dag.JobSpec{
		ID:        jd.ID,
		DependsOn: append([]string(nil), jd.DependsOn...),
		When:      dag.RunPolicy(jd.When),
	}
	axes := make(map[string]bool, len(jd.Matrix))
	for _, ax := range jd.Matrix {
		axes[ax.Name] = true
		job.Matrix = append(job.Matrix, dag.Axis{Name: ax.Name, Values: append([]string(nil), ax.Values...)})
	}

	earlier := make(map[string]bool, len(jd.Steps))
	for _, sd := range jd.Steps {
		step := dag.StepSpec{
			Name:    sd.Name,
			Uses:    sd.Uses,
			Run:     sd.Run,
			Image:   sd.Image,
			Env:     sd.Env,
			Timeout: sd.Timeout,
		}
		fail := func(format string, args ...any) *errors.AppError {
			return errors.InvalidDefinition(fmt.Sprintf("job %q step %q: ", jd.ID, sd.Name) + fmt.Sprintf(format, args...)).
				WithDetails(map[string]any{"job": jd.ID, "step": sd.Name})
		}

		if o.executors != nil && !o.executors[step.Executor()] {
			return job, fail("unknown executor %q", step.Executor())
		}

		if sd.If != "" {
			cond, err := expr.ParseCondition(sd.If)
			if err != nil {
				return job, fail("invalid condition").WithCause(err)
			}
			if err := checkReferences(cond.References(), axes, earlier); err != nil {
				return job, fail("condition %q: %v", sd.If, err)
			}
			step.Condition = expr.AsCondition(cond)
		}

		if sd.Image != "" {
			tmpl, err := expr.ParseTemplate(sd.Image)
			if err != nil {
				return job, fail("invalid image").WithCause(err)
			}
			if err := checkReferences(tmpl.References(), axes, earlier); err != nil {
				return job, fail("image %q: %v", sd.Image, err)
			}
		}

		job.Steps = append(job.Steps, step)
		earlier[sd.Name] = true
	}
	return job, nil
}

func checkReferences(refs []expr.Reference, axes, earlier map[string]bool) error {
	for _, ref := range refs {
		switch ref.Root {
		case expr.RootMatrix:
			if !axes[ref.Name] {
				return fmt.Errorf("matrix axis %q is not declared", ref.Name)
			}
		case expr.RootJob:
			if ref.Name != "id" {
				return fmt.Errorf("unknown job attribute %q", ref.Name)
			}
		case expr.RootSteps:
			if !earlier[ref.Name] {
				return fmt.Errorf("step %q is not an earlier step of this job", ref.Name)
			}
		default:
			return fmt.Errorf("unknown variable %q", ref.Root)
		}
	}
	return nil
}

// Build loads the definition at path, resolves its includes through a file
// loader searching the file's own directory and then searchPaths, and
// compiles it.
func Build(path string, searchPaths []string, opts ...CompileOption) (*Compiled, error) {
	def, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if len(def.Includes) > 0 {
		var o compileOptions
		for _, opt := range opts {
			opt(&o)
		}
		loader := NewFileLoader(append([]string{filepath.Dir(path)}, searchPaths...)...)
		if def, err = Resolve(def, loader, WithResolveLogger(o.log)); err != nil {
			return nil, err
		}
	}
	return Compile(def, opts...)
}

package dag

import "time"

// RunPolicy decides whether a job runs when one of its dependencies failed.
type RunPolicy string

const (
	// RunOnSuccess runs the job only if every dependency succeeded.
	RunOnSuccess RunPolicy = "success"
	// RunAlways runs the job once every dependency is terminal, whatever its outcome.
	RunAlways RunPolicy = "always"
)

// DefaultExecutor is the executor name used by steps that leave Uses empty.
const DefaultExecutor = "shell"

// JobSpec is the declaration of one job in the pipeline.
type JobSpec struct {
	ID        string
	DependsOn []string
	Matrix    Matrix
	Steps     []StepSpec
	// When defaults to RunOnSuccess.
	When RunPolicy
}

// Policy returns the effective run policy.
func (j *JobSpec) Policy() RunPolicy {
	if j.When == "" {
		return RunOnSuccess
	}
	return j.When
}

// StepSpec is one step of a job. The engine treats Run, Image and Env as
// opaque and hands them to the executor selected by Uses.
type StepSpec struct {
	Name string
	// Condition is evaluated before the step; nil means always run.
	Condition Condition
	Uses      string
	Run       string
	Image     string
	Env       map[string]string
	// Timeout overrides the runner's step timeout when non-zero.
	Timeout time.Duration
}

// Executor returns the executor name for this step.
func (s *StepSpec) Executor() string {
	if s.Uses == "" {
		return DefaultExecutor
	}
	return s.Uses
}

// Condition is a pure predicate deciding whether a step runs. It sees the
// instance's matrix assignment and the results of the steps before it.
type Condition interface {
	Evaluate(sc StepContext) (bool, error)
}

// ConditionFunc adapts a function to the Condition interface.
type ConditionFunc func(sc StepContext) (bool, error)

// Evaluate calls f.
func (f ConditionFunc) Evaluate(sc StepContext) (bool, error) { return f(sc) }

func cloneJob(j JobSpec) *JobSpec {
	c := j
	c.DependsOn = append([]string(nil), j.DependsOn...)
	c.Matrix = make(Matrix, len(j.Matrix))
	for i, ax := range j.Matrix {
		c.Matrix[i] = Axis{Name: ax.Name, Values: append([]string(nil), ax.Values...)}
	}
	c.Steps = make([]StepSpec, len(j.Steps))
	for i, s := range j.Steps {
		cs := s
		if s.Env != nil {
			cs.Env = make(map[string]string, len(s.Env))
			for k, v := range s.Env {
				cs.Env[k] = v
			}
		}
		c.Steps[i] = cs
	}
	return &c
}

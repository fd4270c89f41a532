package expr

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	"github.com/kbukum/pipegraph/dag"
)

// Variable roots.
const (
	RootMatrix = "matrix"
	RootJob    = "job"
	RootSteps  = "steps"
)

// Scope is what an expression can see.
type Scope struct {
	JobID string
	// Matrix maps axis name to the instance's value.
	Matrix map[string]string
	// Steps maps earlier step names to their outcome.
	Steps map[string]string
}

var functions = map[string]function.Function{
	"lower":    stdlib.LowerFunc,
	"upper":    stdlib.UpperFunc,
	"strlen":   stdlib.StrlenFunc,
	"contains": stdlib.ContainsFunc,
}

func (s Scope) evalContext() *hcl.EvalContext {
	matrix := make(map[string]cty.Value, len(s.Matrix))
	for k, v := range s.Matrix {
		matrix[k] = cty.StringVal(v)
	}
	steps := make(map[string]cty.Value, len(s.Steps))
	for name, outcome := range s.Steps {
		steps[name] = cty.ObjectVal(map[string]cty.Value{"outcome": cty.StringVal(outcome)})
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			RootMatrix: cty.ObjectVal(matrix),
			RootJob:    cty.ObjectVal(map[string]cty.Value{"id": cty.StringVal(s.JobID)}),
			RootSteps:  cty.ObjectVal(steps),
		},
		Functions: functions,
	}
}

// ScopeFor builds the scope of the step about to run in sc.
func ScopeFor(sc dag.StepContext) Scope {
	steps := make(map[string]string, len(sc.Prior))
	for _, r := range sc.Prior {
		steps[r.Name] = string(r.Status)
	}
	return Scope{JobID: sc.JobID, Matrix: sc.Assignment.Map(), Steps: steps}
}

// AsCondition adapts c to the engine's step condition.
func AsCondition(c *Condition) dag.Condition {
	return dag.ConditionFunc(func(sc dag.StepContext) (bool, error) {
		return c.Eval(ScopeFor(sc))
	})
}

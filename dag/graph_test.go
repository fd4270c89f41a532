package dag

import (
	"reflect"
	"testing"

	"github.com/kbukum/pipegraph/errors"
)

func job(id string, deps ...string) JobSpec {
	return JobSpec{ID: id, DependsOn: deps, Steps: []StepSpec{{Name: "run", Run: "true"}}}
}

// --- Load tests ---

func TestLoad_Linear(t *testing.T) {
	g, err := Load([]JobSpec{job("c", "b"), job("b", "a"), job("a")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := g.Order(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("expected order [a b c], got %v", got)
	}
	if got := g.Levels(); len(got) != 3 {
		t.Fatalf("expected 3 levels, got %v", got)
	}
}

func TestLoad_Diamond(t *testing.T) {
	g, err := Load([]JobSpec{job("a"), job("b", "a"), job("c", "a"), job("d", "b", "c")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := [][]string{{"a"}, {"b", "c"}, {"d"}}
	if got := g.Levels(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected levels %v, got %v", want, got)
	}
	if got := g.Dependents("a"); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Fatalf("expected dependents [b c], got %v", got)
	}
	if got := g.Dependencies("d"); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Fatalf("expected dependencies [b c], got %v", got)
	}
	if got := g.Roots(); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("expected roots [a], got %v", got)
	}
	if got := g.Sinks(); !reflect.DeepEqual(got, []string{"d"}) {
		t.Fatalf("expected sinks [d], got %v", got)
	}
}

func TestLoad_OrderFollowsDeclarationOnTies(t *testing.T) {
	specs := []JobSpec{job("zeta"), job("alpha"), job("mid", "zeta"), job("beta")}
	for i := 0; i < 20; i++ {
		g, err := Load(specs)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := g.Order(); !reflect.DeepEqual(got, []string{"zeta", "alpha", "beta", "mid"}) {
			t.Fatalf("expected stable order, got %v", got)
		}
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name  string
		specs []JobSpec
		opts  []GraphOption
		code  errors.ErrorCode
	}{
		{"duplicate id", []JobSpec{job("a"), job("a")}, nil, errors.ErrCodeDuplicateJob},
		{"dangling dependency", []JobSpec{job("a", "ghost")}, nil, errors.ErrCodeUnknownDependency},
		{"self dependency", []JobSpec{job("a", "a")}, nil, errors.ErrCodeCycleDetected},
		{"two-node cycle", []JobSpec{job("a", "b"), job("b", "a")}, nil, errors.ErrCodeCycleDetected},
		{"cycle behind root", []JobSpec{job("root"), job("x", "root", "z"), job("y", "x"), job("z", "y")}, nil, errors.ErrCodeCycleDetected},
		{"empty id", []JobSpec{job("")}, nil, errors.ErrCodeInvalidDefinition},
		{"unknown policy", []JobSpec{{ID: "a", When: "sometimes"}}, nil, errors.ErrCodeInvalidDefinition},
		{"unknown gate", []JobSpec{job("a")}, []GraphOption{WithGate("release")}, errors.ErrCodeUnknownGate},
		{"gate with dependent", []JobSpec{job("a"), job("b", "a")}, []GraphOption{WithGate("a")}, errors.ErrCodeInvalidGate},
		{"empty axis", []JobSpec{{ID: "a", Matrix: Matrix{{Name: "os"}}}}, nil, errors.ErrCodeInvalidMatrix},
		{"unnamed axis", []JobSpec{{ID: "a", Matrix: Matrix{{Values: []string{"x"}}}}}, nil, errors.ErrCodeInvalidMatrix},
		{"duplicate axis", []JobSpec{{ID: "a", Matrix: Matrix{{Name: "os", Values: []string{"x"}}, {Name: "os", Values: []string{"y"}}}}}, nil, errors.ErrCodeInvalidMatrix},
		{"duplicate value", []JobSpec{{ID: "a", Matrix: Matrix{{Name: "os", Values: []string{"x", "x"}}}}}, nil, errors.ErrCodeInvalidMatrix},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g, err := Load(tc.specs, tc.opts...)
			if err == nil {
				t.Fatalf("expected error, got graph with order %v", g.Order())
			}
			if !errors.IsGraphError(err) {
				t.Fatalf("expected graph error, got %v", err)
			}
			if !errors.IsCode(err, tc.code) {
				t.Fatalf("expected code %s, got %v", tc.code, err)
			}
		})
	}
}

func TestLoad_CycleReportsResidual(t *testing.T) {
	_, err := Load([]JobSpec{job("ok"), job("a", "c"), job("b", "a"), job("c", "b")})
	appErr, ok := errors.AsAppError(err)
	if !ok {
		t.Fatalf("expected AppError, got %v", err)
	}
	if got := appErr.Details["jobs"]; !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("expected residual [a b c], got %v", got)
	}
}

func TestLoad_CollapsesDuplicateDependencies(t *testing.T) {
	g, err := Load([]JobSpec{job("a"), job("b", "a", "a")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := g.Dependencies("b"); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("expected [a], got %v", got)
	}
}

func TestLoad_IsImmutable(t *testing.T) {
	specs := []JobSpec{
		job("a"),
		{ID: "b", DependsOn: []string{"a"}, Matrix: Matrix{{Name: "os", Values: []string{"linux"}}}},
	}
	g, err := Load(specs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	specs[1].DependsOn[0] = "mutated"
	specs[1].Matrix[0].Values[0] = "mutated"

	b, _ := g.Job("b")
	if b.DependsOn[0] != "a" || b.Matrix[0].Values[0] != "linux" {
		t.Fatalf("graph changed after caller mutated specs: %+v", b)
	}

	order := g.Order()
	order[0] = "mutated"
	if g.Order()[0] != "a" {
		t.Fatal("Order() exposed internal state")
	}
}

func TestLoad_NameAndGate(t *testing.T) {
	g, err := Load([]JobSpec{job("a"), job("gate", "a")}, WithName("ci"), WithGate("gate"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Name() != "ci" || g.Gate() != "gate" {
		t.Fatalf("expected name ci and gate gate, got %q %q", g.Name(), g.Gate())
	}
	if g.Len() != 2 {
		t.Fatalf("expected 2 jobs, got %d", g.Len())
	}
}

func TestLoad_Empty(t *testing.T) {
	g, err := Load(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Len() != 0 || len(g.Sinks()) != 0 {
		t.Fatalf("expected empty graph")
	}
}

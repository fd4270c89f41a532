package dag

import (
	"context"
	"reflect"
	"testing"

	"github.com/kbukum/pipegraph/errors"
)

func named(name string) StepExecutor {
	return ExecutorFunc(func(context.Context, StepSpec, StepContext) Outcome {
		return Succeeded(name)
	})
}

// --- Registry tests ---

func TestRegistry_RoutesByUses(t *testing.T) {
	r := NewRegistry()
	r.Register("shell", named("shell"))
	r.Register("docker", named("docker"))

	tests := []struct {
		step StepSpec
		want string
	}{
		{StepSpec{Name: "a"}, "shell"},
		{StepSpec{Name: "b", Uses: "shell"}, "shell"},
		{StepSpec{Name: "c", Uses: "docker"}, "docker"},
	}
	for _, tt := range tests {
		out := r.Execute(context.Background(), tt.step, StepContext{})
		if out.Output != tt.want {
			t.Errorf("step %s: expected %s executor, got %q", tt.step.Name, tt.want, out.Output)
		}
	}
}

func TestRegistry_UnknownExecutor(t *testing.T) {
	r := NewRegistry()
	out := r.Execute(context.Background(), StepSpec{Name: "x", Uses: "k8s"}, StepContext{})

	if out.Kind != OutcomeExecutorError || out.Tag != TagUnknownExecutor {
		t.Fatalf("expected unknown executor error, got %+v", out)
	}
	if !errors.IsCode(out.Err, errors.ErrCodeNotFound) {
		t.Fatalf("expected not found cause, got %v", out.Err)
	}
}

func TestRegistry_List(t *testing.T) {
	r := NewRegistry()
	r.Register("shell", named("shell"))
	r.Register("docker", named("docker"))
	r.Register("shell", named("shell2"))

	if got := r.List(); !reflect.DeepEqual(got, []string{"docker", "shell"}) {
		t.Fatalf("expected sorted names, got %v", got)
	}
	exec, ok := r.Get("shell")
	if !ok || exec.Execute(context.Background(), StepSpec{}, StepContext{}).Output != "shell2" {
		t.Fatal("expected re-registration to replace the executor")
	}
}

func TestRegistry_UnknownExecutorFailsInstance(t *testing.T) {
	r := NewRegistry()
	r.Register("shell", named("shell"))
	g := mustLoad(t, []JobSpec{{ID: "a", Steps: []StepSpec{{Name: "s", Uses: "nope"}}}})

	res, err := NewScheduler(r).Run(context.Background(), g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	inst := res.InstancesOf("a")[0]
	if inst.Status != StatusFailed || inst.Steps[0].Status != StepError {
		t.Fatalf("expected executor error to fail the instance, got %s %+v", inst.Status, inst.Steps)
	}
}

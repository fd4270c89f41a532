package dag

import (
	"reflect"
	"testing"
)

func TestExpand_CartesianOrder(t *testing.T) {
	j := &JobSpec{ID: "test", Matrix: Matrix{
		{Name: "os", Values: []string{"ubuntu", "macos", "windows"}},
		{Name: "go", Values: []string{"1.22", "1.23"}},
	}}

	instances := Expand(j)
	if len(instances) != 6 {
		t.Fatalf("expected 6 instances, got %d", len(instances))
	}

	want := []string{
		"test (ubuntu, 1.22)", "test (ubuntu, 1.23)",
		"test (macos, 1.22)", "test (macos, 1.23)",
		"test (windows, 1.22)", "test (windows, 1.23)",
	}
	seen := make(map[string]bool)
	for i, inst := range instances {
		if inst.ID != want[i] {
			t.Errorf("instance %d: expected %q, got %q", i, want[i], inst.ID)
		}
		if inst.Index != i {
			t.Errorf("instance %d: expected index %d, got %d", i, i, inst.Index)
		}
		if inst.Status != StatusPending {
			t.Errorf("instance %d: expected pending, got %s", i, inst.Status)
		}
		key := inst.Assignment.String()
		if seen[key] {
			t.Errorf("duplicate assignment %q", key)
		}
		seen[key] = true
	}
}

func TestExpand_Repeatable(t *testing.T) {
	j := &JobSpec{ID: "build", Matrix: Matrix{
		{Name: "arch", Values: []string{"amd64", "arm64"}},
		{Name: "os", Values: []string{"linux", "darwin"}},
		{Name: "cgo", Values: []string{"0", "1"}},
	}}
	first := Expand(j)
	for i := 0; i < 10; i++ {
		again := Expand(j)
		for k := range first {
			if !reflect.DeepEqual(first[k].Assignment, again[k].Assignment) {
				t.Fatalf("expansion %d differs at %d: %v vs %v", i, k, first[k].Assignment, again[k].Assignment)
			}
		}
	}
	if len(first) != j.Matrix.Size() {
		t.Fatalf("expected %d instances, got %d", j.Matrix.Size(), len(first))
	}
}

func TestExpand_NoAxes(t *testing.T) {
	instances := Expand(&JobSpec{ID: "lint"})
	if len(instances) != 1 {
		t.Fatalf("expected 1 instance, got %d", len(instances))
	}
	if len(instances[0].Assignment) != 0 {
		t.Fatalf("expected empty assignment, got %v", instances[0].Assignment)
	}
	if instances[0].ID != "lint" {
		t.Fatalf("expected id lint, got %q", instances[0].ID)
	}
}

func TestAssignment_Helpers(t *testing.T) {
	a := Assignment{{Axis: "os", Value: "ubuntu"}, {Axis: "go", Value: "1.22"}}

	if v, ok := a.Get("go"); !ok || v != "1.22" {
		t.Fatalf("expected go=1.22, got %q (ok=%v)", v, ok)
	}
	if _, ok := a.Get("arch"); ok {
		t.Fatal("expected missing axis")
	}
	if got := a.Map(); !reflect.DeepEqual(got, map[string]string{"os": "ubuntu", "go": "1.22"}) {
		t.Fatalf("unexpected map %v", got)
	}
	if got := a.String(); got != "ubuntu, 1.22" {
		t.Fatalf("unexpected string %q", got)
	}
}

func TestMatrix_NamesAndSize(t *testing.T) {
	m := Matrix{{Name: "a", Values: []string{"1", "2"}}, {Name: "b", Values: []string{"x", "y", "z"}}}
	if m.Size() != 6 {
		t.Fatalf("expected size 6, got %d", m.Size())
	}
	if got := m.Names(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("unexpected names %v", got)
	}
	if (Matrix{}).Size() != 1 {
		t.Fatal("expected empty matrix to have size 1")
	}
}

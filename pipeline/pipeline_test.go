package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/kbukum/pipegraph/dag"
	"github.com/kbukum/pipegraph/errors"
	"github.com/kbukum/pipegraph/logger"
)

const ciYAML = `
name: ci
gate: required
jobs:
  - id: lint
    steps:
      - name: vet
        run: go vet ./...
  - id: test
    depends_on: [lint]
    matrix:
      os: [ubuntu, macos, windows]
      go: [1.22, "1.23"]
    steps:
      - name: unit
        run: go test ./...
        timeout: 5m
      - name: windows-only
        if: matrix.os == "windows"
        run: ./scripts/win.ps1
      - name: in-container
        uses: docker
        image: golang:${matrix.go}
        run: go build ./...
        env:
          CGO_ENABLED: "0"
  - id: required
    depends_on: [lint, test]
    when: always
    steps: [{ name: done, run: "true" }]
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// memoryLoader is a test helper for in-memory pipeline loading.
type memoryLoader struct {
	pipelines map[string]*Definition
}

func (m *memoryLoader) Load(name string) (*Definition, error) {
	p, ok := m.pipelines[name]
	if !ok {
		return nil, fmt.Errorf("pipeline %q not found", name)
	}
	return p, nil
}

func jobIDs(jobs []JobDef) []string {
	ids := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	return ids
}

func stepJob(id string, deps ...string) JobDef {
	return JobDef{ID: id, DependsOn: deps, Steps: []StepDef{{Name: "run", Run: "true"}}}
}

// --- Parse tests ---

func TestParse_Full(t *testing.T) {
	def, err := Parse([]byte(ciYAML), "ci.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def.Name != "ci" || def.Gate != "required" || def.Source != "ci.yaml" {
		t.Fatalf("unexpected header: %+v", def)
	}
	if !reflect.DeepEqual(jobIDs(def.Jobs), []string{"lint", "test", "required"}) {
		t.Fatalf("unexpected jobs %v", jobIDs(def.Jobs))
	}

	test := def.Jobs[1]
	want := Matrix{
		{Name: "os", Values: []string{"ubuntu", "macos", "windows"}},
		{Name: "go", Values: []string{"1.22", "1.23"}},
	}
	if !reflect.DeepEqual(test.Matrix, want) {
		t.Fatalf("expected axes in written order %v, got %v", want, test.Matrix)
	}
	if test.Steps[0].Timeout != 5*time.Minute {
		t.Errorf("expected 5m timeout, got %s", test.Steps[0].Timeout)
	}
	if test.Steps[2].Env["CGO_ENABLED"] != "0" {
		t.Errorf("expected env to be decoded, got %v", test.Steps[2].Env)
	}
	if def.Jobs[2].When != "always" {
		t.Errorf("expected when=always, got %q", def.Jobs[2].When)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", ""},
		{"unknown key", "name: x\njobs:\n  - id: a\n    depend_on: [b]\n"},
		{"matrix not a mapping", "name: x\njobs:\n  - id: a\n    matrix: [1, 2]\n"},
		{"axis not a list", "name: x\njobs:\n  - id: a\n    matrix:\n      os: linux\n"},
		{"bad yaml", "name: [x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), "test.yaml")
			if !errors.IsCode(err, errors.ErrCodeInvalidDefinition) {
				t.Fatalf("expected INVALID_DEFINITION, got %v", err)
			}
		})
	}
}

func TestMatrix_MarshalKeepsOrder(t *testing.T) {
	m := Matrix{{Name: "z", Values: []string{"1"}}, {Name: "a", Values: []string{"2", "3"}}}
	node, err := m.MarshalYAML()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var back Matrix
	if err := back.UnmarshalYAML(node.(*yaml.Node)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(back, m) {
		t.Fatalf("expected %v, got %v", m, back)
	}
}

// --- Loader tests ---

func TestLoadFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "ci.yaml", ciYAML)
	def, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def.Source != path {
		t.Fatalf("expected source %q, got %q", path, def.Source)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); !errors.IsCode(err, errors.ErrCodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestFileLoader_Load(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lint.yml", "name: lint\njobs:\n  - id: lint\n    steps: [{name: vet, run: go vet}]\n")
	writeFile(t, dir, "nested/deep/release.yaml", "name: release\njobs:\n  - id: ship\n    steps: [{name: push, run: make push}]\n")

	loader := NewFileLoader(t.TempDir(), dir)
	for _, name := range []string{"lint", "release"} {
		def, err := loader.Load(name)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if def.Name != name {
			t.Fatalf("expected %q, got %q", name, def.Name)
		}
	}
}

func TestFileLoader_NotFound(t *testing.T) {
	_, err := NewFileLoader(t.TempDir()).Load("nonexistent")
	if !errors.IsCode(err, errors.ErrCodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

// --- Resolve tests ---

func TestResolve_Includes(t *testing.T) {
	loader := &memoryLoader{pipelines: map[string]*Definition{
		"shared": {Name: "shared", Jobs: []JobDef{stepJob("lint"), stepJob("vet")}},
	}}
	root := &Definition{Name: "ci", Gate: "test", Includes: []string{"shared"}, Jobs: []JobDef{stepJob("test", "lint")}}

	out, err := Resolve(root, loader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(jobIDs(out.Jobs), []string{"lint", "vet", "test"}) {
		t.Fatalf("expected included jobs first, got %v", jobIDs(out.Jobs))
	}
	if out.Name != "ci" || out.Gate != "test" || out.Includes != nil {
		t.Fatalf("expected root header without includes, got %+v", out)
	}
	if len(root.Jobs) != 1 {
		t.Fatal("expected the input definition to be left untouched")
	}
}

func TestResolve_NestedAndDiamond(t *testing.T) {
	loader := &memoryLoader{pipelines: map[string]*Definition{
		"base":  {Name: "base", Jobs: []JobDef{stepJob("setup")}},
		"left":  {Name: "left", Includes: []string{"base"}, Jobs: []JobDef{stepJob("left", "setup")}},
		"right": {Name: "right", Includes: []string{"base"}, Jobs: []JobDef{stepJob("right", "setup")}},
	}}
	root := &Definition{Name: "main", Includes: []string{"left", "right"}}

	out, err := Resolve(root, loader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(jobIDs(out.Jobs), []string{"setup", "left", "right"}) {
		t.Fatalf("expected shared job merged once, got %v", jobIDs(out.Jobs))
	}
}

func TestResolve_FirstDefinitionWins(t *testing.T) {
	first := stepJob("lint")
	first.Steps[0].Run = "from-include"
	loader := &memoryLoader{pipelines: map[string]*Definition{
		"shared": {Name: "shared", Jobs: []JobDef{first}},
	}}
	override := stepJob("lint")
	override.Steps[0].Run = "from-root"
	root := &Definition{Name: "ci", Includes: []string{"shared"}, Jobs: []JobDef{override}}

	var buf bytes.Buffer
	log := logger.NewWithWriter(&logger.Config{Level: "warn", Format: "json"}, "test", &buf)
	out, err := Resolve(root, loader, WithResolveLogger(log))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Jobs) != 1 || out.Jobs[0].Steps[0].Run != "from-include" {
		t.Fatalf("expected the included definition to win, got %+v", out.Jobs)
	}

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected one warning, got %q: %v", buf.String(), err)
	}
	if entry["level"] != "warn" || entry[logger.FieldJob] != "lint" {
		t.Fatalf("expected a warning naming lint, got %v", entry)
	}
	if entry["kept_from"] != "shared" || entry["dropped_from"] != "ci" {
		t.Fatalf("expected kept_from shared and dropped_from ci, got %v", entry)
	}
}

func TestResolve_KeepsDuplicatesWithinAFile(t *testing.T) {
	root := &Definition{Name: "ci", Jobs: []JobDef{stepJob("a"), stepJob("a")}}
	out, err := Resolve(root, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	compiled, err := Compile(out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := compiled.Graph(); !errors.IsCode(err, errors.ErrCodeDuplicateJob) {
		t.Fatalf("expected DUPLICATE_JOB from the graph loader, got %v", err)
	}
}

func TestResolve_CircularInclude(t *testing.T) {
	loader := &memoryLoader{pipelines: map[string]*Definition{
		"alpha": {Name: "alpha", Includes: []string{"beta"}, Jobs: []JobDef{stepJob("a")}},
		"beta":  {Name: "beta", Includes: []string{"alpha"}, Jobs: []JobDef{stepJob("b")}},
	}}
	_, err := Resolve(loader.pipelines["alpha"], loader)
	if !errors.IsCode(err, errors.ErrCodeInvalidDefinition) {
		t.Fatalf("expected circular include error, got %v", err)
	}
}

func TestResolve_MissingInclude(t *testing.T) {
	root := &Definition{Name: "ci", Includes: []string{"ghost"}}
	if _, err := Resolve(root, &memoryLoader{}); err == nil {
		t.Fatal("expected error for a missing include")
	}
	if _, err := Resolve(root, nil); err == nil {
		t.Fatal("expected error when includes have no loader")
	}
}

// --- Compile tests ---

func TestCompile_Full(t *testing.T) {
	def, err := Parse([]byte(ciYAML), "ci.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	compiled, err := Compile(def, WithExecutors("shell", "docker"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if compiled.Name != "ci" || compiled.Gate != "required" || len(compiled.Jobs) != 3 {
		t.Fatalf("unexpected compiled pipeline %+v", compiled)
	}

	test := compiled.Jobs[1]
	if test.Matrix.Size() != 6 || test.Matrix[0].Name != "os" {
		t.Fatalf("expected 3x2 matrix with os first, got %+v", test.Matrix)
	}
	if test.Steps[1].Condition == nil || test.Steps[0].Condition != nil {
		t.Fatal("expected only the windows-only step to carry a condition")
	}
	if test.Steps[2].Executor() != "docker" || test.Steps[2].Image != "golang:${matrix.go}" {
		t.Fatalf("unexpected docker step %+v", test.Steps[2])
	}
	if compiled.Jobs[2].Policy() != dag.RunAlways {
		t.Fatalf("expected always policy, got %s", compiled.Jobs[2].Policy())
	}

	g, err := compiled.Graph()
	if err != nil {
		t.Fatalf("unexpected graph error: %v", err)
	}
	if g.Name() != "ci" || g.Gate() != "required" {
		t.Fatalf("expected name and gate on the graph, got %q %q", g.Name(), g.Gate())
	}
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		job  JobDef
		opts []CompileOption
	}{
		{"missing id", JobDef{Steps: []StepDef{{Name: "s", Run: "x"}}}, nil},
		{"bad id", JobDef{ID: "has space", Steps: []StepDef{{Name: "s", Run: "x"}}}, nil},
		{"missing run", JobDef{ID: "a", Steps: []StepDef{{Name: "s"}}}, nil},
		{"duplicate step", JobDef{ID: "a", Steps: []StepDef{{Name: "s", Run: "x"}, {Name: "s", Run: "y"}}}, nil},
		{"bad when", JobDef{ID: "a", When: "never", Steps: []StepDef{{Name: "s", Run: "x"}}}, nil},
		{"empty axis", JobDef{ID: "a", Matrix: Matrix{{Name: "os"}}, Steps: []StepDef{{Name: "s", Run: "x"}}}, nil},
		{"docker without image", JobDef{ID: "a", Steps: []StepDef{{Name: "s", Uses: "docker", Run: "x"}}}, nil},
		{"condition syntax", JobDef{ID: "a", Steps: []StepDef{{Name: "s", If: "matrix.os ==", Run: "x"}}}, nil},
		{"undeclared axis", JobDef{ID: "a", Steps: []StepDef{{Name: "s", If: `matrix.os == "linux"`, Run: "x"}}}, nil},
		{"later step", JobDef{ID: "a", Steps: []StepDef{
			{Name: "s", If: `steps.t.outcome == "success"`, Run: "x"},
			{Name: "t", Run: "y"},
		}}, nil},
		{"unknown root", JobDef{ID: "a", Steps: []StepDef{{Name: "s", If: `env.CI == "true"`, Run: "x"}}}, nil},
		{"image axis", JobDef{ID: "a", Steps: []StepDef{{Name: "s", Uses: "docker", Image: "golang:${matrix.go}", Run: "x"}}}, nil},
		{"unknown executor", JobDef{ID: "a", Steps: []StepDef{{Name: "s", Uses: "k8s", Run: "x"}}}, []CompileOption{WithExecutors("shell")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := &Definition{Name: "ci", Jobs: []JobDef{tt.job}}
			_, err := Compile(def, tt.opts...)
			if !errors.IsCode(err, errors.ErrCodeInvalidDefinition) {
				t.Fatalf("expected INVALID_DEFINITION, got %v", err)
			}
		})
	}
}

func TestCompile_NoJobs(t *testing.T) {
	if _, err := Compile(&Definition{Name: "ci"}); err == nil {
		t.Fatal("expected error for a pipeline without jobs")
	}
}

func TestBuild_WithIncludes(t *testing.T) {
	dir := t.TempDir()
	shared := t.TempDir()
	writeFile(t, shared, "shared-lint.yaml", "name: shared-lint\njobs:\n  - id: lint\n    steps: [{name: vet, run: go vet}]\n")
	path := writeFile(t, dir, "ci.yaml", "name: ci\nincludes: [shared-lint]\njobs:\n  - id: test\n    depends_on: [lint]\n    steps: [{name: unit, run: go test}]\n")

	compiled, err := Build(path, []string{shared})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(compiled.Jobs) != 2 || compiled.Jobs[0].ID != "lint" {
		t.Fatalf("expected lint merged before test, got %+v", compiled.Jobs)
	}
}

// --- end to end ---

func TestCompiledConditionRunsOnlyOnWindows(t *testing.T) {
	def, err := Parse([]byte(`
name: matrix
jobs:
  - id: test
    matrix:
      os: [ubuntu, macos, windows]
    steps:
      - name: unit
        run: go test ./...
      - name: win
        if: matrix.os == "windows" && steps.unit.outcome == "success"
        run: ./win.ps1
`), "matrix.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	compiled, err := Compile(def)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	g, err := compiled.Graph()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var ran []string
	exec := dag.ExecutorFunc(func(_ context.Context, step dag.StepSpec, sc dag.StepContext) dag.Outcome {
		if step.Name == "win" {
			ran = append(ran, sc.InstanceID)
		}
		return dag.Succeeded("")
	})
	res, err := dag.NewScheduler(exec, dag.WithMaxConcurrency(1)).Run(context.Background(), g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Succeeded() {
		t.Fatalf("expected success, got %s", res.Status)
	}
	if !reflect.DeepEqual(ran, []string{"test (windows)"}) {
		t.Fatalf("expected win to run only on windows, got %v", ran)
	}
}

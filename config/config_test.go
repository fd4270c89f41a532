package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/kbukum/pipegraph/errors"
)

type mockFS struct {
	files map[string]bool
	home  string
}

func (m *mockFS) Exists(path string) bool    { return m.files[path] }
func (m *mockFS) LoadEnv(string) error        { return nil }
func (m *mockFS) HomeDir() (string, error)    { return m.home, nil }

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipegraph.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// --- Defaults and validation tests ---

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Engine.MaxConcurrency != 0 {
		t.Fatalf("expected unbounded concurrency, got %d", cfg.Engine.MaxConcurrency)
	}
	if !reflect.DeepEqual(cfg.Engine.Shell.Shell, []string{"sh", "-c"}) {
		t.Fatalf("expected sh -c, got %v", cfg.Engine.Shell.Shell)
	}
	if cfg.Docker.PullPolicy != "missing" {
		t.Fatalf("expected pull policy missing, got %q", cfg.Docker.PullPolicy)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected info level, got %q", cfg.Logging.Level)
	}
	if cfg.LogStore.Enabled() {
		t.Fatalf("expected log store disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative concurrency", func(c *Config) { c.Engine.MaxConcurrency = -1 }},
		{"negative timeout", func(c *Config) { c.Engine.StepTimeout = -time.Second }},
		{"empty search path", func(c *Config) { c.Engine.SearchPaths = []string{""} }},
		{"pull policy", func(c *Config) { c.Docker.PullPolicy = "sometimes" }},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"docker memory", func(c *Config) { c.Docker.Memory = "plenty" }},
		{"sample rate", func(c *Config) { c.Telemetry.SampleRate = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !errors.IsCode(err, errors.ErrCodeInvalidConfig) {
				t.Fatalf("expected INVALID_CONFIG, got %v", err)
			}
		})
	}
}

// --- Load tests ---

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, `
engine:
  max_concurrency: 3
  step_timeout: 90s
  cancel_on_failure: true
  search_paths: [ci, shared]
  shell:
    shell: [bash, -eo, pipefail, -c]
docker:
  pull_policy: never
  max_containers: 2
log_store:
  dir: .pipegraph/logs
logging:
  level: debug
  format: json
`)
	cfg, err := Load(WithConfigFile(path))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Engine.MaxConcurrency != 3 {
		t.Fatalf("expected max_concurrency 3, got %d", cfg.Engine.MaxConcurrency)
	}
	if cfg.Engine.StepTimeout != 90*time.Second {
		t.Fatalf("expected 90s step timeout, got %s", cfg.Engine.StepTimeout)
	}
	if !cfg.Engine.CancelOnFailure {
		t.Fatalf("expected cancel_on_failure")
	}
	if !reflect.DeepEqual(cfg.Engine.SearchPaths, []string{"ci", "shared"}) {
		t.Fatalf("unexpected search paths %v", cfg.Engine.SearchPaths)
	}
	if len(cfg.Engine.Shell.Shell) != 4 || cfg.Engine.Shell.Shell[0] != "bash" {
		t.Fatalf("unexpected shell %v", cfg.Engine.Shell.Shell)
	}
	if cfg.Docker.PullPolicy != "never" || cfg.Docker.MaxContainers != 2 {
		t.Fatalf("unexpected docker config %+v", cfg.Docker)
	}
	if cfg.LogStore.Dir != ".pipegraph/logs" {
		t.Fatalf("unexpected log dir %q", cfg.LogStore.Dir)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected logging %+v", cfg.Logging)
	}
	if cfg.Engine.Shell.GracePeriod == 0 {
		t.Fatalf("expected defaults applied after load")
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "engine:\n  max_concurrency: 3\n")
	t.Setenv("PIPEGRAPH_ENGINE_MAX_CONCURRENCY", "8")
	t.Setenv("PIPEGRAPH_DOCKER_PULL_POLICY", "always")
	t.Setenv("PIPEGRAPH_LOG_STORE_DIR", "/tmp/logs")

	cfg, err := Load(WithConfigFile(path))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Engine.MaxConcurrency != 8 {
		t.Fatalf("expected env override 8, got %d", cfg.Engine.MaxConcurrency)
	}
	if cfg.Docker.PullPolicy != "always" {
		t.Fatalf("expected pull policy always, got %q", cfg.Docker.PullPolicy)
	}
	if cfg.LogStore.Dir != "/tmp/logs" {
		t.Fatalf("expected log dir from env, got %q", cfg.LogStore.Dir)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("PIPEGRAPH_ENGINE_CANCEL_ON_FAILURE=true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("PIPEGRAPH_ENGINE_CANCEL_ON_FAILURE") })

	cfg, err := Load(WithConfigFile(writeConfig(t, "{}\n")), WithEnvFile(envPath))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.Engine.CancelOnFailure {
		t.Fatalf("expected cancel_on_failure from .env")
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(WithConfigFile("/nonexistent/pipegraph.yml"))
	if !errors.IsCode(err, errors.ErrCodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	_, err := Load(WithConfigFile(writeConfig(t, "engine: [unclosed\n")))
	if !errors.IsCode(err, errors.ErrCodeInvalidConfig) {
		t.Fatalf("expected INVALID_CONFIG, got %v", err)
	}
}

func TestLoad_InvalidValue(t *testing.T) {
	_, err := Load(WithConfigFile(writeConfig(t, "engine:\n  max_concurrency: -2\n")))
	if !errors.IsCode(err, errors.ErrCodeInvalidConfig) {
		t.Fatalf("expected INVALID_CONFIG, got %v", err)
	}
}

func TestLoad_NoFiles(t *testing.T) {
	cfg, err := Load(WithFileSystem(&mockFS{files: map[string]bool{}}))
	if err != nil {
		t.Fatalf("expected defaults without files, got %v", err)
	}
	if cfg.Docker.Host == "" {
		t.Fatalf("expected defaults applied")
	}
}

// --- Resolver tests ---

func TestResolver_SearchOrder(t *testing.T) {
	fs := &mockFS{files: map[string]bool{
		"./config/pipegraph.yml": true,
		"./pipegraph.yaml":       true,
		"./.env":                 true,
	}}
	files := (&Resolver{FileSystem: fs}).ResolveFiles(LoaderConfig{})
	if files.ConfigFile != "./pipegraph.yaml" {
		t.Fatalf("expected ./pipegraph.yaml, got %q", files.ConfigFile)
	}
	if files.EnvFile != "./.env" {
		t.Fatalf("expected ./.env, got %q", files.EnvFile)
	}
}

func TestResolver_HomeConfig(t *testing.T) {
	home := "/home/ci"
	fs := &mockFS{home: home, files: map[string]bool{
		filepath.Join(home, ".config", "pipegraph", "config.yml"): true,
	}}
	files := (&Resolver{FileSystem: fs}).ResolveFiles(LoaderConfig{})
	if files.ConfigFile != filepath.Join(home, ".config", "pipegraph", "config.yml") {
		t.Fatalf("expected home config, got %q", files.ConfigFile)
	}
}

func TestResolver_ExplicitPathsWin(t *testing.T) {
	fs := &mockFS{files: map[string]bool{"./pipegraph.yml": true}}
	files := (&Resolver{FileSystem: fs}).ResolveFiles(LoaderConfig{ConfigFile: "ci.yml", EnvFile: "ci.env"})
	if files.ConfigFile != "ci.yml" || files.EnvFile != "ci.env" {
		t.Fatalf("expected explicit paths, got %+v", files)
	}
}

func TestEnvKeyVariants(t *testing.T) {
	got := envKeyVariants("LOG_STORE_DIR")
	want := map[string]bool{"log_store_dir": true, "log.store.dir": true, "log.store_dir": true, "log_store.dir": true}
	if len(got) != len(want) {
		t.Fatalf("expected %d variants, got %v", len(want), got)
	}
	for _, v := range got {
		if !want[v] {
			t.Fatalf("unexpected variant %q in %v", v, got)
		}
	}
}

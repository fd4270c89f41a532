package process

import (
	"context"
	stderrors "errors"
	"sort"
	"strings"
	"time"

	"github.com/kbukum/pipegraph/dag"
	"github.com/kbukum/pipegraph/logger"
)

// Environment variables exported to every step.
const (
	EnvRunID     = "PIPEGRAPH_RUN_ID"
	EnvJob       = "PIPEGRAPH_JOB"
	EnvInstance  = "PIPEGRAPH_INSTANCE"
	EnvStep      = "PIPEGRAPH_STEP"
	EnvMatrixPfx = "MATRIX_"
)

// Config configures the shell executor.
type Config struct {
	// Shell is the interpreter and its flags; the step's run text is appended.
	Shell []string `yaml:"shell,omitempty" mapstructure:"shell"`
	// Dir is the working directory of every step.
	Dir string `yaml:"dir,omitempty" mapstructure:"dir"`
	// GracePeriod is the default grace period for SIGTERM→SIGKILL.
	GracePeriod time.Duration `yaml:"grace_period,omitempty" mapstructure:"grace_period"`
	// MaxOutputBytes caps the output kept on the step result; the tail is kept.
	MaxOutputBytes int `yaml:"max_output_bytes,omitempty" mapstructure:"max_output_bytes"`
	// StreamOutput logs every output line while the step runs.
	StreamOutput bool `yaml:"stream_output,omitempty" mapstructure:"stream_output"`
}

// ApplyDefaults fills in unset fields.
func (c *Config) ApplyDefaults() {
	if len(c.Shell) == 0 {
		c.Shell = []string{"sh", "-c"}
	}
	if c.GracePeriod == 0 {
		c.GracePeriod = 5 * time.Second
	}
	if c.MaxOutputBytes == 0 {
		c.MaxOutputBytes = 64 * 1024
	}
}

// ShellExecutor runs steps as shell commands on the local machine.
type ShellExecutor struct {
	config Config
	log    *logger.Logger
}

var _ dag.StepExecutor = (*ShellExecutor)(nil)

// NewShellExecutor creates a shell executor, applying defaults to cfg.
func NewShellExecutor(cfg Config, log *logger.Logger) *ShellExecutor {
	cfg.ApplyDefaults()
	if log == nil {
		log = logger.Nop()
	}
	return &ShellExecutor{config: cfg, log: log.WithComponent("executor.shell")}
}

// Execute runs step.Run through the configured shell. A non-zero exit is a
// step failure; a shell that cannot start or a context that kills the
// process is an executor error.
func (e *ShellExecutor) Execute(ctx context.Context, step dag.StepSpec, sc dag.StepContext) dag.Outcome {
	args := append(append([]string(nil), e.config.Shell[1:]...), step.Run)
	cmd := Command{
		Binary:      e.config.Shell[0],
		Args:        args,
		Dir:         e.config.Dir,
		Env:         StepEnv(step, sc),
		GracePeriod: e.config.GracePeriod,
	}

	e.log.Debug("running step", logger.Fields(logger.FieldInstance, sc.InstanceID, logger.FieldStep, step.Name))
	var live *lineLogger
	if e.config.StreamOutput {
		live = &lineLogger{log: e.log, instance: sc.InstanceID, step: step.Name}
		cmd.Output = live
	}
	result, err := Run(ctx, cmd)
	if live != nil {
		live.Flush()
	}
	output := tail(result.Output(), e.config.MaxOutputBytes)

	switch {
	case err == nil:
		return dag.Succeeded(output)
	case stderrors.Is(err, ErrKilled):
		tag := dag.TagCanceled
		if stderrors.Is(err, context.DeadlineExceeded) {
			tag = dag.TagTimeout
		}
		out := dag.ExecutorFailed(tag, err)
		out.Output = output
		return out
	}

	if code, ok := ExitCode(err); ok {
		return dag.Failed(code, output)
	}
	return dag.ExecutorFailed(dag.TagExecutor, err)
}

// StepEnv builds the environment exported to a step: run, job, instance and
// step identifiers, one MATRIX_<AXIS> per matrix axis, then the step's own
// variables in key order.
func StepEnv(step dag.StepSpec, sc dag.StepContext) []string {
	env := []string{
		EnvRunID + "=" + sc.RunID,
		EnvJob + "=" + sc.JobID,
		EnvInstance + "=" + sc.InstanceID,
		EnvStep + "=" + step.Name,
	}
	for _, av := range sc.Assignment {
		env = append(env, MatrixVar(av.Axis)+"="+av.Value)
	}

	keys := make([]string, 0, len(step.Env))
	for k := range step.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+step.Env[k])
	}
	return env
}

// MatrixVar returns the environment variable name of an axis, e.g.
// "go-version" becomes MATRIX_GO_VERSION.
func MatrixVar(axis string) string {
	return EnvMatrixPfx + strings.ToUpper(strings.ReplaceAll(axis, "-", "_"))
}

func tail(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

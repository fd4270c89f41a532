package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbukum/pipegraph/config"
	"github.com/kbukum/pipegraph/dag"
	"github.com/kbukum/pipegraph/docker"
	"github.com/kbukum/pipegraph/logger"
	"github.com/kbukum/pipegraph/logstore"
	"github.com/kbukum/pipegraph/observability"
	"github.com/kbukum/pipegraph/pipeline"
	"github.com/kbukum/pipegraph/process"
	"github.com/kbukum/pipegraph/version"
)

// Executor names a step may use.
const (
	ExecutorShell  = dag.DefaultExecutor
	ExecutorDocker = "docker"
)

var executorNames = []string{ExecutorShell, ExecutorDocker}

type runFlags struct {
	maxConcurrency  int
	stepTimeout     time.Duration
	cancelOnFailure bool
	logDir          string
	streamOutput    bool
}

func (a *app) runCommand() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run <pipeline.yml>",
		Short: "Run a pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("max-concurrency") {
				cfg.Engine.MaxConcurrency = f.maxConcurrency
			}
			if flags.Changed("step-timeout") {
				cfg.Engine.StepTimeout = f.stepTimeout
			}
			if flags.Changed("cancel-on-failure") {
				cfg.Engine.CancelOnFailure = f.cancelOnFailure
			}
			if flags.Changed("log-dir") {
				cfg.LogStore.Dir = f.logDir
			}
			if flags.Changed("stream-output") {
				cfg.Engine.Shell.StreamOutput = f.streamOutput
			}
			if err := cfg.Validate(); err != nil {
				return infraError(err)
			}
			return a.run(cmd.Context(), args[0], cfg)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&f.maxConcurrency, "max-concurrency", 0, "maximum instances running at once (0 = unbounded)")
	flags.DurationVar(&f.stepTimeout, "step-timeout", 0, "timeout of steps that set none (0 = none)")
	flags.BoolVar(&f.cancelOnFailure, "cancel-on-failure", false, "cancel the run at the first failed instance")
	flags.StringVar(&f.logDir, "log-dir", "", "write every step's output under this directory")
	flags.BoolVar(&f.streamOutput, "stream-output", false, "log shell step output line by line as it is written")
	return cmd
}

func (a *app) run(ctx context.Context, path string, cfg *config.Config) error {
	log := a.logger(cfg)
	log.Debug("configuration loaded", logger.Fields("config", cfg.String()))

	compiled, g, err := a.build(path, cfg, log)
	if err != nil {
		return err
	}

	shutdown, err := observability.Setup(ctx, cfg.Telemetry, serviceName, version.Get().Short())
	if err != nil {
		return infraError(err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			log.Warn("telemetry shutdown failed", logger.Fields(logger.FieldError, err.Error()))
		}
	}()

	registry, closeExecutors, err := newRegistry(ctx, cfg, compiled, log)
	if err != nil {
		return infraError(err)
	}
	defer closeExecutors()

	metrics, err := observability.NewMetrics(observability.Meter(serviceName))
	if err != nil {
		return infraError(err)
	}

	var exec dag.StepExecutor = dag.WithLogging(registry, log)
	exec = dag.WithMetrics(exec, metrics)
	exec = dag.WithTracing(exec)

	opts := []dag.SchedulerOption{
		dag.WithMaxConcurrency(cfg.Engine.MaxConcurrency),
		dag.WithStepTimeout(cfg.Engine.StepTimeout),
		dag.WithCancelOnFailure(cfg.Engine.CancelOnFailure),
		dag.WithLogger(log),
		dag.WithObserver(&dag.LoggingObserver{Log: logger.Get(componentRun)}),
		dag.WithObserver(&dag.MetricsObserver{Metrics: metrics}),
	}
	if cfg.LogStore.Enabled() {
		opts = append(opts, dag.WithOutputSink(logstore.New(cfg.LogStore.Dir)))
	}

	result, runErr := dag.NewScheduler(exec, opts...).Run(ctx, g)
	if err := a.report(result, cfg); err != nil {
		return infraError(err)
	}
	if runErr != nil {
		return &ExitError{Code: ExitFailed, Err: fmt.Errorf("run interrupted: %w", runErr)}
	}
	if !result.Succeeded() {
		return &ExitError{Code: ExitFailed}
	}
	return nil
}

// newRegistry registers the shell executor, and the docker executor when a
// step uses it. The returned function releases the docker client.
func newRegistry(ctx context.Context, cfg *config.Config, compiled *pipeline.Compiled, log *logger.Logger) (*dag.Registry, func(), error) {
	registry := dag.NewRegistry()
	registry.Register(ExecutorShell, process.NewShellExecutor(cfg.Engine.Shell, log))

	if !uses(compiled, ExecutorDocker) {
		return registry, func() {}, nil
	}
	exec, err := docker.New(cfg.Docker, log)
	if err != nil {
		return nil, nil, err
	}
	if err := exec.Ping(ctx); err != nil {
		_ = exec.Close()
		return nil, nil, err
	}
	registry.Register(ExecutorDocker, exec)
	return registry, func() { _ = exec.Close() }, nil
}

func uses(compiled *pipeline.Compiled, executor string) bool {
	for _, job := range compiled.Jobs {
		for _, step := range job.Steps {
			if step.Executor() == executor {
				return true
			}
		}
	}
	return false
}

type runView struct {
	Run       string            `yaml:"run"`
	Pipeline  string            `yaml:"pipeline"`
	Status    string            `yaml:"status"`
	Gate      string            `yaml:"gate,omitempty"`
	Duration  string            `yaml:"duration"`
	Jobs      map[string]string `yaml:"jobs"`
	Instances []instanceView    `yaml:"instances"`
	LogDir    string            `yaml:"log_dir,omitempty"`
}

type instanceView struct {
	ID     string `yaml:"id"`
	Status string `yaml:"status"`
	Step   string `yaml:"failed_step,omitempty"`
	Reason string `yaml:"reason,omitempty"`
}

func buildRunView(result *dag.RunResult, cfg *config.Config) runView {
	view := runView{
		Run:      result.ID,
		Pipeline: result.Pipeline,
		Status:   string(result.Status),
		Gate:     result.Gate,
		Duration: result.Duration().Round(time.Millisecond).String(),
		Jobs:     make(map[string]string, len(result.Jobs)),
	}
	if cfg.LogStore.Enabled() {
		view.LogDir = logstore.New(cfg.LogStore.Dir).RunDir(result.ID)
	}
	for id, status := range result.Jobs {
		view.Jobs[id] = string(status)
	}
	for _, inst := range result.Instances {
		iv := instanceView{ID: inst.ID, Status: string(inst.Status), Reason: inst.SkipReason}
		if inst.Status == dag.StatusFailed {
			for _, s := range inst.Steps {
				if !s.OK() {
					iv.Step = s.Name
					if s.Err != nil {
						iv.Reason = s.Err.Error()
					}
				}
			}
		}
		view.Instances = append(view.Instances, iv)
	}
	return view
}

func (a *app) report(result *dag.RunResult, cfg *config.Config) error {
	view := buildRunView(result, cfg)
	if a.output == OutputYAML {
		return a.writeYAML(view)
	}

	for _, inst := range view.Instances {
		line := fmt.Sprintf("%-10s %s", inst.Status, inst.ID)
		switch {
		case inst.Step != "":
			line += fmt.Sprintf("  (step %s: %s)", inst.Step, inst.Reason)
		case inst.Reason != "":
			line += "  (" + inst.Reason + ")"
		}
		fmt.Fprintln(a.stdout, line)
	}
	summary := fmt.Sprintf("pipeline %s %s in %s", view.Pipeline, strings.ToUpper(view.Status), view.Duration)
	if view.Gate != "" {
		summary += " (gate: " + view.Gate + ")"
	}
	fmt.Fprintln(a.stdout, summary)
	if view.LogDir != "" {
		fmt.Fprintln(a.stdout, "step logs:", view.LogDir)
	}
	return nil
}

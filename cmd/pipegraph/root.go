package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/kbukum/pipegraph/config"
	"github.com/kbukum/pipegraph/dag"
	"github.com/kbukum/pipegraph/logger"
	"github.com/kbukum/pipegraph/pipeline"
)

const serviceName = "pipegraph"

// componentRun tags the per-instance progress log of a run.
const componentRun = "run"

// Output formats.
const (
	OutputText = "text"
	OutputYAML = "yaml"
)

// app holds what the commands share: streams and global flags.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configFile  string
	logLevel    string
	logFormat   string
	searchPaths []string
	output      string
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return exitCode(root.ExecuteContext(ctx), stderr)
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "pipegraph",
		Short:         "Run CI pipelines as a graph of jobs with matrix expansion",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			switch a.output {
			case OutputText, OutputYAML:
				return nil
			}
			return fmt.Errorf("unknown output format %q (want %s or %s)", a.output, OutputText, OutputYAML)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "configuration file (default: pipegraph.yml if present)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: console or json")
	flags.StringSliceVar(&a.searchPaths, "search-path", nil, "directory searched for included pipelines (repeatable)")
	flags.StringVarP(&a.output, "output", "o", OutputText, "output format: text or yaml")

	root.AddCommand(a.runCommand(), a.validateCommand(), a.planCommand(), a.versionCommand())
	return root
}

// loadConfig reads the configuration and applies the global flags.
func (a *app) loadConfig() (*config.Config, error) {
	var opts []config.LoaderOption
	if a.configFile != "" {
		opts = append(opts, config.WithConfigFile(a.configFile))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, infraError(err)
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}
	cfg.Engine.SearchPaths = append(cfg.Engine.SearchPaths, a.searchPaths...)
	return cfg, nil
}

func (a *app) logger(cfg *config.Config) *logger.Logger {
	w := a.stderr
	if cfg.Logging.Output == "stdout" {
		w = a.stdout
	}
	log := logger.NewWithWriter(&cfg.Logging, serviceName, w)
	logger.SetGlobalLogger(log)
	logger.RegisterDefaults(componentRun)
	return log
}

// build loads, resolves and compiles the pipeline file into a graph.
func (a *app) build(path string, cfg *config.Config, log *logger.Logger) (*pipeline.Compiled, *dag.Graph, error) {
	compiled, err := pipeline.Build(path, cfg.Engine.SearchPaths,
		pipeline.WithExecutors(executorNames...),
		pipeline.WithLogger(log.WithComponent("loader")),
	)
	if err != nil {
		return nil, nil, definitionError(err)
	}
	g, err := compiled.Graph()
	if err != nil {
		return nil, nil, definitionError(err)
	}
	return compiled, g, nil
}

func (a *app) writeYAML(v any) error {
	enc := yaml.NewEncoder(a.stdout)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

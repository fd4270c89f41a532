package config

import (
	"fmt"
	"time"

	"github.com/kbukum/pipegraph/docker"
	"github.com/kbukum/pipegraph/errors"
	"github.com/kbukum/pipegraph/logger"
	"github.com/kbukum/pipegraph/observability"
	"github.com/kbukum/pipegraph/process"
	"github.com/kbukum/pipegraph/validation"
)

// Config is the complete pipegraph configuration.
type Config struct {
	Engine    EngineConfig         `yaml:"engine" mapstructure:"engine"`
	Docker    docker.Config        `yaml:"docker" mapstructure:"docker"`
	Logging   logger.Config        `yaml:"logging" mapstructure:"logging"`
	Telemetry observability.Config `yaml:"telemetry" mapstructure:"telemetry"`
	LogStore  LogStoreConfig       `yaml:"log_store" mapstructure:"log_store"`
}

// EngineConfig configures the scheduler and the shell executor.
type EngineConfig struct {
	// MaxConcurrency bounds the instances running at once (0 = unbounded).
	MaxConcurrency int `yaml:"max_concurrency" mapstructure:"max_concurrency" validate:"gte=0"`
	// StepTimeout bounds every step without its own timeout (0 = none).
	StepTimeout     time.Duration `yaml:"step_timeout" mapstructure:"step_timeout" validate:"gte=0"`
	CancelOnFailure bool          `yaml:"cancel_on_failure" mapstructure:"cancel_on_failure"`
	// SearchPaths are the directories searched for included pipeline files.
	SearchPaths []string       `yaml:"search_paths" mapstructure:"search_paths" validate:"dive,required"`
	Shell       process.Config `yaml:"shell" mapstructure:"shell"`
}

// LogStoreConfig configures per-step output files. An empty Dir disables them.
type LogStoreConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// Enabled reports whether step output files are written.
func (c LogStoreConfig) Enabled() bool { return c.Dir != "" }

// ApplyDefaults fills in every unset value.
func (c *Config) ApplyDefaults() {
	c.Engine.Shell.ApplyDefaults()
	c.Docker.ApplyDefaults()
	c.Logging.ApplyDefaults()
	c.Telemetry.ApplyDefaults()
}

// Validate checks the configuration. Errors are INVALID_CONFIG.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return errors.InvalidConfig("", err.Error()).WithCause(err)
	}

	v := validation.New()
	v.Min("engine.shell.shell", len(c.Engine.Shell.Shell), 1)
	v.Custom(c.Engine.Shell.GracePeriod >= 0, "engine.shell.grace_period", "must not be negative")
	v.OneOf("docker.pull_policy", c.Docker.PullPolicy, []string{docker.PullMissing, docker.PullAlways, docker.PullNever})
	v.Min("docker.max_containers", c.Docker.MaxContainers, 0)
	if err := v.Validate(); err != nil {
		return errors.InvalidConfig("", err.Message).WithCause(err)
	}

	if err := c.Docker.Validate(); err != nil {
		return errors.InvalidConfig("docker", err.Error()).WithCause(err)
	}
	if err := c.Logging.Validate(); err != nil {
		return errors.InvalidConfig("logging", err.Error()).WithCause(err)
	}
	return nil
}

// Default returns the configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// String renders the settings that shape a run, for debug logs.
func (c *Config) String() string {
	return fmt.Sprintf("max_concurrency=%d step_timeout=%s cancel_on_failure=%t log_store=%q docker=%s",
		c.Engine.MaxConcurrency, c.Engine.StepTimeout, c.Engine.CancelOnFailure, c.LogStore.Dir, c.Docker.Host)
}

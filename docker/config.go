package docker

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Pull policies.
const (
	PullMissing = "missing"
	PullAlways  = "always"
	PullNever   = "never"
)

// Config configures the Docker executor.
type Config struct {
	Host       string     `yaml:"host,omitempty" mapstructure:"host"`
	APIVersion string     `yaml:"api_version,omitempty" mapstructure:"api_version"`
	TLS        *TLSConfig `yaml:"tls,omitempty" mapstructure:"tls"`
	Network    string     `yaml:"network,omitempty" mapstructure:"network"`
	Platform   string     `yaml:"platform,omitempty" mapstructure:"platform"`

	// DefaultImage is used by steps that do not name an image.
	DefaultImage string `yaml:"default_image,omitempty" mapstructure:"default_image"`
	// PullPolicy is one of missing, always or never.
	PullPolicy string `yaml:"pull_policy,omitempty" mapstructure:"pull_policy"`
	// PullRetries is the number of attempts for one image pull.
	PullRetries int `yaml:"pull_retries,omitempty" mapstructure:"pull_retries"`
	// MaxContainers bounds the containers running at once across all steps.
	MaxContainers int `yaml:"max_containers,omitempty" mapstructure:"max_containers"`

	// Shell is the container entrypoint; the step's run text is its argument.
	Shell []string `yaml:"shell,omitempty" mapstructure:"shell"`
	// Workspace is a host directory bind-mounted at WorkDir.
	Workspace string `yaml:"workspace,omitempty" mapstructure:"workspace"`
	WorkDir   string `yaml:"workdir,omitempty" mapstructure:"workdir"`

	Memory string `yaml:"memory,omitempty" mapstructure:"memory"`
	CPUs   string `yaml:"cpus,omitempty" mapstructure:"cpus"`

	// GracePeriod is how long a canceled container gets before it is killed.
	GracePeriod    time.Duration `yaml:"grace_period,omitempty" mapstructure:"grace_period"`
	MaxOutputBytes int           `yaml:"max_output_bytes,omitempty" mapstructure:"max_output_bytes"`
}

// TLSConfig holds Docker TLS settings.
type TLSConfig struct {
	CACert string `yaml:"ca_cert" mapstructure:"ca_cert"`
	Cert   string `yaml:"cert" mapstructure:"cert"`
	Key    string `yaml:"key" mapstructure:"key"`
}

// ApplyDefaults fills in zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "unix:///var/run/docker.sock"
	}
	if c.PullPolicy == "" {
		c.PullPolicy = PullMissing
	}
	if c.PullRetries <= 0 {
		c.PullRetries = 3
	}
	if c.MaxContainers <= 0 {
		c.MaxContainers = runtime.NumCPU()
	}
	if len(c.Shell) == 0 {
		c.Shell = []string{"sh", "-c"}
	}
	if c.WorkDir == "" && c.Workspace != "" {
		c.WorkDir = "/workspace"
	}
	if c.GracePeriod == 0 {
		c.GracePeriod = 10 * time.Second
	}
	if c.MaxOutputBytes == 0 {
		c.MaxOutputBytes = 64 * 1024
	}
}

// Validate checks the Docker configuration.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("docker: host is required")
	}
	if c.TLS != nil && (c.TLS.Cert == "" || c.TLS.Key == "") {
		return fmt.Errorf("docker: tls cert and key are both required when tls is enabled")
	}
	switch c.PullPolicy {
	case "", PullMissing, PullAlways, PullNever:
	default:
		return fmt.Errorf("docker: unknown pull policy %q", c.PullPolicy)
	}
	if c.Platform != "" {
		if _, err := c.platform(); err != nil {
			return err
		}
	}
	if _, err := c.memoryBytes(); err != nil {
		return err
	}
	if _, err := c.nanoCPUs(); err != nil {
		return err
	}
	return nil
}

func (c *Config) memoryBytes() (int64, error) {
	if c.Memory == "" {
		return 0, nil
	}
	n, err := units.RAMInBytes(c.Memory)
	if err != nil {
		return 0, fmt.Errorf("docker: memory %q: %w", c.Memory, err)
	}
	return n, nil
}

// nanoCPUs accepts "1.5" or millicores such as "500m".
func (c *Config) nanoCPUs() (int64, error) {
	s := strings.TrimSpace(strings.ToLower(c.CPUs))
	if s == "" {
		return 0, nil
	}
	scale := 1e9
	if strings.HasSuffix(s, "m") {
		s, scale = strings.TrimSuffix(s, "m"), 1e6
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("docker: cpus %q is not a positive number", c.CPUs)
	}
	return int64(v * scale), nil
}

func (c *Config) platform() (*ocispec.Platform, error) {
	if c.Platform == "" {
		return nil, nil
	}
	parts := strings.Split(c.Platform, "/")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("docker: platform %q must be os/arch[/variant]", c.Platform)
	}
	p := &ocispec.Platform{OS: parts[0], Architecture: parts[1]}
	if len(parts) == 3 {
		p.Variant = parts[2]
	}
	return p, nil
}

package pipeline

import (
	"fmt"
	"time"

	"go.yaml.in/yaml/v3"
)

// Definition is a pipeline as written in YAML.
type Definition struct {
	// Name is the pipeline identifier.
	Name string `yaml:"name" validate:"required,identifier"`
	// Gate names the job whose aggregate decides the pipeline result.
	Gate string `yaml:"gate,omitempty" validate:"omitempty,identifier"`
	// Includes lists other pipelines whose jobs are merged into this one.
	Includes []string `yaml:"includes,omitempty" validate:"unique,dive,required"`
	Jobs     []JobDef `yaml:"jobs" validate:"min=1,dive"`

	// Source is the file the definition was read from, if any.
	Source string `yaml:"-"`
}

// JobDef declares one job.
type JobDef struct {
	ID        string    `yaml:"id" validate:"required,identifier"`
	DependsOn []string  `yaml:"depends_on,omitempty" validate:"dive,required"`
	Matrix    Matrix    `yaml:"matrix,omitempty" validate:"dive"`
	Steps     []StepDef `yaml:"steps" validate:"unique=Name,dive"`
	When      string    `yaml:"when,omitempty" validate:"omitempty,oneof=success always"`
}

// StepDef declares one step of a job.
type StepDef struct {
	Name string `yaml:"name" validate:"required,identifier"`
	// If is a condition expression; the step is skipped when it is false.
	If   string `yaml:"if,omitempty"`
	Uses string `yaml:"uses,omitempty" validate:"omitempty,identifier"`
	// Image is a template, e.g. golang:${matrix.go}.
	Image   string            `yaml:"image,omitempty" validate:"required_if=Uses docker"`
	Run     string            `yaml:"run" validate:"required"`
	Env     map[string]string `yaml:"env,omitempty"`
	Timeout time.Duration     `yaml:"timeout,omitempty" validate:"gte=0"`
}

// Axis is one matrix dimension.
type Axis struct {
	Name   string   `validate:"required,identifier"`
	Values []string `validate:"min=1,unique"`
}

// Matrix keeps axes in the order they are written, which a plain map would
// lose.
type Matrix []Axis

// UnmarshalYAML decodes a mapping of axis name to a list of values.
func (m *Matrix) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: matrix must map axis names to lists of values", node.Line)
	}
	axes := make(Matrix, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if val.Kind != yaml.SequenceNode {
			return fmt.Errorf("line %d: matrix axis %q must be a list", val.Line, key.Value)
		}
		values := make([]string, 0, len(val.Content))
		for _, item := range val.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: matrix axis %q values must be scalars", item.Line, key.Value)
			}
			values = append(values, item.Value)
		}
		axes = append(axes, Axis{Name: key.Value, Values: values})
	}
	*m = axes
	return nil
}

// MarshalYAML writes the matrix back as an ordered mapping.
func (m Matrix) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, ax := range m {
		seq := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		for _, v := range ax.Values {
			seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: v})
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: ax.Name}, seq)
	}
	return node, nil
}

// Package workflow loads declarative pipeline files and runs them as a
// dependency-ordered batch of synthetic tasks under a manager.
package workflow

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so pipeline files can use human-readable
// values like "200ms" or "1.5s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Spec is a declarative pipeline definition.
type Spec struct {
	Name        string     `yaml:"name"`
	Concurrency int        `yaml:"concurrency"`
	Tasks       []TaskSpec `yaml:"tasks"`
}

// TaskSpec describes one synthetic task in a pipeline.
type TaskSpec struct {
	Name string `yaml:"name"`

	// Steps is the number of checkpointed work slices; Duration is the
	// total wall time spread evenly across them.
	Steps    int      `yaml:"steps"`
	Duration Duration `yaml:"duration"`

	// FailAtStep injects a failure once the given 1-based step is reached.
	// Zero disables injection.
	FailAtStep int `yaml:"fail_at_step"`

	DependsOn []string `yaml:"depends_on"`
}

// Load reads and validates a pipeline file.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline file: %w", err)
	}
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline file: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate checks structural consistency: unique non-empty task names and
// dependencies that reference declared tasks. Cycle detection is left to the
// task graph itself, which rejects cycle-forming edges on insertion.
func (s *Spec) Validate() error {
	if len(s.Tasks) == 0 {
		return fmt.Errorf("pipeline %q declares no tasks", s.Name)
	}
	if s.Concurrency < 0 {
		return fmt.Errorf("pipeline %q has negative concurrency %d", s.Name, s.Concurrency)
	}
	seen := make(map[string]bool, len(s.Tasks))
	for _, ts := range s.Tasks {
		if ts.Name == "" {
			return fmt.Errorf("pipeline %q contains a task with no name", s.Name)
		}
		if seen[ts.Name] {
			return fmt.Errorf("duplicate task name %q", ts.Name)
		}
		seen[ts.Name] = true
	}
	for _, ts := range s.Tasks {
		for _, dep := range ts.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("task %q depends on undeclared task %q", ts.Name, dep)
			}
		}
	}
	return nil
}

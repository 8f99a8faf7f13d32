// Package types holds configuration types for stepforge.yaml.
package types

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// PipelineConfig represents the top-level stepforge.yaml configuration.
type PipelineConfig struct {
	Name       string         `yaml:"name"`
	Strict     bool           `yaml:"strict,omitempty"`
	Properties map[string]any `yaml:"properties,omitempty"`
	Steps      []StepConfig   `yaml:"steps"`
	Hooks      []HookBinding  `yaml:"hooks,omitempty"`
}

// StepConfig declares one step and where it goes.
type StepConfig struct {
	Name       string          `yaml:"name"`
	BeforeStep string          `yaml:"before_step,omitempty"`
	AfterStep  string          `yaml:"after_step,omitempty"`
	Hook       *DefaultHookRef `yaml:"hook,omitempty"`
}

// HookBinding attaches a plain hook to a step.
type HookBinding struct {
	Step string         `yaml:"step"`
	Name string         `yaml:"name,omitempty"`
	Kind string         `yaml:"kind"`
	With map[string]any `yaml:"with,omitempty"`
}

// Ref returns the hook part of the binding.
func (b HookBinding) Ref() HookRef {
	return HookRef{Name: b.Name, Kind: b.Kind, With: b.With}
}

// HookRef names a hook kind and its arguments. In YAML it is either a bare
// kind ("exec") or a mapping with name, kind and with.
type HookRef struct {
	Name string         `yaml:"name,omitempty"`
	Kind string         `yaml:"kind"`
	With map[string]any `yaml:"with,omitempty"`
}

// DisplayName returns Name, falling back to Kind.
func (r HookRef) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Kind
}

// UnmarshalYAML accepts the scalar shorthand as well as the full mapping.
func (r *HookRef) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		r.Kind = node.Value
		return nil
	}
	type plain HookRef
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*r = HookRef(p)
	return nil
}

// DefaultHookRef is the default hook pair of a step. A single hook in YAML
// means "before only"; a mapping with before/after keys sets the pair.
type DefaultHookRef struct {
	Before *HookRef `yaml:"before,omitempty"`
	After  *HookRef `yaml:"after,omitempty"`
}

// UnmarshalYAML decodes either a single hook or an explicit pair.
func (d *DefaultHookRef) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.MappingNode && isPair(node) {
		type plain DefaultHookRef
		var p plain
		if err := node.Decode(&p); err != nil {
			return err
		}
		*d = DefaultHookRef(p)
		return nil
	}
	var single HookRef
	if err := node.Decode(&single); err != nil {
		return err
	}
	*d = DefaultHookRef{Before: &single}
	return nil
}

func isPair(node *yaml.Node) bool {
	for i := 0; i+1 < len(node.Content); i += 2 {
		switch node.Content[i].Value {
		case "before", "after":
			return true
		}
	}
	return false
}

// ParsePipelineConfig parses raw YAML bytes into a PipelineConfig and validates required fields.
func ParsePipelineConfig(data []byte) (*PipelineConfig, error) {
	var cfg PipelineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing pipeline config: %w", err)
	}

	if cfg.Name == "" {
		return nil, fmt.Errorf("pipeline config: name is required")
	}
	if len(cfg.Steps) == 0 {
		return nil, fmt.Errorf("pipeline config: at least one step is required")
	}
	for i, s := range cfg.Steps {
		if s.Name == "" {
			return nil, fmt.Errorf("pipeline config: steps[%d]: name is required", i)
		}
	}

	return &cfg, nil
}

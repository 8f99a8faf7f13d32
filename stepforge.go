// Package stepforge provides a high-level API for building a step pipeline
// from a stepforge.yaml configuration.
//
// Callers that register hooks in code can use the pipeline package directly;
// this package wires configuration, validation and the built-in hook kinds.
package stepforge

import (
	"fmt"

	"github.com/initializ/stepforge/hooks"
	"github.com/initializ/stepforge/logging"
	"github.com/initializ/stepforge/pipeline"
	"github.com/initializ/stepforge/types"
	"github.com/initializ/stepforge/validate"
)

// Options configures Assemble.
type Options struct {
	Logger     logging.Logger         // lifecycle diagnostics, optional
	HookLogger *logging.LabeledLogger // relabelled per hook, optional
}

// Validate checks cfg against the hook kinds known to reg.
func Validate(cfg *types.PipelineConfig, reg *hooks.Registry) *validate.ValidationResult {
	return validate.ValidatePipelineConfig(cfg, reg.Kinds())
}

// Assemble builds a pipeline from cfg. Steps are added in file order with
// their placement and default hooks, then the plain hook bindings are
// registered in file order.
func Assemble(cfg *types.PipelineConfig, reg *hooks.Registry, opts Options) (*pipeline.Pipeline, error) {
	p := pipeline.New(
		pipeline.WithLogger(opts.Logger),
		pipeline.WithHookLogger(opts.HookLogger),
		pipeline.WithStrict(cfg.Strict),
		pipeline.WithProperties(cfg.Properties),
	)

	for _, s := range cfg.Steps {
		var stepOpts []pipeline.StepOption
		if s.BeforeStep != "" {
			stepOpts = append(stepOpts, pipeline.BeforeStep(s.BeforeStep))
		}
		if s.AfterStep != "" {
			stepOpts = append(stepOpts, pipeline.AfterStep(s.AfterStep))
		}
		if s.Hook != nil {
			before, err := buildOptional(reg, s.Hook.Before)
			if err != nil {
				return nil, fmt.Errorf("step %s: %w", s.Name, err)
			}
			after, err := buildOptional(reg, s.Hook.After)
			if err != nil {
				return nil, fmt.Errorf("step %s: %w", s.Name, err)
			}
			stepOpts = append(stepOpts, pipeline.WithHooks(before, after))
		}
		if err := p.AddStep(s.Name, stepOpts...); err != nil {
			return nil, fmt.Errorf("step %s: %w", s.Name, err)
		}
	}

	for i, b := range cfg.Hooks {
		h, err := reg.Build(b.Ref())
		if err != nil {
			return nil, fmt.Errorf("hooks[%d]: %w", i, err)
		}
		if err := p.AddHook(b.Step, h); err != nil {
			return nil, fmt.Errorf("hooks[%d]: %w", i, err)
		}
	}

	return p, nil
}

func buildOptional(reg *hooks.Registry, ref *types.HookRef) (pipeline.Hook, error) {
	if ref == nil {
		return nil, nil
	}
	return reg.Build(*ref)
}

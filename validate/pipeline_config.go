package validate

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/initializ/stepforge/pipeline"
	"github.com/initializ/stepforge/types"
)

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ValidationResult holds errors and warnings from config validation.
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

func (r *ValidationResult) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// ValidatePipelineConfig checks a PipelineConfig for errors and warnings.
// kinds lists the hook kinds available to the caller; when nil, hook kinds
// are not checked. Step placement is dry-run through a real pipeline so that
// duplicate and conflicting steps are reported exactly as they would fail.
func ValidatePipelineConfig(cfg *types.PipelineConfig, kinds []string) *ValidationResult {
	r := &ValidationResult{}

	if cfg.Name == "" {
		r.errorf("name is required")
	} else if !namePattern.MatchString(cfg.Name) {
		r.errorf("name %q must match %s", cfg.Name, namePattern)
	}
	if len(cfg.Steps) == 0 {
		r.errorf("at least one step is required")
	}

	known := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		known[k] = true
	}
	checkKind := func(where string, ref *types.HookRef) {
		if ref == nil {
			return
		}
		switch {
		case ref.Kind == "":
			r.errorf("%s: kind is required", where)
		case kinds != nil && !known[ref.Kind]:
			r.errorf("%s: unknown hook kind %q", where, ref.Kind)
		}
	}

	dry := pipeline.New()
	defined := make(map[string]bool, len(cfg.Steps))
	for i, s := range cfg.Steps {
		where := fmt.Sprintf("steps[%d]", i)
		if s.Name == "" {
			r.errorf("%s: name is required", where)
			continue
		}
		for _, ref := range []struct{ rel, name string }{{"before_step", s.BeforeStep}, {"after_step", s.AfterStep}} {
			if ref.name == "" || defined[ref.name] {
				continue
			}
			msg := fmt.Sprintf("%s (%s): %s %q is not defined earlier and will be ignored", where, s.Name, ref.rel, ref.name)
			if cfg.Strict {
				r.Errors = append(r.Errors, msg)
			} else {
				r.Warnings = append(r.Warnings, msg)
			}
		}

		var opts []pipeline.StepOption
		if s.BeforeStep != "" {
			opts = append(opts, pipeline.BeforeStep(s.BeforeStep))
		}
		if s.AfterStep != "" {
			opts = append(opts, pipeline.AfterStep(s.AfterStep))
		}
		if err := dry.AddStep(s.Name, opts...); err != nil {
			switch {
			case errors.Is(err, pipeline.ErrDuplicateStep):
				r.errorf("%s: duplicate step %q", where, s.Name)
			case errors.Is(err, pipeline.ErrOrderConflict):
				r.errorf("%s: %v", where, err)
			}
		}
		defined[s.Name] = true

		if s.Hook != nil {
			if s.Hook.Before == nil && s.Hook.After == nil {
				r.errorf("%s (%s): hook must set before or after", where, s.Name)
			}
			checkKind(where+".hook.before", s.Hook.Before)
			checkKind(where+".hook.after", s.Hook.After)
		}
	}

	for i, h := range cfg.Hooks {
		where := fmt.Sprintf("hooks[%d]", i)
		if h.Step == "" {
			r.errorf("%s: step is required", where)
		} else if !defined[h.Step] {
			msg := fmt.Sprintf("%s: %q is not a step; the hook will never run", where, h.Step)
			if cfg.Strict {
				r.Errors = append(r.Errors, msg)
			} else {
				r.Warnings = append(r.Warnings, msg)
			}
		}
		ref := h.Ref()
		checkKind(where, &ref)
	}

	return r
}

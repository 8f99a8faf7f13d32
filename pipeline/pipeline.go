// Package pipeline provides an ordered step executor with per-step hooks.
//
// Steps are named phases kept in an explicit order. Each step may carry a
// default before/after hook pair and any number of plain hooks. Traversing the
// pipeline runs, for every step in order, the before hook, the plain hooks in
// registration order, then the after hook, all against one shared Bag.
package pipeline

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"github.com/initializ/stepforge/logging"
)

// Pipeline is an ordered sequence of steps and the hooks bound to them.
// It is not safe for concurrent use.
type Pipeline struct {
	steps    []string
	hooks    map[string][]Hook
	defaults map[string]Defaults
	bag      *Bag

	log     logging.Logger
	hookLog *logging.LabeledLogger
	strict  bool
	running int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger receiving step and hook lifecycle events.
func WithLogger(l logging.Logger) Option {
	return func(p *Pipeline) { p.log = logging.OrNop(l) }
}

// WithHookLogger sets the logger whose label is switched to the running
// hook's name before each invocation.
func WithHookLogger(l *logging.LabeledLogger) Option {
	return func(p *Pipeline) { p.hookLog = l }
}

// WithStrict makes references to unknown steps an error instead of a warning.
func WithStrict(strict bool) Option {
	return func(p *Pipeline) { p.strict = strict }
}

// WithProperties seeds the bag.
func WithProperties(props map[string]any) Option {
	return func(p *Pipeline) {
		for k, v := range props {
			p.bag.Set(k, v)
		}
	}
}

// New creates an empty Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		hooks:    make(map[string][]Hook),
		defaults: make(map[string]Defaults),
		bag:      NewBag(),
		log:      logging.NopLogger{},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// StepOption configures how AddStep places and equips a step.
type StepOption func(*stepOptions)

type stepOptions struct {
	before   string
	after    string
	defaults Defaults
}

// BeforeStep places the new step immediately before the named step.
func BeforeStep(name string) StepOption {
	return func(o *stepOptions) { o.before = name }
}

// AfterStep places the new step immediately after the named step. BeforeStep
// wins when both resolve.
func AfterStep(name string) StepOption {
	return func(o *stepOptions) { o.after = name }
}

// WithHook sets the step's default before hook.
func WithHook(before Hook) StepOption {
	return func(o *stepOptions) { o.defaults = Defaults{Before: before} }
}

// WithHooks sets the step's default before and after hooks. Either may be nil.
func WithHooks(before, after Hook) StepOption {
	return func(o *stepOptions) { o.defaults = Defaults{Before: before, After: after} }
}

// AddStep registers a new step. Without position options the step is
// appended. A BeforeStep or AfterStep naming a step that does not exist is
// ignored (logged), unless the pipeline is strict.
func (p *Pipeline) AddStep(name string, opts ...StepOption) error {
	if p.running > 0 {
		return fmt.Errorf("adding step %s: %w", name, ErrRunning)
	}
	if name == "" {
		return fmt.Errorf("adding step: %w", ErrInvalidStep)
	}
	if p.Index(name) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateStep, name)
	}

	var o stepOptions
	for _, opt := range opts {
		opt(&o)
	}
	for _, h := range []Hook{o.defaults.Before, o.defaults.After} {
		if h != nil && !invocable(h) {
			return fmt.Errorf("default hook for step %s: %w", name, ErrNotInvocable)
		}
	}

	beforeIdx, err := p.resolve(name, "before", o.before)
	if err != nil {
		return err
	}
	afterIdx, err := p.resolve(name, "after", o.after)
	if err != nil {
		return err
	}
	if beforeIdx >= 0 && afterIdx >= 0 && afterIdx > beforeIdx {
		return fmt.Errorf("%w: cannot place %s before %s and after %s",
			ErrOrderConflict, name, o.before, o.after)
	}

	pos := len(p.steps)
	switch {
	case beforeIdx >= 0:
		pos = beforeIdx
	case afterIdx >= 0:
		pos = afterIdx + 1
	}
	p.steps = slices.Insert(p.steps, pos, name)
	// Hooks registered against this name before it existed are kept.
	if _, ok := p.hooks[name]; !ok {
		p.hooks[name] = nil
	}
	p.log.Debug("step created", map[string]any{"step": name, "step_index": pos})

	if o.defaults.Before != nil || o.defaults.After != nil {
		p.defaults[name] = o.defaults
		p.log.Debug("step has default hooks", map[string]any{
			"step":   name,
			"before": hookName(o.defaults.Before),
			"after":  hookName(o.defaults.After),
		})
	}
	return nil
}

// resolve returns the index of ref, or -1 when ref is empty or unknown.
func (p *Pipeline) resolve(step, rel, ref string) (int, error) {
	if ref == "" {
		return -1, nil
	}
	idx := p.Index(ref)
	if idx >= 0 {
		return idx, nil
	}
	if p.strict {
		return -1, fmt.Errorf("placing step %s %s %s: %w", step, rel, ref, ErrUnknownStep)
	}
	p.log.Warn("position reference is not a step, ignoring", map[string]any{
		"step":     step,
		"relation": rel,
		"ref":      ref,
	})
	return -1, nil
}

// AddHook appends h to the plain hooks of step. Registering against a step
// that does not exist yet is logged and tolerated: the hook runs once a step
// of that name is added. Strict pipelines reject it.
func (p *Pipeline) AddHook(step string, h Hook) error {
	if p.running > 0 {
		return fmt.Errorf("adding hook to %s: %w", step, ErrRunning)
	}
	if !invocable(h) {
		return fmt.Errorf("hook for step %s: %w", step, ErrNotInvocable)
	}
	if p.Index(step) < 0 {
		if p.strict {
			return fmt.Errorf("hook %s: %w: %s", h.Name(), ErrUnknownStep, step)
		}
		p.log.Warn("hook registered for unknown step", map[string]any{"step": step, "hook": h.Name()})
	}
	p.hooks[step] = append(p.hooks[step], h)
	return nil
}

// Len returns the number of registered steps.
func (p *Pipeline) Len() int { return len(p.steps) }

// Steps returns the step names in execution order.
func (p *Pipeline) Steps() []string { return slices.Clone(p.steps) }

// Index returns the position of step, or -1 if it is not registered.
func (p *Pipeline) Index(step string) int { return slices.Index(p.steps, step) }

// Hooks returns the plain hooks registered for step in execution order.
func (p *Pipeline) Hooks(step string) []Hook { return slices.Clone(p.hooks[step]) }

// DefaultHooks returns the default hook pair of step.
func (p *Pipeline) DefaultHooks(step string) Defaults { return p.defaults[step] }

// Running reports whether a traversal is in progress.
func (p *Pipeline) Running() bool { return p.running > 0 }

// Iterate returns a lazy traversal over the steps. Each iteration runs one
// step's hooks and then yields the shared bag. If a hook fails, the bag is
// yielded once with a *HookError and the traversal ends. Calling Iterate again
// starts a new traversal; the bag keeps whatever earlier traversals stored.
// Steps and hooks cannot be added while a traversal is in progress.
func (p *Pipeline) Iterate(ctx context.Context) iter.Seq2[*Bag, error] {
	return func(yield func(*Bag, error) bool) {
		p.running++
		defer func() { p.running-- }()

		for i, step := range p.steps {
			if err := ctx.Err(); err != nil {
				yield(p.bag, fmt.Errorf("pipeline cancelled before step %s: %w", step, err))
				return
			}
			if err := p.runStep(ctx, i, step); err != nil {
				yield(p.bag, err)
				return
			}
			if !yield(p.bag, nil) {
				return
			}
		}
	}
}

// Run performs a full traversal, calling fn with the bag after each step.
// It stops on the first error from a hook or from fn.
func (p *Pipeline) Run(ctx context.Context, fn func(*Bag) error) error {
	for bag, err := range p.Iterate(ctx) {
		if err != nil {
			return err
		}
		if fn != nil {
			if err := fn(bag); err != nil {
				return fmt.Errorf("step %s: %w", bag.Step(), err)
			}
		}
	}
	return nil
}

func (p *Pipeline) runStep(ctx context.Context, index int, step string) error {
	p.bag.Set(KeyStep, step)
	p.bag.Set(KeyStepIndex, index)
	p.log.Info("step", map[string]any{"step": step, "step_index": index})

	d := p.defaults[step]
	if d.Before != nil {
		if err := p.invoke(ctx, index, step, PhaseBefore, d.Before); err != nil {
			return err
		}
	}
	for _, h := range p.hooks[step] {
		if err := p.invoke(ctx, index, step, PhaseMain, h); err != nil {
			return err
		}
	}
	if d.After != nil {
		if err := p.invoke(ctx, index, step, PhaseAfter, d.After); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) invoke(ctx context.Context, index int, step string, phase Phase, h Hook) error {
	fields := map[string]any{
		"step":       step,
		"step_index": index,
		"hook":       h.Name(),
		"phase":      phase.String(),
	}
	p.log.Debug("calling hook", fields)
	if p.hookLog != nil {
		p.hookLog.SetLabel(h.Name())
	}
	if err := h.Run(ctx, p.bag); err != nil {
		fields["error"] = err.Error()
		p.log.Error("hook failed", fields)
		return &HookError{Step: step, Index: index, Hook: h.Name(), Phase: phase, Err: err}
	}
	p.log.Debug("hook finished", fields)
	return nil
}

func hookName(h Hook) string {
	if h == nil {
		return ""
	}
	return h.Name()
}

// Bag returns the shared property bag.
func (p *Pipeline) Bag() *Bag { return p.bag }

// Get returns the bag value for key, or nil if absent.
func (p *Pipeline) Get(key string) any { return p.bag.Get(key) }

// Set stores a bag value.
func (p *Pipeline) Set(key string, value any) { p.bag.Set(key, value) }

// Has reports whether the bag holds key.
func (p *Pipeline) Has(key string) bool { return p.bag.Has(key) }

// Delete removes key from the bag, returning ErrKeyNotFound if absent.
func (p *Pipeline) Delete(key string) error { return p.bag.Delete(key) }

package pipeline

import (
	"context"
	"reflect"
)

// Hook is a unit of work bound to a step. Run receives the pipeline's shared
// bag; a returned error aborts the traversal.
type Hook interface {
	Name() string
	Run(ctx context.Context, bag *Bag) error
}

// HookFunc adapts a plain function to the Hook interface.
type HookFunc func(ctx context.Context, bag *Bag) error

// Func returns a Hook named name that calls fn.
func Func(name string, fn HookFunc) Hook {
	return &funcHook{name: name, fn: fn}
}

type funcHook struct {
	name string
	fn   HookFunc
}

func (h *funcHook) Name() string { return h.name }

func (h *funcHook) Run(ctx context.Context, bag *Bag) error {
	return h.fn(ctx, bag)
}

// Defaults is the optional pair of hooks attached to a step when it is added.
// Before runs ahead of the step's plain hooks, After runs once they are done.
// Either may be nil.
type Defaults struct {
	Before Hook
	After  Hook
}

// Phase identifies where in a step a hook runs.
type Phase int

const (
	PhaseBefore Phase = iota
	PhaseMain
	PhaseAfter
)

func (p Phase) String() string {
	switch p {
	case PhaseBefore:
		return "before"
	case PhaseMain:
		return "main"
	case PhaseAfter:
		return "after"
	default:
		return "unknown"
	}
}

// invocable reports whether h can actually be called.
func invocable(h Hook) bool {
	if h == nil {
		return false
	}
	if fh, ok := h.(*funcHook); ok {
		return fh != nil && fh.fn != nil
	}
	// A typed nil stored in the interface is not callable either.
	switch v := reflect.ValueOf(h); v.Kind() {
	case reflect.Pointer, reflect.Func, reflect.Map, reflect.Chan, reflect.Interface, reflect.Slice:
		return !v.IsNil()
	}
	return true
}

package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateStep is returned when a step name is already registered.
	ErrDuplicateStep = errors.New("step already registered")
	// ErrOrderConflict is returned when the requested before/after positions
	// contradict each other.
	ErrOrderConflict = errors.New("conflicting step order")
	// ErrNotInvocable is returned when a hook cannot be called.
	ErrNotInvocable = errors.New("hook is not invocable")
	// ErrKeyNotFound is returned when deleting an absent bag key.
	ErrKeyNotFound = errors.New("key not found")
	// ErrUnknownStep is returned in strict mode for references to steps that
	// do not exist.
	ErrUnknownStep = errors.New("unknown step")
	// ErrInvalidStep is returned for an empty step name.
	ErrInvalidStep = errors.New("invalid step name")
	// ErrRunning is returned when the pipeline is modified mid-traversal.
	ErrRunning = errors.New("pipeline is running")
)

// HookError reports which hook failed and where. It unwraps to the error the
// hook returned.
type HookError struct {
	Step  string
	Index int
	Hook  string
	Phase Phase
	Err   error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("step %s (#%d) %s hook %s: %v", e.Step, e.Index, e.Phase, e.Hook, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

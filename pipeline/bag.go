package pipeline

import (
	"fmt"
	"sort"
)

// Reserved bag keys maintained by the pipeline during a traversal.
const (
	KeyStep      = "step"
	KeyStepIndex = "step_index"
)

// Bag is the property bag shared by every hook of a pipeline and by its
// caller. There is no isolation between hooks: a value set by one hook is
// visible to every hook that runs after it, including in later traversals.
type Bag struct {
	props map[string]any
}

// NewBag creates an empty Bag.
func NewBag() *Bag {
	return &Bag{props: make(map[string]any)}
}

// Get returns the value stored under key, or nil if absent.
func (b *Bag) Get(key string) any {
	return b.props[key]
}

// Lookup returns the value stored under key and whether it was present.
func (b *Bag) Lookup(key string) (any, bool) {
	v, ok := b.props[key]
	return v, ok
}

// Set stores value under key.
func (b *Bag) Set(key string, value any) {
	b.props[key] = value
}

// Has reports whether key is present.
func (b *Bag) Has(key string) bool {
	_, ok := b.props[key]
	return ok
}

// Delete removes key. It returns ErrKeyNotFound if key is absent.
func (b *Bag) Delete(key string) error {
	if _, ok := b.props[key]; !ok {
		return fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	delete(b.props, key)
	return nil
}

// Len returns the number of keys.
func (b *Bag) Len() int { return len(b.props) }

// Keys returns all keys in sorted order.
func (b *Bag) Keys() []string {
	keys := make([]string, 0, len(b.props))
	for k := range b.props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a shallow copy of the bag contents.
func (b *Bag) Snapshot() map[string]any {
	out := make(map[string]any, len(b.props))
	for k, v := range b.props {
		out[k] = v
	}
	return out
}

// Step returns the name of the step currently (or last) executed.
func (b *Bag) Step() string {
	s, _ := b.props[KeyStep].(string)
	return s
}

// StepIndex returns the zero-based position of the current step, or -1
// before the first step has run.
func (b *Bag) StepIndex() int {
	if i, ok := b.props[KeyStepIndex].(int); ok {
		return i
	}
	return -1
}

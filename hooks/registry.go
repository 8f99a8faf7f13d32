// Package hooks turns hook references from stepforge.yaml into pipeline hooks.
package hooks

import (
	"fmt"
	"sort"

	"github.com/initializ/stepforge/logging"
	"github.com/initializ/stepforge/pipeline"
	"github.com/initializ/stepforge/types"
)

// Env is what factories may rely on when building a hook.
type Env struct {
	WorkDir string
	Log     logging.Logger
}

// Factory builds a hook of one kind from its reference.
type Factory func(ref types.HookRef, env Env) (pipeline.Hook, error)

// Registry holds hook factories by kind.
type Registry struct {
	env       Env
	factories map[string]Factory
}

// NewRegistry creates an empty Registry whose factories receive env.
func NewRegistry(env Env) *Registry {
	env.Log = logging.OrNop(env.Log)
	return &Registry{env: env, factories: make(map[string]Factory)}
}

// NewDefaultRegistry creates a Registry with all built-in kinds registered.
func NewDefaultRegistry(env Env) *Registry {
	r := NewRegistry(env)
	r.Register("set", newSetHook)
	r.Register("require", newRequireHook)
	r.Register("env", newEnvHook)
	r.Register("exec", newExecHook)
	r.Register("manifest", newManifestHook)
	return r
}

// Register adds or replaces the factory for kind.
func (r *Registry) Register(kind string, f Factory) {
	r.factories[kind] = f
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Build creates the hook described by ref.
func (r *Registry) Build(ref types.HookRef) (pipeline.Hook, error) {
	f, ok := r.factories[ref.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown hook kind %q", ref.Kind)
	}
	h, err := f(ref, r.env)
	if err != nil {
		return nil, fmt.Errorf("hook %s (%s): %w", ref.DisplayName(), ref.Kind, err)
	}
	return h, nil
}

package control

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a policy of one variant from its config object. Nested
// documents are built through the Loader.
type Factory func(l *Loader, config Document) (Policy, error)

// Registry maps document tags to policy variants and back. It is populated
// once and read-only afterwards; concurrent lookups need no locking.
type Registry struct {
	factories map[string]Factory
	kinds     map[string]Kind
	names     map[Kind]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		kinds:     make(map[string]Kind),
		names:     make(map[Kind]string),
	}
}

// Register binds name to kind. Both must be unused.
func (r *Registry) Register(name string, kind Kind, factory Factory) error {
	if name == "" {
		return fmt.Errorf("policy name is required")
	}
	if factory == nil {
		return fmt.Errorf("policy %q: factory is required", name)
	}
	if _, exists := r.kinds[name]; exists {
		return fmt.Errorf("policy already registered: %s", name)
	}
	if existing, exists := r.names[kind]; exists {
		return fmt.Errorf("policy kind %d already registered as %s", kind, existing)
	}

	r.factories[name] = factory
	r.kinds[name] = kind
	r.names[kind] = name
	return nil
}

// Factory returns the factory registered under name.
func (r *Registry) Factory(name string) (Factory, bool) {
	f, ok := r.factories[name]
	return f, ok
}

// Kind returns the variant registered under name.
func (r *Registry) Kind(name string) (Kind, bool) {
	k, ok := r.kinds[name]
	return k, ok
}

// Name returns the tag registered for kind.
func (r *Registry) Name(kind Kind) (string, bool) {
	n, ok := r.names[kind]
	return n, ok
}

// Names returns every registered tag in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Kinds returns every registered variant in ascending order.
func (r *Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.names))
	for k := range r.names {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// builtins is the closed set of policy variants.
var builtins = []struct {
	kind    Kind
	factory Factory
}{
	{KindSerial, loadSerial},
	{KindBranching, loadBranching},
	{KindAuthenticateCaller, loadAuthenticateCaller},
	{KindInjectBackendCredential, loadInjectBackendCredential},
	{KindScanForLeakedSecrets, loadScanForLeakedSecrets},
	{KindRemapModel, loadRemapModel},
	{KindDispatchToBackend, loadDispatchToBackend},
	{KindSetData, loadSetData},
	{KindReject, loadReject},
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the process-wide registry of built-in policies.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		r := NewRegistry()
		for _, b := range builtins {
			if err := r.Register(b.kind.String(), b.kind, b.factory); err != nil {
				panic(err)
			}
		}
		defaultRegistry = r
	})
	return defaultRegistry
}

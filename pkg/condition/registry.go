package condition

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a condition of one variant from its document. Nested
// conditions and resolvers are built through the Loader.
type Factory func(l *Loader, doc Document) (Condition, error)

// Registry maps document tags to condition variants and back. It is
// populated before use and read-only afterwards, so concurrent lookups need
// no locking.
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
		return fmt.Errorf("condition name is required")
	}
	if factory == nil {
		return fmt.Errorf("condition %q: factory is required", name)
	}
	if _, exists := r.kinds[name]; exists {
		return fmt.Errorf("condition already registered: %s", name)
	}
	if existing, exists := r.names[kind]; exists {
		return fmt.Errorf("condition kind %d already registered as %s", kind, existing)
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

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the process-wide registry holding every built-in
// condition variant.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		r := NewRegistry()
		for kind := KindEquals; kind <= KindRegexMatch; kind++ {
			mustRegister(r, kind, comparisonFactory(kind))
		}
		mustRegister(r, KindAll, loadAll)
		mustRegister(r, KindAny, loadAny)
		mustRegister(r, KindNot, loadNot)
		defaultRegistry = r
	})
	return defaultRegistry
}

func mustRegister(r *Registry, kind Kind, f Factory) {
	if err := r.Register(kind.String(), kind, f); err != nil {
		panic(err)
	}
}

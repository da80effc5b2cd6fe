package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/specialistvlad/opcalc/internal/operation"
	"github.com/zclconf/go-cty/cty"
)

// SourceBuiltin marks descriptors registered by compiled-in modules.
const SourceBuiltin = "builtin"

// Module is the interface that all compiled-in operation modules implement.
type Module interface {
	Register(r *Registry)
}

// Descriptor pairs an operation name with the constructor for its handler.
type Descriptor struct {
	Name        string
	Arity       operation.Arity
	Description string
	// Source is SourceBuiltin or the identifier of the plugin module that
	// registered the operation, e.g. "plugins.extra".
	Source string
	New    operation.Constructor
	// Kind and Params are the recipe New was built from: a handler kind in
	// the catalog and its manifest params (cty.NilVal when absent). Worker
	// processes rebuild the handler from them. A descriptor without a Kind
	// can only run in-process.
	Kind   string
	Params cty.Value
}

// KindFactory turns the params of a manifest operation block into an arity
// and a constructor. params is a cty object, or cty.NilVal when absent.
type KindFactory func(params cty.Value) (operation.Arity, operation.Constructor, error)

// KindSource resolves handler kinds by name.
type KindSource interface {
	Kind(name string) (KindFactory, bool)
}

// Build resolves kind in kinds and binds params, the same way a manifest
// operation is built.
func Build(kinds KindSource, kind string, params cty.Value) (operation.Arity, operation.Constructor, error) {
	factory, ok := kinds.Kind(kind)
	if !ok {
		return 0, nil, fmt.Errorf("unknown handler kind '%s'", kind)
	}
	return factory(params)
}

// Registry holds the registered operations and handler kinds for a single
// application instance.
type Registry struct {
	mu         sync.RWMutex
	operations map[string]Descriptor
	kinds      map[string]KindFactory
	logger     *slog.Logger
}

// New creates and initializes a new Registry instance. A nil logger falls
// back to slog.Default().
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		operations: make(map[string]Descriptor),
		kinds:      make(map[string]KindFactory),
		logger:     logger,
	}
}

// RegisterModules is the explicit initialization call for compiled-in modules.
func (r *Registry) RegisterModules(modules ...Module) {
	for _, m := range modules {
		m.Register(r)
	}
}

// Register inserts or replaces the descriptor for desc.Name.
func (r *Registry) Register(desc Descriptor) {
	if desc.Source == "" {
		desc.Source = SourceBuiltin
	}

	r.mu.Lock()
	prev, exists := r.operations[desc.Name]
	r.operations[desc.Name] = desc
	r.mu.Unlock()

	if exists {
		r.logger.Debug("Replacing operation.", "name", desc.Name, "old_source", prev.Source, "new_source", desc.Source)
		return
	}
	r.logger.Debug("Registering operation.", "name", desc.Name, "arity", desc.Arity.String(), "source", desc.Source)
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.operations[name]
	return desc, ok
}

// Names returns the registered operation names in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.operations))
	for name := range r.operations {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Descriptors returns a snapshot of all descriptors ordered by name.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	out := make([]Descriptor, 0, len(r.operations))
	for _, desc := range r.operations {
		out = append(out, desc)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len reports how many operations are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.operations)
}

// RegisterKind adds a handler kind that manifests can reference. Like
// operations, a later registration replaces an earlier one.
func (r *Registry) RegisterKind(name string, factory KindFactory) {
	r.mu.Lock()
	r.kinds[name] = factory
	r.mu.Unlock()
	r.logger.Debug("Registering handler kind.", "kind", name)
}

// Kind returns the factory registered under name.
func (r *Registry) Kind(name string) (KindFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.kinds[name]
	return f, ok
}

// KindNames returns the registered handler kind names in lexical order.
func (r *Registry) KindNames() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

package schema

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrInvalidID indicates a malformed message identifier
	ErrInvalidID = errors.New("schema: invalid message identifier")
	// ErrInvalidDefinition indicates a definition that cannot be registered
	ErrInvalidDefinition = errors.New("schema: invalid definition")
	// ErrDuplicateDefinition indicates a second definition for the same id
	ErrDuplicateDefinition = errors.New("schema: duplicate definition")
	// ErrUnknownSchema indicates a lookup for an unregistered message
	ErrUnknownSchema = errors.New("schema: unknown message definition")
)

// Registry holds message definitions keyed by id and namespace.
// Definitions must not be modified once registered.
type Registry struct {
	mu   sync.RWMutex
	byID map[ID]*Definition
	byNS map[string]*Definition
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		byID: make(map[ID]*Definition),
		byNS: make(map[string]*Definition),
	}
}

// Default creates a registry holding the built-in definitions
func Default() *Registry {
	reg := NewRegistry()
	for _, def := range Builtin() {
		reg.MustRegister(def)
	}
	return reg
}

// Register validates and adds a definition
func (r *Registry) Register(def *Definition) error {
	if def == nil {
		return fmt.Errorf("%w: nil definition", ErrInvalidDefinition)
	}
	if err := def.compile(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[def.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateDefinition, def.ID)
	}
	r.byID[def.ID] = def
	r.byNS[def.Namespace] = def
	return nil
}

// MustRegister is like Register but panics on error
func (r *Registry) MustRegister(def *Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Lookup returns the definition for an id or namespace URN
func (r *Registry) Lookup(id string) (*Definition, error) {
	parsed, err := ParseID(id)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.byID[parsed]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSchema, parsed)
	}
	return def, nil
}

// LookupNamespace returns the definition bound to a Document namespace
func (r *Registry) LookupNamespace(ns string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.byNS[ns]
	if !ok {
		return nil, fmt.Errorf("%w: namespace %q", ErrUnknownSchema, ns)
	}
	return def, nil
}

// Definitions returns all definitions sorted by id
func (r *Registry) Definitions() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Definition, 0, len(r.byID))
	for _, def := range r.byID {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDs returns all registered ids, sorted
func (r *Registry) IDs() []ID {
	defs := r.Definitions()
	out := make([]ID, len(defs))
	for i, def := range defs {
		out[i] = def.ID
	}
	return out
}

// Versions returns the ids registered for a family such as "camt.053", sorted
func (r *Registry) Versions(family string) []ID {
	var out []ID
	for _, id := range r.IDs() {
		if id.Family() == family {
			out = append(out, id)
		}
	}
	return out
}

// Len returns the number of registered definitions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

package tools

import (
	"github.com/firebase/genkit/go/genkit"

	"github.com/garcomlabs/garcom/internal/log"
)

// Registry holds the tool definitions keyed by name. It is built once at
// startup and read-only afterwards, so lookups need no locking.
type Registry struct {
	byName map[string]*Definition
	names  []string // registration order
}

// NewRegistry creates a registry holding the given definitions.
func NewRegistry(defs ...*Definition) *Registry {
	r := &Registry{byName: make(map[string]*Definition, len(defs))}
	for _, d := range defs {
		r.byName[d.name] = d
		r.names = append(r.names, d.name)
	}
	return r
}

// Lookup returns the tool with the given name.
func (r *Registry) Lookup(name string) (*Definition, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Names returns all registered tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// ApplyOverrides replaces tool descriptions with restaurant-specific text.
// Unknown tool names are dropped with a warning, never silently invoked.
func (r *Registry) ApplyOverrides(overrides map[string]string, logger log.Logger) {
	for name, desc := range overrides {
		d, ok := r.byName[name]
		if !ok {
			logger.Warn("dropping description override for unknown tool", "tool", name)
			continue
		}
		d.description = desc
	}
}

// AttachGenkit registers every tool's schema with the Genkit instance so
// the model sees typed function-calling schemas.
func (r *Registry) AttachGenkit(g *genkit.Genkit) {
	for _, name := range r.names {
		d := r.byName[name]
		d.attach(g, d.description)
	}
}

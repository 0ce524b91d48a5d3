package capability

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry maps capability type keys to implementations.
type Registry struct {
	mu   sync.RWMutex
	caps map[string]Capability
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{caps: make(map[string]Capability)}
}

// NewDefaultRegistry creates a registry populated with the built-in
// capabilities. This bootstrap list is the only registration path; there is
// no runtime scanning.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, c := range []Capability{
		&Input{},
		&Output{},
		&Merge{},
		&Template{},
		&Transform{},
		NewHTTPRequest(),
		NewRSSFeed(),
		NewWebpage(),
	} {
		r.Register(c)
	}
	return r
}

// Register adds a capability under its metadata type key.
func (r *Registry) Register(c Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caps[c.Metadata().Type] = c
}

// Get returns a capability by type key.
func (r *Registry) Get(typeKey string) (Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.caps[typeKey]
	return c, ok
}

// Invoke resolves and calls a capability in one step.
func (r *Registry) Invoke(ctx context.Context, typeKey string, inputs, config map[string]any) (map[string]any, error) {
	c, ok := r.Get(typeKey)
	if !ok {
		return nil, fmt.Errorf("unknown capability: %q", typeKey)
	}
	return c.Invoke(ctx, inputs, config)
}

// List returns all capability metadata sorted by type key.
func (r *Registry) List() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Metadata, 0, len(r.caps))
	for _, c := range r.caps {
		out = append(out, c.Metadata())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Package capability defines the plugin contract node types implement and an
// explicit registry the engine resolves them from. Capabilities are
// registered by a bootstrap list, never discovered by reflection.
package capability

import "context"

// Port is a named, typed input or output slot on a capability.
type Port struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Type            string `json:"type"`
	Required        bool   `json:"required"`
	AcceptsMultiple bool   `json:"accepts_multiple"`
}

// ConfigField declares one configuration key a capability understands.
type ConfigField struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Default     any    `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
}

// Metadata is the declarative surface of a capability: its type key, ordered
// ports, and config fields. The engine's validator and input gatherer depend
// only on this.
type Metadata struct {
	Type        string        `json:"type"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Inputs      []Port        `json:"inputs"`
	Outputs     []Port        `json:"outputs"`
	Config      []ConfigField `json:"config"`
}

// Capability is the invocation contract. Invoke receives the gathered input
// map and the node's config and returns the output map. Implementations
// should honor ctx cancellation where they block, but the engine does not
// force termination.
type Capability interface {
	Metadata() Metadata
	Invoke(ctx context.Context, inputs, config map[string]any) (map[string]any, error)
}

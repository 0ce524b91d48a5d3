package typesys

import (
	"sort"
	"sync"
)

// Registry holds type definitions, compatibility rules, converters, and
// validators. Construct one per engine instance and pass it in; there is no
// process-wide registry.
type Registry struct {
	mu         sync.RWMutex
	types      map[string]TypeDefinition
	rules      []TypeRule // sorted descending by priority
	converters []Converter
	validators map[string]ValidateFunc
}

// NewRegistry returns a registry preloaded with the built-in primitive types
// and default conversion rules.
func NewRegistry() *Registry {
	r := &Registry{
		types:      make(map[string]TypeDefinition),
		validators: make(map[string]ValidateFunc),
	}
	r.registerDefaults()
	return r
}

// NewEmptyRegistry returns a registry with no types or rules, for callers
// that want full control over the type universe.
func NewEmptyRegistry() *Registry {
	return &Registry{
		types:      make(map[string]TypeDefinition),
		validators: make(map[string]ValidateFunc),
	}
}

func (r *Registry) registerDefaults() {
	for _, def := range []TypeDefinition{
		{Name: Any, Category: "primitive"},
		{Name: "string", Category: "primitive"},
		{Name: "number", Category: "primitive"},
		{Name: "boolean", Category: "primitive"},
		{Name: "object", Category: "structured"},
		{Name: "array", Category: "structured"},
		{Name: "integer", BaseType: "number", Category: "primitive"},
		{Name: "text", BaseType: "string", Category: "primitive"},
		{Name: "url", BaseType: "string", Category: "primitive"},
		{Name: "html", BaseType: "text", Category: "document"},
		{Name: "json", BaseType: "object", Category: "structured"},
	} {
		r.RegisterType(def)
	}

	r.RegisterRule(TypeRule{
		SourceType:  "number",
		TargetTypes: []string{"string"},
		Conversion:  ConversionImplicit,
		Priority:    10,
	})
	r.RegisterRule(TypeRule{
		SourceType:  "boolean",
		TargetTypes: []string{"string"},
		Conversion:  ConversionImplicit,
		Priority:    10,
	})
	r.RegisterRule(TypeRule{
		SourceType:    "string",
		TargetTypes:   []string{"number", "boolean"},
		Bidirectional: false,
		Conversion:    ConversionExplicit,
		Priority:      5,
	})
}

// RegisterType adds or replaces a type definition.
func (r *Registry) RegisterType(def TypeDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[def.Name] = def
}

// Type looks up a definition by name.
func (r *Registry) Type(name string) (TypeDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.types[name]
	return def, ok
}

// Types returns all registered definitions sorted by name.
func (r *Registry) Types() []TypeDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TypeDefinition, 0, len(r.types))
	for _, def := range r.types {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RegisterRule adds a compatibility rule, keeping rules sorted descending by
// priority so the first match wins.
func (r *Registry) RegisterRule(rule TypeRule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule)
	sort.SliceStable(r.rules, func(i, j int) bool { return r.rules[i].Priority > r.rules[j].Priority })
}

// Rules returns a copy of the rule list in priority order.
func (r *Registry) Rules() []TypeRule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TypeRule, len(r.rules))
	copy(out, r.rules)
	return out
}

// RegisterConverter adds a standalone converter pair.
func (r *Registry) RegisterConverter(c Converter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.converters = append(r.converters, c)
}

// RegisterValidator installs a custom validator for a type.
func (r *Registry) RegisterValidator(typeName string, fn ValidateFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators[typeName] = fn
}

// IsCompatible reports whether a value of type source may flow into a port of
// type target. Resolution order: identity, the universal type, priority
// rules (including reverse bidirectional matches), converters, base-type
// recursion, ancestry, then shared ancestry.
func (r *Registry) IsCompatible(source, target string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isCompatibleLocked(source, target, make(map[string]bool))
}

func (r *Registry) isCompatibleLocked(source, target string, visiting map[string]bool) bool {
	if source == target {
		return true
	}
	if source == Any || target == Any {
		return true
	}

	for _, rule := range r.rules {
		if rule.matches(source, target) {
			return true
		}
	}
	for _, c := range r.converters {
		if c.matches(source, target) {
			return true
		}
	}

	// Walk up the source's inheritance chain; the guard stops definition
	// cycles from recursing forever.
	if def, ok := r.types[source]; ok && def.BaseType != "" && !visiting[source] {
		visiting[source] = true
		if r.isCompatibleLocked(def.BaseType, target, visiting) {
			return true
		}
	}

	if containsType(r.ancestorsLocked(source), target) {
		return true
	}
	return r.shareAncestorLocked(source, target)
}

// ancestorsLocked returns the base-type chain of a type, nearest first.
func (r *Registry) ancestorsLocked(name string) []string {
	var chain []string
	seen := map[string]bool{name: true}
	cur := name
	for {
		def, ok := r.types[cur]
		if !ok || def.BaseType == "" || seen[def.BaseType] {
			return chain
		}
		chain = append(chain, def.BaseType)
		seen[def.BaseType] = true
		cur = def.BaseType
	}
}

func (r *Registry) shareAncestorLocked(source, target string) bool {
	sa := r.ancestorsLocked(source)
	if len(sa) == 0 {
		return false
	}
	for _, t := range r.ancestorsLocked(target) {
		if containsType(sa, t) {
			return true
		}
	}
	return false
}

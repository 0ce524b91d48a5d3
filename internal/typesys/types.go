package typesys

// Any is the universal port type, compatible with every type in both
// directions.
const Any = "any"

// ConversionType classifies how a value crosses a connection.
type ConversionType string

const (
	ConversionNone     ConversionType = "none"
	ConversionImplicit ConversionType = "implicit"
	ConversionExplicit ConversionType = "explicit"
	ConversionCustom   ConversionType = "custom"
)

// ConvertFunc transforms a value from a rule's source type to its target type.
type ConvertFunc func(any) (any, error)

// ValidateFunc checks a value against a type; it returns validity and an
// optional message describing the failure.
type ValidateFunc func(any) (bool, string)

// TypeDefinition declares a port type. BaseType names at most one parent
// (one-level inheritance per definition; chains form across definitions).
type TypeDefinition struct {
	Name       string         `json:"name"`
	BaseType   string         `json:"base_type,omitempty"`
	Category   string         `json:"category,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// TypeRule declares that values of SourceType may flow to any of TargetTypes.
// Rules are kept sorted descending by Priority; the first match wins.
type TypeRule struct {
	SourceType    string         `json:"source_type"`
	TargetTypes   []string       `json:"target_types"`
	Bidirectional bool           `json:"bidirectional"`
	Conversion    ConversionType `json:"conversion_type"`
	Convert       ConvertFunc    `json:"-"`
	Priority      int            `json:"priority"`
}

func (r TypeRule) matches(source, target string) bool {
	if r.SourceType == source && containsType(r.TargetTypes, target) {
		return true
	}
	if r.Bidirectional && r.SourceType == target && containsType(r.TargetTypes, source) {
		return true
	}
	return false
}

// Converter is a registered standalone conversion between two types.
type Converter struct {
	SourceType    string
	TargetType    string
	Bidirectional bool
	Convert       ConvertFunc
}

func (c Converter) matches(source, target string) bool {
	if c.SourceType == source && c.TargetType == target {
		return true
	}
	return c.Bidirectional && c.SourceType == target && c.TargetType == source
}

func containsType(types []string, name string) bool {
	for _, t := range types {
		if t == name {
			return true
		}
	}
	return false
}

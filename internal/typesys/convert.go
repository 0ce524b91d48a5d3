package typesys

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/flowline/flowline/internal/flow"
)

// truthyStrings is the case-insensitive set of strings coerced to true.
var truthyStrings = map[string]bool{"true": true, "yes": true, "1": true, "y": true}

// Convert transforms data from the source type to the target type. Identical
// types pass through unchanged. A matching rule or converter function takes
// precedence; otherwise the basic coercions apply. Failing everything, a
// ConversionError is returned.
func (r *Registry) Convert(data any, source, target string) (any, error) {
	if source == target {
		return data, nil
	}

	r.mu.RLock()
	var fn ConvertFunc
	for _, rule := range r.rules {
		if rule.matches(source, target) && rule.Convert != nil {
			fn = rule.Convert
			break
		}
	}
	if fn == nil {
		for _, c := range r.converters {
			if c.matches(source, target) && c.Convert != nil {
				fn = c.Convert
				break
			}
		}
	}
	r.mu.RUnlock()

	if fn != nil {
		out, err := fn(data)
		if err != nil {
			return nil, &flow.ConversionError{SourceType: source, TargetType: target, Message: err.Error()}
		}
		return out, nil
	}

	if out, ok := coerce(data, target); ok {
		return out, nil
	}
	return nil, &flow.ConversionError{SourceType: source, TargetType: target}
}

// coerce applies the built-in coercions: anything to string, strings and
// booleans to number, and strings or numbers to boolean.
func coerce(data any, target string) (any, bool) {
	switch target {
	case "string", "text":
		return fmt.Sprintf("%v", data), true
	case "number", "integer":
		switch v := data.(type) {
		case bool:
			if v {
				return float64(1), true
			}
			return float64(0), true
		case int:
			return float64(v), true
		case int64:
			return float64(v), true
		case float64:
			return v, true
		case string:
			n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, false
			}
			return n, true
		}
	case "boolean":
		switch v := data.(type) {
		case bool:
			return v, true
		case string:
			return truthyStrings[strings.ToLower(strings.TrimSpace(v))], true
		case int:
			return v != 0, true
		case int64:
			return v != 0, true
		case float64:
			return v != 0, true
		}
	}
	return nil, false
}

// Validate checks data against a type. A registered custom validator wins;
// otherwise the built-in structural checks for primitives apply, then the
// base type is tried. A type with nothing defined validates everything.
func (r *Registry) Validate(data any, typeName string) (bool, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.validateLocked(data, typeName, make(map[string]bool))
}

func (r *Registry) validateLocked(data any, typeName string, visiting map[string]bool) (bool, string) {
	if fn, ok := r.validators[typeName]; ok {
		valid, msg := fn(data)
		if !valid && msg == "" {
			msg = fmt.Sprintf("value is not a valid %s", typeName)
		}
		return valid, msg
	}

	if valid, msg, checked := structuralCheck(data, typeName); checked {
		return valid, msg
	}

	if def, ok := r.types[typeName]; ok && def.BaseType != "" && !visiting[typeName] {
		visiting[typeName] = true
		return r.validateLocked(data, def.BaseType, visiting)
	}
	return true, ""
}

// structuralCheck covers the primitive types. The third return reports
// whether the type name was recognized at all.
func structuralCheck(data any, typeName string) (bool, string, bool) {
	switch typeName {
	case Any:
		return true, "", true
	case "string":
		_, ok := data.(string)
		return ok, failMsg(ok, typeName), true
	case "number":
		switch data.(type) {
		case int, int32, int64, float32, float64:
			return true, "", true
		}
		return false, failMsg(false, typeName), true
	case "boolean":
		_, ok := data.(bool)
		return ok, failMsg(ok, typeName), true
	case "object":
		_, ok := data.(map[string]any)
		return ok, failMsg(ok, typeName), true
	case "array":
		_, ok := data.([]any)
		return ok, failMsg(ok, typeName), true
	}
	return false, "", false
}

func failMsg(ok bool, typeName string) string {
	if ok {
		return ""
	}
	return fmt.Sprintf("value is not a %s", typeName)
}

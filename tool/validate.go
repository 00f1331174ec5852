package tool

import (
	"fmt"
	"math"
)

// ValidateArguments checks raw invocation arguments against a tool's declared
// inputs. It returns a normalized copy with declared defaults applied, or an
// ArgumentError naming every offending field. Unknown argument keys are
// rejected so caller typos fail loudly instead of being silently dropped.
func ValidateArguments(toolName string, inputs map[string]FieldSpec, args map[string]any) (map[string]any, error) {
	issues := make([]string, 0)
	normalized := make(map[string]any, len(args))

	for key, value := range args {
		spec, ok := inputs[key]
		if !ok {
			issues = append(issues, fmt.Sprintf("%s: unknown argument", key))
			continue
		}
		if value == nil {
			if spec.Required {
				issues = append(issues, fmt.Sprintf("%s: required argument is null", key))
			}
			continue
		}
		coerced, ok := coerceValue(spec, value)
		if !ok {
			issues = append(issues, fmt.Sprintf("%s: expected %s, got %T", key, spec.Type, value))
			continue
		}
		normalized[key] = coerced
	}

	for _, name := range SortedFieldNames(inputs) {
		if _, present := normalized[name]; present {
			continue
		}
		spec := inputs[name]
		if spec.Required {
			if _, supplied := args[name]; !supplied {
				issues = append(issues, fmt.Sprintf("%s: required argument missing", name))
			}
			continue
		}
		if spec.Default != nil {
			normalized[name] = spec.Default
		}
	}

	if len(issues) > 0 {
		return nil, &ArgumentError{Tool: toolName, Issues: issues}
	}
	return normalized, nil
}

// coerceValue checks a raw value against a field type. JSON decoding hands
// every number over as float64, so integer fields accept whole floats and
// report the canonical int64 form.
func coerceValue(spec FieldSpec, value any) (any, bool) {
	switch spec.Type {
	case TypeString:
		s, ok := value.(string)
		return s, ok
	case TypeInteger:
		switch v := value.(type) {
		case int:
			return int64(v), true
		case int64:
			return v, true
		case float64:
			if v != math.Trunc(v) {
				return nil, false
			}
			return int64(v), true
		}
		return nil, false
	case TypeFloat:
		switch v := value.(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		case int64:
			return float64(v), true
		}
		return nil, false
	case TypeBoolean:
		b, ok := value.(bool)
		return b, ok
	case TypeArray:
		items, ok := value.([]any)
		if !ok {
			return nil, false
		}
		if spec.Items == nil {
			return items, true
		}
		out := make([]any, len(items))
		for i, item := range items {
			coerced, ok := coerceValue(*spec.Items, item)
			if !ok {
				return nil, false
			}
			out[i] = coerced
		}
		return out, true
	case TypeObject:
		obj, ok := value.(map[string]any)
		return obj, ok
	case TypeAny:
		return value, true
	}
	return nil, false
}

package tool

import "slices"

// Field type literals used by tool input and output declarations.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeFloat   = "float"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
	TypeAny     = "any"
)

var validFieldTypes = map[string]struct{}{
	TypeString:  {},
	TypeInteger: {},
	TypeFloat:   {},
	TypeBoolean: {},
	TypeArray:   {},
	TypeObject:  {},
	TypeAny:     {},
}

// FieldSpec describes a single input or output field of a tool.
type FieldSpec struct {
	Type        string               `json:"type"`
	Required    bool                 `json:"required,omitempty"`
	Description string               `json:"description,omitempty"`
	Default     any                  `json:"default,omitempty"`
	Items       *FieldSpec           `json:"items,omitempty"`
	Properties  map[string]FieldSpec `json:"properties,omitempty"`
}

func isValidFieldType(typeName string) bool {
	_, ok := validFieldTypes[typeName]
	return ok
}

// SortedFieldNames returns field names in deterministic order.
func SortedFieldNames(fields map[string]FieldSpec) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

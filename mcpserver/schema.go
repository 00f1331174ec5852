package mcpserver

import (
	"encoding/json"

	"github.com/petal-labs/pistil/tool"
)

// inputSchemaJSON renders a tool's input shape as a JSON Schema document for
// the MCP capability advertisement. additionalProperties is false so the
// advertised schema rejects exactly what invocation validation rejects:
// arguments outside the declared shape.
func inputSchemaJSON(fields map[string]tool.FieldSpec) json.RawMessage {
	doc := map[string]any{
		"type":                 "object",
		"properties":           propertyNodes(fields),
		"additionalProperties": false,
	}
	if required := requiredNames(fields); len(required) > 0 {
		doc["required"] = required
	}
	data, _ := json.Marshal(doc)
	return data
}

func propertyNodes(fields map[string]tool.FieldSpec) map[string]any {
	nodes := make(map[string]any, len(fields))
	for name, spec := range fields {
		nodes[name] = propertyNode(spec)
	}
	return nodes
}

func propertyNode(spec tool.FieldSpec) map[string]any {
	node := map[string]any{}
	if t := schemaType(spec.Type); t != "" {
		node["type"] = t
	}
	if spec.Description != "" {
		node["description"] = spec.Description
	}
	if spec.Default != nil {
		node["default"] = spec.Default
	}
	if spec.Items != nil {
		node["items"] = propertyNode(*spec.Items)
	}
	if len(spec.Properties) > 0 {
		node["properties"] = propertyNodes(spec.Properties)
		if required := requiredNames(spec.Properties); len(required) > 0 {
			node["required"] = required
		}
	}
	return node
}

// requiredNames returns the required field names in sorted order so the
// rendered schema is deterministic.
func requiredNames(fields map[string]tool.FieldSpec) []string {
	var required []string
	for _, name := range tool.SortedFieldNames(fields) {
		if fields[name].Required {
			required = append(required, name)
		}
	}
	return required
}

func schemaType(t string) string {
	switch t {
	case tool.TypeString:
		return "string"
	case tool.TypeInteger:
		return "integer"
	case tool.TypeFloat:
		return "number"
	case tool.TypeBoolean:
		return "boolean"
	case tool.TypeArray:
		return "array"
	case tool.TypeObject:
		return "object"
	default:
		// TypeAny: no type constraint.
		return ""
	}
}

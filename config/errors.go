package config

import (
	"fmt"
	"strings"
)

// Machine-readable codes for configuration failures. These surface at startup
// only, never on the per-request path.
const (
	// CodeMissingRequiredField means an enabled tool lacks a required
	// secret or parameter.
	CodeMissingRequiredField = "MISSING_REQUIRED_FIELD"
	// CodeInvalidBoolean means a boolean key held a token outside the
	// accepted vocabulary.
	CodeInvalidBoolean = "INVALID_BOOLEAN"
	// CodeInvalidValue means a typed field held a value that does not
	// parse, such as a non-numeric attempt count.
	CodeInvalidValue = "INVALID_VALUE"
	// CodeDuplicateToolName means two table entries declare the same name.
	CodeDuplicateToolName = "DUPLICATE_TOOL_NAME"
)

// Error is a structured configuration failure tied to a tool and field.
type Error struct {
	Code  string
	Tool  string
	Field string
	Value string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("config: ")
	if e.Tool != "" {
		fmt.Fprintf(&b, "tool %q: ", e.Tool)
	}
	switch e.Code {
	case CodeMissingRequiredField:
		fmt.Fprintf(&b, "missing required field %q", e.Field)
	case CodeInvalidBoolean:
		fmt.Fprintf(&b, "invalid boolean %q", e.Value)
		if e.Field != "" {
			fmt.Fprintf(&b, " for %q", e.Field)
		}
	case CodeInvalidValue:
		fmt.Fprintf(&b, "invalid value %q", e.Value)
		if e.Field != "" {
			fmt.Fprintf(&b, " for %q", e.Field)
		}
	case CodeDuplicateToolName:
		b.WriteString("duplicate tool name")
	default:
		fmt.Fprintf(&b, "%s", e.Code)
	}
	return b.String()
}

func missingFieldError(tool, field string) *Error {
	return &Error{Code: CodeMissingRequiredField, Tool: tool, Field: field}
}

func invalidBooleanError(tool, field, value string) *Error {
	return &Error{Code: CodeInvalidBoolean, Tool: tool, Field: field, Value: value}
}

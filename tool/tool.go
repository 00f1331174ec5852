package tool

import (
	"context"
	"time"

	"github.com/petal-labs/pistil/config"
)

// Tool is a registered, configuration-bound tool. Instances are created by
// BuildRegistry and immutable afterwards.
type Tool struct {
	def     Definition
	cfg     config.ToolConfig
	runtime Runtime
}

// Name returns the tool's registry name.
func (t *Tool) Name() string {
	return t.def.Name
}

// Description returns the human-readable summary advertised to clients.
func (t *Tool) Description() string {
	return t.def.Description
}

// Inputs returns the declared input fields. Callers must treat the map as
// read-only.
func (t *Tool) Inputs() map[string]FieldSpec {
	return t.def.Inputs
}

// Outputs returns the declared output fields. Callers must treat the map as
// read-only.
func (t *Tool) Outputs() map[string]FieldSpec {
	return t.def.Outputs
}

// RedactedConfig returns resolved configuration with sensitive values masked,
// suitable for listings and diagnostics.
func (t *Tool) RedactedConfig() map[string]string {
	return t.cfg.Redacted()
}

// Invoke validates arguments against the declared inputs, then runs the
// bound adapter. Validation failures return before any network I/O.
func (t *Tool) Invoke(ctx context.Context, args map[string]any) (map[string]any, error) {
	normalized, err := ValidateArguments(t.def.Name, t.def.Inputs, args)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	outputs, err := t.runtime.Invoke(ctx, normalized)
	emitInvokeObservation(InvokeObservation{
		Tool:        t.def.Name,
		DurationMS:  elapsedMS(start),
		Success:     err == nil,
		FailureKind: failureKind(err),
	})
	return outputs, err
}

func failureKind(err error) string {
	if err == nil {
		return ""
	}
	return FailureFrom(err).Kind
}

func elapsedMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}

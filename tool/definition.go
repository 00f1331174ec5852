package tool

import (
	"context"

	"github.com/petal-labs/pistil/config"
)

// InvokeFunc executes one invocation with validated, normalized arguments.
type InvokeFunc func(ctx context.Context, args map[string]any) (map[string]any, error)

// ProbeFunc checks upstream reachability. Resolved configuration is captured
// at build time, so probes take only a context.
type ProbeFunc func(ctx context.Context) error

// Runtime is the behavior produced when a definition is bound to resolved
// configuration.
type Runtime struct {
	Invoke InvokeFunc
	// Probe is nil when the upstream offers no cheap reachability check.
	Probe ProbeFunc
}

// Definition declares a tool: its schema, its configuration contract, and the
// builder that binds both into runtime behavior. Definitions are static data;
// nothing about them depends on the environment.
type Definition struct {
	Name        string
	Description string
	Inputs      map[string]FieldSpec
	Outputs     map[string]FieldSpec
	Config      []config.Field
	Build       func(cfg config.ToolConfig) (Runtime, error)
}

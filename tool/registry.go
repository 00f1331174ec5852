package tool

import (
	"fmt"
	"log/slog"

	"github.com/petal-labs/pistil/config"
)

// BuildOptions control registry construction behavior.
type BuildOptions struct {
	// SkipInvalid downgrades invalid enabled-tool configuration from a
	// construction error to a warning; the offending tool is left out.
	// Duplicate definition names always fail: they are table bugs, not
	// operator mistakes.
	SkipInvalid bool
	Logger      *slog.Logger
}

// Registry holds configuration-bound tools. It is frozen once BuildRegistry
// returns, so lookups and listings need no locking.
type Registry struct {
	tools map[string]*Tool
	order []string
}

// BuildRegistry resolves configuration for every definition and binds the
// enabled ones. Construction is the only phase that reads configuration or
// can fail; the returned registry never changes.
func BuildRegistry(defs []Definition, resolver *config.Resolver, opts BuildOptions) (*Registry, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	reg := &Registry{tools: make(map[string]*Tool, len(defs))}
	seen := make(map[string]struct{}, len(defs))
	declared := make([]string, 0, len(defs))

	for _, def := range defs {
		if _, dup := seen[def.Name]; dup {
			return nil, &config.Error{Code: config.CodeDuplicateToolName, Tool: def.Name}
		}
		seen[def.Name] = struct{}{}
		declared = append(declared, def.Name)

		cfg, err := resolver.Resolve(def.Name, def.Config)
		if err != nil {
			if opts.SkipInvalid {
				logger.Warn("skipping tool with invalid configuration", "tool", def.Name, "err", err)
				continue
			}
			return nil, err
		}
		if !cfg.Enabled {
			logger.Debug("tool disabled", "tool", def.Name)
			continue
		}

		if def.Build == nil {
			return nil, fmt.Errorf("tool %q: definition has no builder", def.Name)
		}
		runtime, err := def.Build(cfg)
		if err != nil {
			if opts.SkipInvalid {
				logger.Warn("skipping tool that failed to build", "tool", def.Name, "err", err)
				continue
			}
			return nil, fmt.Errorf("tool %q: build: %w", def.Name, err)
		}
		if runtime.Invoke == nil {
			return nil, fmt.Errorf("tool %q: builder produced no invoker", def.Name)
		}

		reg.tools[def.Name] = &Tool{def: def, cfg: cfg, runtime: runtime}
		reg.order = append(reg.order, def.Name)
		logger.Info("tool registered", "tool", def.Name)
	}

	resolver.WarnUnknownTools(declared)
	return reg, nil
}

// Lookup returns the registered tool with the given name.
func (r *Registry) Lookup(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns registered tools in declaration order.
func (r *Registry) List() []*Tool {
	out := make([]*Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Names returns registered tool names in declaration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.order)
}

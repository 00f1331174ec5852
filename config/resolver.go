package config

import (
	"log/slog"
	"sort"
	"strings"
)

// MaskedValue replaces secret values in any user-facing output.
const MaskedValue = "**********"

// Field declares one config field a tool accepts: its name, whether an
// enabled tool can start without it, a compiled default, and whether the
// value is a secret.
type Field struct {
	Name        string
	Required    bool
	Default     string
	Sensitive   bool
	Description string
}

// ToolConfig is the resolved, validated configuration for one tool. It is
// created once at startup and never mutated afterwards; the tool instance it
// configures is its sole owner.
type ToolConfig struct {
	Tool    string
	Enabled bool
	Secrets map[string]string
	Params  map[string]string
}

// Value returns a field's resolved value regardless of sensitivity.
func (c ToolConfig) Value(field string) string {
	if v, ok := c.Secrets[field]; ok {
		return v
	}
	return c.Params[field]
}

// Redacted returns every resolved field with secret values masked. Safe for
// logs and CLI output.
func (c ToolConfig) Redacted() map[string]string {
	out := make(map[string]string, len(c.Secrets)+len(c.Params))
	for k := range c.Secrets {
		out[k] = MaskedValue
	}
	for k, v := range c.Params {
		out[k] = v
	}
	return out
}

// Resolver turns snapshot lookups into ToolConfig values. It is a pure
// function of the snapshot it was built with; resolving twice with the same
// inputs yields the same outputs.
type Resolver struct {
	snap   *Snapshot
	logger *slog.Logger
}

// NewResolver builds a resolver over a snapshot. A nil logger disables the
// unknown-key warnings.
func NewResolver(snap *Snapshot, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{snap: snap, logger: logger}
}

// Resolve reads one tool's settings. The enabled flag is checked first: a
// disabled tool resolves to ToolConfig{Enabled: false} without any field
// (and in particular any secret) being read. For an enabled tool, every
// declared field resolves through override > env > file > compiled default;
// a required field with no value from any layer is a MISSING_REQUIRED_FIELD
// error. Empty-string values are treated as unset, never silently passed on.
//
// Unknown TOOL_<NAME>_CONFIG__* keys are ignored with a warning: a shared
// environment may carry keys for a newer build, and that must not stop this
// one (the policy is pinned by a test).
func (r *Resolver) Resolve(toolName string, fields []Field) (ToolConfig, error) {
	cfg := ToolConfig{Tool: toolName}

	enabled, err := r.resolveEnabled(toolName)
	if err != nil {
		return ToolConfig{}, err
	}
	if !enabled {
		return cfg, nil
	}
	cfg.Enabled = true
	cfg.Secrets = map[string]string{}
	cfg.Params = map[string]string{}

	for _, field := range fields {
		value, found := r.lookupField(toolName, field.Name)
		if !found {
			value = field.Default
		}
		if value == "" {
			if field.Required {
				return ToolConfig{}, missingFieldError(toolName, field.Name)
			}
			continue
		}
		if field.Sensitive {
			cfg.Secrets[field.Name] = value
		} else {
			cfg.Params[field.Name] = value
		}
	}

	r.warnUnknownFields(toolName, fields)
	return cfg, nil
}

func (r *Resolver) resolveEnabled(toolName string) (bool, error) {
	raw, _, ok := r.snap.Lookup(enabledKey(toolName))
	if !ok || strings.TrimSpace(raw) == "" {
		return false, nil
	}
	enabled, err := ParseBool(raw)
	if err != nil {
		return false, invalidBooleanError(toolName, "enabled", raw)
	}
	return enabled, nil
}

func (r *Resolver) lookupField(toolName, field string) (string, bool) {
	raw, _, ok := r.snap.Lookup(fieldKey(toolName, field))
	if !ok {
		return "", false
	}
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", false
	}
	return value, true
}

// warnUnknownFields logs each TOOL_<NAME>_CONFIG__* key that no declared
// field claims.
func (r *Resolver) warnUnknownFields(toolName string, fields []Field) {
	declared := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		declared[strings.ToUpper(field.Name)] = struct{}{}
	}

	prefix := toolKeyPrefix + strings.ToUpper(toolName) + configKeyMarker
	for _, key := range r.snap.ToolKeys() {
		rest, ok := strings.CutPrefix(key, prefix)
		if !ok || rest == "" {
			continue
		}
		if _, known := declared[rest]; known {
			continue
		}
		r.logger.Warn("ignoring unknown config key",
			"tool", toolName,
			"key", key,
		)
	}
}

// WarnUnknownTools logs each TOOL_* key whose tool segment is not in the
// declared set. Called once after the registry is built.
func (r *Resolver) WarnUnknownTools(declared []string) {
	known := make(map[string]struct{}, len(declared))
	for _, name := range declared {
		known[strings.ToLower(name)] = struct{}{}
	}

	seen := map[string]struct{}{}
	for _, name := range r.snap.ToolNames() {
		if _, ok := known[name]; ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		r.logger.Warn("ignoring configuration for undeclared tool", "tool", name)
	}
}

// Settings are the app-level values read from the reserved keys.
type Settings struct {
	AppName          string
	LogLevel         string
	SkipInvalidTools bool
	HealthCron       string
}

// LoadSettings reads the reserved top-level keys. TOOLS_SKIP_INVALID is the
// explicit opt-in for skip-and-warn registry behavior; it is strict-parsed
// so a typo cannot silently change startup semantics.
func LoadSettings(snap *Snapshot) (Settings, error) {
	settings := Settings{
		AppName:    "pistil",
		LogLevel:   "info",
		HealthCron: "@every 5m",
	}
	if v := strings.TrimSpace(snap.Value(KeyAppName)); v != "" {
		settings.AppName = v
	}
	if v := strings.TrimSpace(snap.Value(KeyLogLevel)); v != "" {
		settings.LogLevel = v
	}
	if v := strings.TrimSpace(snap.Value(KeyHealthCron)); v != "" {
		settings.HealthCron = v
	}
	if raw, _, ok := snap.Lookup(KeyToolsSkipInvalid); ok && strings.TrimSpace(raw) != "" {
		skip, err := ParseBool(raw)
		if err != nil {
			return Settings{}, invalidBooleanError("", KeyToolsSkipInvalid, raw)
		}
		settings.SkipInvalidTools = skip
	}
	return settings, nil
}

// SortedFieldNames is a small helper for deterministic iteration in output
// paths (CLI listings, error details).
func SortedFieldNames(fields []Field) []string {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

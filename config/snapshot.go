// Package config resolves layered per-tool settings into typed config
// objects. All environment access happens in one place: the caller captures
// the process environment once at startup, and every later read is a pure
// lookup against that snapshot.
//
// The key convention is part of the external contract and is preserved
// verbatim:
//
//	TOOL_<NAME>_ENABLED          boolean toggle
//	TOOL_<NAME>_CONFIG__<FIELD>  per-tool secret or parameter
//
// where <NAME> is the tool name upper-cased and <FIELD> is the config field
// upper-cased. An optional file source seeds the same keys with lower
// precedence than the environment.
package config

import (
	"fmt"
	"sort"
	"strings"
)

// Source identifies the layer a value was read from.
type Source string

const (
	SourceOverride Source = "override"
	SourceEnv      Source = "env"
	SourceFile     Source = "file"
)

const (
	toolKeyPrefix    = "TOOL_"
	enabledKeySuffix = "_ENABLED"
	configKeyMarker  = "_CONFIG__"
)

// Reserved top-level keys read by LoadSettings.
const (
	KeyAppName          = "APP_NAME"
	KeyLogLevel         = "LOG_LEVEL"
	KeyConfigFile       = "CONFIG_FILE"
	KeyToolsSkipInvalid = "TOOLS_SKIP_INVALID"
	KeyHealthCron       = "HEALTH_CRON"
)

type layer struct {
	source Source
	values map[string]string
}

// Snapshot is an immutable, ordered view over the configuration layers:
// explicit overrides, then environment, then file. Compiled defaults are
// applied by the Resolver, not stored here.
type Snapshot struct {
	layers []layer
}

// NewSnapshot builds a snapshot from the three external layers. environ uses
// the os.Environ "KEY=VALUE" form; overrides and fileValues are plain maps.
// Keys are normalized to upper case in every layer.
func NewSnapshot(overrides map[string]string, environ []string, fileValues map[string]string) *Snapshot {
	layers := make([]layer, 0, 3)
	if len(overrides) > 0 {
		layers = append(layers, layer{source: SourceOverride, values: normalizeKeys(overrides)})
	}
	if len(environ) > 0 {
		layers = append(layers, layer{source: SourceEnv, values: environMap(environ)})
	}
	if len(fileValues) > 0 {
		layers = append(layers, layer{source: SourceFile, values: normalizeKeys(fileValues)})
	}
	return &Snapshot{layers: layers}
}

// Lookup returns the highest-precedence value for key, with its source.
func (s *Snapshot) Lookup(key string) (string, Source, bool) {
	if s == nil {
		return "", "", false
	}
	normalized := strings.ToUpper(strings.TrimSpace(key))
	for _, l := range s.layers {
		if value, ok := l.values[normalized]; ok {
			return value, l.source, true
		}
	}
	return "", "", false
}

// Value returns the highest-precedence value for key, or the empty string.
func (s *Snapshot) Value(key string) string {
	value, _, _ := s.Lookup(key)
	return value
}

// ToolKeys returns every TOOL_* key present in any layer, sorted.
func (s *Snapshot) ToolKeys() []string {
	if s == nil {
		return nil
	}
	seen := map[string]struct{}{}
	for _, l := range s.layers {
		for key := range l.values {
			if strings.HasPrefix(key, toolKeyPrefix) {
				seen[key] = struct{}{}
			}
		}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// ToolNames returns the distinct tool name segments found in TOOL_* keys,
// lower-cased, sorted. Keys that do not follow the convention are skipped.
func (s *Snapshot) ToolNames() []string {
	seen := map[string]struct{}{}
	for _, key := range s.ToolKeys() {
		if name, ok := toolNameFromKey(key); ok {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// toolNameFromKey extracts the tool segment from a TOOL_* key. Tool names may
// themselves contain underscores, so the parse anchors on the _ENABLED suffix
// or the _CONFIG__ marker rather than splitting on the first underscore.
func toolNameFromKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, toolKeyPrefix)
	if !ok || rest == "" {
		return "", false
	}
	if name, found := strings.CutSuffix(rest, enabledKeySuffix); found && name != "" {
		return strings.ToLower(name), true
	}
	if name, _, found := strings.Cut(rest, configKeyMarker); found && name != "" {
		return strings.ToLower(name), true
	}
	return "", false
}

func enabledKey(toolName string) string {
	return toolKeyPrefix + strings.ToUpper(toolName) + enabledKeySuffix
}

func fieldKey(toolName, field string) string {
	return toolKeyPrefix + strings.ToUpper(toolName) + configKeyMarker + strings.ToUpper(field)
}

func environMap(environ []string) map[string]string {
	values := make(map[string]string, len(environ))
	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			continue
		}
		values[strings.ToUpper(key)] = value
	}
	return values
}

func normalizeKeys(in map[string]string) map[string]string {
	values := make(map[string]string, len(in))
	for key, value := range in {
		values[strings.ToUpper(strings.TrimSpace(key))] = value
	}
	return values
}

// ParseBool parses the fixed boolean vocabulary, case-insensitively:
// true/1/yes/on and false/0/no/off. Any other token is an error.
func ParseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("config: invalid boolean %q", value)
	}
}

package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	projectConfigName = "pistil.yaml"
	homeConfigDir     = ".pistil"
	homeConfigName    = "config.yaml"
)

// fileConfig is the on-disk YAML shape. Every value flattens into the same
// key space the environment uses, so the resolver treats both layers
// identically.
type fileConfig struct {
	AppName          string              `yaml:"app_name"`
	LogLevel         string              `yaml:"log_level"`
	ToolsSkipInvalid any                 `yaml:"tools_skip_invalid"`
	HealthCron       string              `yaml:"health_cron"`
	Tools            map[string]fileTool `yaml:"tools"`
}

type fileTool struct {
	Enabled any            `yaml:"enabled"`
	Config  map[string]any `yaml:"config"`
}

// DiscoverPath resolves the config file location with first-match semantics:
// the explicit path (flag or CONFIG_FILE) if given, else ./pistil.yaml, else
// ~/.pistil/config.yaml. An explicit path that does not exist is an error;
// absent fallback candidates are not.
func DiscoverPath(explicit string) (string, bool, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false, fmt.Errorf("config: resolve working directory: %w", err)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("config: resolve user home: %w", err)
	}
	return discoverPathFrom(explicit, cwd, home)
}

func discoverPathFrom(explicit, cwd, home string) (string, bool, error) {
	explicit = strings.TrimSpace(explicit)

	candidates := make([]string, 0, 2)
	if explicit != "" {
		candidates = append(candidates, filepath.Clean(explicit))
	} else {
		candidates = append(candidates, filepath.Join(cwd, projectConfigName))
		candidates = append(candidates, filepath.Join(home, homeConfigDir, homeConfigName))
	}

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			if explicit != "" {
				return "", false, fmt.Errorf("config: file %q not found: %w", candidate, os.ErrNotExist)
			}
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("config: checking %q: %w", candidate, err)
		}
	}
	return "", false, nil
}

// LoadFile parses a YAML config file into the flattened key map used as the
// snapshot's file layer. ${VAR} references in values are expanded from the
// process environment at load time. An empty path yields an empty layer.
func LoadFile(path string) (map[string]string, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return nil, nil
	}

	data, err := os.ReadFile(clean) // #nosec G304 -- operator-supplied config path.
	if err != nil {
		return nil, fmt.Errorf("config: reading %q: %w", clean, err)
	}
	return flattenFile(data, clean)
}

func flattenFile(data []byte, path string) (map[string]string, error) {
	decoder := yaml.NewDecoder(strings.NewReader(string(data)))
	decoder.KnownFields(true)

	var parsed fileConfig
	if err := decoder.Decode(&parsed); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: parsing %q: %w", path, err)
	}

	values := map[string]string{}
	setScalar := func(key string, raw any) error {
		value, err := scalarString(raw)
		if err != nil {
			return fmt.Errorf("config: %q: %s: %w", path, key, err)
		}
		if value != "" {
			values[key] = os.ExpandEnv(value)
		}
		return nil
	}

	if parsed.AppName != "" {
		values[KeyAppName] = os.ExpandEnv(parsed.AppName)
	}
	if parsed.LogLevel != "" {
		values[KeyLogLevel] = os.ExpandEnv(parsed.LogLevel)
	}
	if parsed.HealthCron != "" {
		values[KeyHealthCron] = os.ExpandEnv(parsed.HealthCron)
	}
	if parsed.ToolsSkipInvalid != nil {
		if err := setScalar(KeyToolsSkipInvalid, parsed.ToolsSkipInvalid); err != nil {
			return nil, err
		}
	}

	for name, entry := range parsed.Tools {
		cleanName := strings.TrimSpace(name)
		if cleanName == "" {
			return nil, fmt.Errorf("config: %q: empty tool name under tools", path)
		}
		if entry.Enabled != nil {
			if err := setScalar(enabledKey(cleanName), entry.Enabled); err != nil {
				return nil, err
			}
		}
		for field, raw := range entry.Config {
			cleanField := strings.TrimSpace(field)
			if cleanField == "" {
				return nil, fmt.Errorf("config: %q: tool %q has an empty config key", path, cleanName)
			}
			if err := setScalar(fieldKey(cleanName, cleanField), raw); err != nil {
				return nil, err
			}
		}
	}
	return values, nil
}

// scalarString renders a YAML scalar as the string the resolver will parse.
// Booleans and numbers keep their literal form; structured values are
// rejected so that nesting mistakes fail loudly.
func scalarString(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case bool:
		if v {
			return "true", nil
		}
		return "false", nil
	case int, int64, uint64, float64:
		return fmt.Sprint(v), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("value must be a scalar, got %T", raw)
	}
}

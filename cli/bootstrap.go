package cli

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/petal-labs/pistil/catalog"
	"github.com/petal-labs/pistil/config"
	"github.com/petal-labs/pistil/logging"
	"github.com/petal-labs/pistil/tool"
)

// bootstrap is everything a command needs after configuration is read: the
// snapshot it was read from, the reserved settings, and a logger at the
// configured level.
type bootstrap struct {
	snapshot *config.Snapshot
	settings config.Settings
	logger   *slog.Logger
}

// loadBootstrap takes the process-wide configuration snapshot. The file path
// comes from the --config flag, then the CONFIG_FILE environment variable,
// then discovery (./pistil.yaml, ~/.pistil/config.yaml). Flag overrides sit
// above the environment, which sits above the file.
func loadBootstrap(configFlag string, overrides map[string]string) (bootstrap, error) {
	explicit := strings.TrimSpace(configFlag)
	if explicit == "" {
		explicit = strings.TrimSpace(os.Getenv(config.KeyConfigFile))
	}

	path, found, err := config.DiscoverPath(explicit)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return bootstrap{}, exitError(exitFileNotFound, "config file not found: %s", explicit)
		}
		return bootstrap{}, exitError(exitRuntime, "locating config file: %v", err)
	}

	var fileValues map[string]string
	if found {
		fileValues, err = config.LoadFile(path)
		if err != nil {
			return bootstrap{}, exitError(exitValidation, "loading %s: %v", path, err)
		}
	}

	snap := config.NewSnapshot(overrides, os.Environ(), fileValues)
	settings, err := config.LoadSettings(snap)
	if err != nil {
		return bootstrap{}, exitError(exitValidation, "%v", err)
	}

	level, err := logging.ParseLevel(settings.LogLevel)
	if err != nil {
		return bootstrap{}, exitError(exitValidation, "%v", err)
	}

	return bootstrap{
		snapshot: snap,
		settings: settings,
		logger:   logging.New(level),
	}, nil
}

// buildRegistry resolves the static catalog against the snapshot and freezes
// the result.
func (b bootstrap) buildRegistry() (*tool.Registry, error) {
	resolver := config.NewResolver(b.snapshot, b.logger)
	registry, err := tool.BuildRegistry(catalog.Definitions(), resolver, tool.BuildOptions{
		SkipInvalid: b.settings.SkipInvalidTools,
		Logger:      b.logger,
	})
	if err != nil {
		return nil, exitError(exitValidation, "building tool registry: %v", err)
	}
	return registry, nil
}

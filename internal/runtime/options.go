package runtime

import (
	"fmt"
	"log/slog"

	"github.com/aurascope/aurascope/internal/bridge"
	"github.com/aurascope/aurascope/internal/config"
	"github.com/aurascope/aurascope/internal/settings"
	"github.com/aurascope/aurascope/internal/settings/memory"
)

// Option is a functional option for configuring an Inspector.
type Option func(*Inspector) error

// WithConfig uses an already-loaded configuration.
func WithConfig(cfg *config.Config) Option {
	return func(i *Inspector) error {
		i.cfg = cfg
		return nil
	}
}

// WithConfigFile loads configuration from the named YAML file.
func WithConfigFile(path string) Option {
	return func(i *Inspector) error {
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load config file: %w", err)
		}
		i.cfg = cfg
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Inspector) error {
		i.logger = logger
		return nil
	}
}

// WithSettingsStore uses a custom settings store instead of the
// configured SQLite file.
func WithSettingsStore(store settings.Store) Option {
	return func(i *Inspector) error {
		i.store = store
		return nil
	}
}

// WithMemorySettings keeps settings in memory for the life of the
// process. Useful for tests and throwaway sessions.
func WithMemorySettings() Option {
	return func(i *Inspector) error {
		i.store = memory.New()
		return nil
	}
}

// WithBridgeClient uses a custom capture bridge client instead of the
// one built from configuration.
func WithBridgeClient(c *bridge.Client) Option {
	return func(i *Inspector) error {
		i.bridgeClient = c
		return nil
	}
}

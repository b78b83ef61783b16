// Package config loads daemon configuration from an optional YAML file
// overlaid with AURASCOPE_-prefixed environment variables. Nested keys
// use a double underscore in the environment, so AURASCOPE_SERVER__PORT
// sets server.port.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Capture   CaptureConfig   `koanf:"capture"`
	Bridge    BridgeConfig    `koanf:"bridge"`
	Settings  SettingsConfig  `koanf:"settings"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Log       LogConfig       `koanf:"log"`
}

type ServerConfig struct {
	Port int `koanf:"port" validate:"gte=1,lte=65535"`
	// ReadTimeout and WriteTimeout are in seconds. WriteTimeout must
	// stay generous; the WebSocket stream writes through it too.
	ReadTimeout  int `koanf:"read_timeout" validate:"gte=1"`
	WriteTimeout int `koanf:"write_timeout" validate:"gte=1"`
}

type CaptureConfig struct {
	// PendingCapacity bounds how many exchanges buffer while no panel
	// is attached.
	PendingCapacity int `koanf:"pending_capacity" validate:"gte=1"`
	// MaxBodyBytes caps a deferred body fetched from the bridge.
	MaxBodyBytes int64 `koanf:"max_body_bytes" validate:"gte=1024"`
}

type BridgeConfig struct {
	// BaseURL is where the capture bridge listens. Empty disables
	// body fetching and reveal forwarding.
	BaseURL   string `koanf:"base_url" validate:"omitempty,url"`
	TimeoutMs int    `koanf:"timeout_ms" validate:"gte=100"`
}

type SettingsConfig struct {
	// DBPath is the SQLite file holding panel settings. Empty keeps
	// settings in memory for the life of the process.
	DBPath string `koanf:"db_path"`
}

type TelemetryConfig struct {
	Enabled bool `koanf:"enabled"`
}

type LogConfig struct {
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
}

// SlogLevel maps the configured level onto slog's scale.
func (l LogConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// defaults are applied for any key the file and environment leave
// unset.
var defaults = map[string]any{
	"server.port":              7381,
	"server.read_timeout":      30,
	"server.write_timeout":     30,
	"capture.pending_capacity": 512,
	"capture.max_body_bytes":   4 << 20,
	"bridge.base_url":          "http://127.0.0.1:7382",
	"bridge.timeout_ms":        5000,
	"settings.db_path":         "aurascope-settings.db",
	"log.level":                "info",
}

var validate = validator.New()

// Load reads configuration from path, overlays the environment, fills
// defaults, and validates the result. An empty path tries config.yaml
// in the working directory and tolerates its absence; a named path
// must exist.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	switch {
	case path != "":
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	default:
		if err := k.Load(file.Provider("config.yaml"), yaml.Parser()); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load config.yaml: %w", err)
			}
		}
	}

	// Environment variables override file config
	if err := k.Load(env.Provider("AURASCOPE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "AURASCOPE_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	for key, val := range defaults {
		if !k.Exists(key) {
			_ = k.Set(key, val)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

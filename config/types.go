package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Ledger selects the address ledger backend.
type Ledger struct {
	// Backend is one of memory, leveldb, sqlite or postgres.
	Backend string `toml:"Backend" yaml:"backend" env:"BACKEND"`
	Path    string `toml:"Path" yaml:"path" env:"PATH"`
	DSN     string `toml:"DSN" yaml:"dsn" env:"DSN"`
}

// HTTP configures the session service.
type HTTP struct {
	ListenAddress string `toml:"ListenAddress" yaml:"listen_address" env:"LISTEN_ADDRESS"`
	// JWTSecret enables bearer authentication on action endpoints when set.
	JWTSecret          string `toml:"JWTSecret" yaml:"jwt_secret" env:"JWT_SECRET"`
	RateLimitPerMinute int    `toml:"RateLimitPerMinute" yaml:"rate_limit_per_minute" env:"RATE_LIMIT_PER_MINUTE"`
	Burst              int    `toml:"Burst" yaml:"burst" env:"BURST"`
}

// Logging configures the structured logger.
type Logging struct {
	Environment string `toml:"Environment" yaml:"environment" env:"ENVIRONMENT"`
	// Level is one of debug, info, warn or error.
	Level string `toml:"Level" yaml:"level" env:"LEVEL"`
	// File, when set, receives a copy of every log line with rotation.
	File       string `toml:"File" yaml:"file" env:"FILE"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `toml:"MaxBackups" yaml:"max_backups" env:"MAX_BACKUPS"`
}

// Telemetry configures OTLP export.
type Telemetry struct {
	Endpoint string `toml:"Endpoint" yaml:"endpoint" env:"ENDPOINT"`
	Insecure bool   `toml:"Insecure" yaml:"insecure" env:"INSECURE"`
	Metrics  bool   `toml:"Metrics" yaml:"metrics" env:"METRICS"`
	Traces   bool   `toml:"Traces" yaml:"traces" env:"TRACES"`
}

// Duration decodes Go duration strings ("2s", "500ms") from TOML, YAML and
// the environment.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML accepts a scalar duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	return d.UnmarshalText([]byte(value.Value))
}

package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// Config is the resolved runtime configuration. Precedence, lowest to
// highest: built-in defaults, policypad.yaml, POLICYPAD_* environment
// variables, command-line flags.
type Config struct {
	// DataDir holds one storage partition per playground database.
	DataDir string `koanf:"data_dir"`

	// StatePath is the SQLite file the registry state persists to.
	StatePath string `koanf:"state_path"`

	// Engine is the embedded engine for new databases: sqlite or duckdb.
	Engine string `koanf:"engine"`

	// Port is the HTTP listen port.
	Port int `koanf:"port"`

	// PolicyURL is the base URL of the policy evaluation service.
	PolicyURL string `koanf:"policy_url"`

	// SessionSecret signs browser session cookies. A random secret is
	// generated per process when empty.
	SessionSecret string `koanf:"session_secret"`

	// Dev mounts the live-reload endpoints used during frontend development.
	Dev bool `koanf:"dev"`

	LogLevel string `koanf:"log_level"`
	Verbose  bool   `koanf:"verbose"`
}

// Validate rejects values the rest of the process cannot work with.
func (c *Config) Validate() error {
	switch c.Engine {
	case "sqlite", "duckdb":
	default:
		return fmt.Errorf("unknown engine %q (expected sqlite or duckdb)", c.Engine)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.PolicyURL == "" {
		return fmt.Errorf("policy_url must not be empty")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// SlogLevel returns the configured log level. Verbose forces debug.
func (c *Config) SlogLevel() slog.Level {
	if c.Verbose {
		return slog.LevelDebug
	}
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir(), nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultDataDir, cfg.DataDir)
	assert.Equal(t, DefaultStatePath, cfg.StatePath)
	assert.Equal(t, DefaultEngine, cfg.Engine)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultPolicyURL, cfg.PolicyURL)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	content := "engine: duckdb\nport: 9000\npolicy_url: http://opa.internal:8181\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0o644))

	cfg, err := Load(dir, nil)
	require.NoError(t, err)

	assert.Equal(t, "duckdb", cfg.Engine)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "http://opa.internal:8181", cfg.PolicyURL)
	// Untouched keys keep their defaults.
	assert.Equal(t, DefaultDataDir, cfg.DataDir)
}

func TestLoadAltExtension(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileNameAlt), []byte("port: 4900\n"), 0o644))

	cfg, err := Load(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 4900, cfg.Port)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("port: 9000\n"), 0o644))
	t.Setenv("POLICYPAD_PORT", "9100")
	t.Setenv("POLICYPAD_LOG_LEVEL", "debug")

	cfg, err := Load(dir, nil)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestFlagsOverrideEverything(t *testing.T) {
	t.Setenv("POLICYPAD_PORT", "9100")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", DefaultPort, "")
	flags.String("engine", DefaultEngine, "")
	require.NoError(t, flags.Parse([]string{"--port", "9200"}))

	cfg, err := Load(t.TempDir(), flags)
	require.NoError(t, err)

	assert.Equal(t, 9200, cfg.Port)
	// The engine flag was never set, so it does not mask lower layers.
	assert.Equal(t, DefaultEngine, cfg.Engine)
}

func TestValidation(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("engine: mysql\n"), 0o644))

	_, err := Load(dir, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown engine")
}

func TestVerboseForcesDebug(t *testing.T) {
	cfg := &Config{LogLevel: "warn", Verbose: true}
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

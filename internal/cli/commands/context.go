package commands

import (
	"context"
	"log/slog"
	"os"

	"github.com/quarrylabs/policypad/internal/config"
)

type configKey struct{}

type loggerKey struct{}

// WithConfig stores the resolved config in the command context.
func WithConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// WithLogger stores the logger in the command context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetConfig retrieves the config from the command context.
func GetConfig(ctx context.Context) *config.Config {
	if c, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return c
	}
	return &config.Config{
		DataDir:   config.DefaultDataDir,
		StatePath: config.DefaultStatePath,
		Engine:    config.DefaultEngine,
		Port:      config.DefaultPort,
		PolicyURL: config.DefaultPolicyURL,
	}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

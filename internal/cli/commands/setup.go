package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/quarrylabs/policypad/internal/config"
	"github.com/quarrylabs/policypad/internal/policy"
	"github.com/quarrylabs/policypad/internal/registry"
	"github.com/quarrylabs/policypad/internal/samples"
	"github.com/quarrylabs/policypad/internal/state"
)

// openStore opens the durable state store, creating its directory first.
func openStore(cfg *config.Config) (*state.SQLiteStore, error) {
	if dir := filepath.Dir(cfg.StatePath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	return state.Open(cfg.StatePath)
}

// buildRegistry assembles the full registry stack: durable store, sample
// catalog, and policy service client.
func buildRegistry(cfg *config.Config, logger *slog.Logger, onCommit func()) (*registry.Registry, *state.SQLiteStore, *samples.Catalog, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	catalog, err := samples.Load()
	if err != nil {
		store.Close()
		return nil, nil, nil, err
	}

	reg, err := registry.New(registry.Config{
		Engine:   cfg.Engine,
		DataDir:  cfg.DataDir,
		Policy:   policy.NewClient(cfg.PolicyURL, logger),
		Store:    store,
		Samples:  catalog,
		Logger:   logger,
		OnCommit: onCommit,
	})
	if err != nil {
		store.Close()
		return nil, nil, nil, err
	}
	return reg, store, catalog, nil
}

package commands

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/policypad/internal/ui"
	"github.com/quarrylabs/policypad/internal/ui/notifier"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the playground server",
		Long: `Start the playground HTTP server.

The server exposes the JSON API under /api and pushes state changes to
connected browsers over server-sent events at /updates.`,
		Example: `  # Start on the default port
  policypad serve

  # Start with DuckDB as the embedded engine
  policypad serve --engine duckdb --port 4900`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := GetConfig(cmd.Context())
			logger := GetLogger(cmd.Context())

			n := notifier.New()
			reg, store, catalog, err := buildRegistry(cfg, logger, n.Broadcast)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			defer func() { _ = reg.Close() }()

			server := ui.NewServer(ui.Config{
				Registry:      reg,
				Catalog:       catalog,
				Port:          cfg.Port,
				SessionSecret: cfg.SessionSecret,
				Logger:        logger,
				Notifier:      n,
				Dev:           cfg.Dev,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return server.Serve(ctx)
		},
	}
}

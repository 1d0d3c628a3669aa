package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// QueryOptions holds options for the query command.
type QueryOptions struct {
	RegoFile    string
	ApplyFilter bool
	Input       string
	Data        string
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query <database> <sql>",
		Short: "Run a one-shot query against a database",
		Long: `Connect to a stored database, run a SQL statement, and print the results.

With --rego-file the policy document is evaluated first and, combined with
--filter, its WHERE fragment is spliced into the statement before it runs.`,
		Example: `  # Plain query
  policypad query orders-04521 "SELECT * FROM products"

  # Query through a policy filter
  policypad query orders-04521 "SELECT * FROM products" \
      --rego-file budget.rego --filter --input '{"budget": "low"}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&opts.RegoFile, "rego-file", "", "Policy document to evaluate before running")
	cmd.Flags().BoolVar(&opts.ApplyFilter, "filter", false, "Splice the evaluated WHERE fragment into the statement")
	cmd.Flags().StringVar(&opts.Input, "input", "", "JSON object for the policy input context")
	cmd.Flags().StringVar(&opts.Data, "data", "", "JSON object for the policy data context")

	return cmd
}

func runQuery(cmd *cobra.Command, opts *QueryOptions, name, query string) error {
	cfg := GetConfig(cmd.Context())
	logger := GetLogger(cmd.Context())
	out := cmd.OutOrStdout()

	reg, store, _, err := buildRegistry(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	defer func() { _ = reg.Close() }()

	ctx := cmd.Context()
	if _, err := reg.Connect(ctx, name); err != nil {
		return err
	}

	if opts.Input != "" || opts.Data != "" {
		if _, err := reg.UpdateContext(ctx, name, opts.Input, opts.Data); err != nil {
			return err
		}
	}

	policyText := ""
	if opts.RegoFile != "" {
		content, err := os.ReadFile(opts.RegoFile)
		if err != nil {
			return fmt.Errorf("failed to read policy document: %w", err)
		}
		policyText = string(content)
	}

	db, err := reg.Execute(ctx, query, policyText, opts.ApplyFilter)
	if err != nil {
		return err
	}

	entry := db.History[len(db.History)-1]
	if entry.StatementWithFilter != entry.Statement {
		_, _ = fmt.Fprintf(out, "Executed: %s\n\n", entry.StatementWithFilter)
	}

	for _, grid := range db.Datagrid {
		renderGrid(out, grid)
	}
	if len(db.Datagrid) == 0 {
		var affected int64
		for _, res := range entry.Results {
			affected += res.AffectedRows
		}
		_, _ = fmt.Fprintf(out, "OK, %d rows affected\n", affected)
	}
	_, _ = fmt.Fprintf(out, "Completed in %dms\n", entry.ExecutionTime)

	return nil
}

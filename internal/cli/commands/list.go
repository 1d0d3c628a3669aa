package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all databases",
		Long:  `List every database in the durable state store with its history size.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := GetConfig(cmd.Context())

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			databases, err := store.LoadAll()
			if err != nil {
				return err
			}
			if len(databases) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No databases yet. Create one with the playground UI or import a sample.")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Name", "Description", "Created", "Tables", "Queries"})

			for _, db := range databases {
				tables := 0
				for _, schema := range db.Schema {
					tables += len(schema.Tables)
				}
				t.AppendRow(table.Row{
					db.Name,
					db.Description,
					db.CreatedAt.Format("2006-01-02 15:04"),
					tables,
					len(db.History),
				})
			}

			t.Render()
			return nil
		},
	}
}

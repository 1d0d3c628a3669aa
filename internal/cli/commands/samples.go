package commands

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/quarrylabs/policypad/internal/samples"
)

// NewSamplesCommand creates the samples command.
func NewSamplesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "samples",
		Short: "List the bundled sample datasets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := samples.Load()
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Key", "Name", "Description"})

			for _, s := range catalog.All() {
				t.AppendRow(table.Row{s.Key, s.Name, s.Description})
			}

			t.Render()
			return nil
		},
	}
}

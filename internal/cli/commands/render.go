package commands

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/quarrylabs/policypad/internal/registry"
)

// renderGrid prints one result set as a bordered table.
func renderGrid(w io.Writer, grid registry.Grid) {
	if len(grid.Rows) == 0 && len(grid.Columns) == 0 {
		_, _ = fmt.Fprintln(w, "(empty result)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(grid.Columns))
	for i, col := range grid.Columns {
		header[i] = col
	}
	t.AppendHeader(header)

	for _, r := range grid.Rows {
		row := make(table.Row, len(r))
		for i, cell := range r {
			row[i] = cell
		}
		t.AppendRow(row)
	}

	t.Render()
	_, _ = fmt.Fprintf(w, "(%d rows)\n", len(grid.Rows))
}

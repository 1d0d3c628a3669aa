package registry

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// buildGrid drains rows into a tabular rendering. The caller's statement has
// already succeeded; scan errors here abort the whole execution.
func buildGrid(rows *sql.Rows) (Grid, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Grid{}, fmt.Errorf("failed to read result columns: %w", err)
	}

	grid := Grid{Columns: cols, Rows: [][]string{}}
	for rows.Next() {
		values := make([]any, len(cols))
		valuePtrs := make([]any, len(cols))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return Grid{}, fmt.Errorf("failed to scan result row: %w", err)
		}

		row := make([]string, len(cols))
		for i, val := range values {
			row[i] = formatValue(val)
		}
		grid.Rows = append(grid.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return Grid{}, fmt.Errorf("error iterating result rows: %w", err)
	}
	return grid, nil
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprintf("%v", v)
}

func newHistoryID() string {
	return uuid.New().String()
}

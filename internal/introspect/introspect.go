// Package introspect discovers the schema of an embedded database session
// and derives a textual entity-relationship diagram from it.
package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// Column describes one column of a discovered table.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	Length   int    `json:"length,omitempty"`
}

// TableType distinguishes base tables from views.
type TableType string

const (
	TypeTable TableType = "table"
	TypeView  TableType = "view"
)

// Table describes one discovered table or view.
type Table struct {
	Name    string    `json:"name"`
	Type    TableType `json:"type"`
	Columns []Column  `json:"columns"`
}

// Schema groups the tables of one database schema.
type Schema struct {
	Name   string  `json:"name"`
	Tables []Table `json:"tables"`
}

// ForeignKey describes one table-to-table relationship.
type ForeignKey struct {
	FromTable  string `json:"from_table"`
	FromColumn string `json:"from_column"`
	ToTable    string `json:"to_table"`
	ToColumn   string `json:"to_column"`
}

// Describe returns the ordered schemas, tables, and columns visible through
// db for the given dialect. The result is fully rebuilt on every call; it is
// never partially updated.
func Describe(ctx context.Context, db *sql.DB, dialect string) ([]Schema, error) {
	switch dialect {
	case "sqlite":
		return describeSQLite(ctx, db)
	case "duckdb":
		return describeDuckDB(ctx, db)
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", dialect)
	}
}

// ForeignKeys returns the discoverable table relationships. DuckDB exposes no
// stable constraint catalog across versions, so its result is always empty.
func ForeignKeys(ctx context.Context, db *sql.DB, dialect string) ([]ForeignKey, error) {
	if dialect != "sqlite" {
		return nil, nil
	}
	return sqliteForeignKeys(ctx, db)
}

func describeSQLite(ctx context.Context, db *sql.DB) ([]Schema, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name, type
		FROM sqlite_master
		WHERE type IN ('table', 'view')
		AND name NOT LIKE 'sqlite_%'
		ORDER BY type, name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []Table
	for rows.Next() {
		var t Table
		var objType string
		if err := rows.Scan(&t.Name, &objType); err != nil {
			return nil, fmt.Errorf("failed to scan table row: %w", err)
		}
		t.Type = TableType(objType)
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}

	for i := range tables {
		cols, err := sqliteColumns(ctx, db, tables[i].Name)
		if err != nil {
			return nil, err
		}
		tables[i].Columns = cols
	}

	return []Schema{{Name: "main", Tables: tables}}, nil
}

func sqliteColumns(ctx context.Context, db *sql.DB, table string) ([]Column, error) {
	// PRAGMA does not support placeholders; the table name comes from
	// sqlite_master, not user input.
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var (
			cid     int
			name    string
			colType string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		declared, length := splitDeclaredType(colType)
		columns = append(columns, Column{
			Name:     name,
			Type:     declared,
			Nullable: notNull == 0,
			Length:   length,
		})
	}
	return columns, rows.Err()
}

func sqliteForeignKeys(ctx context.Context, db *sql.DB) ([]ForeignKey, error) {
	tables, err := db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer tables.Close()

	var names []string
	for tables.Next() {
		var name string
		if err := tables.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := tables.Err(); err != nil {
		return nil, err
	}

	var fks []ForeignKey
	for _, name := range names {
		rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%q)", name))
		if err != nil {
			return nil, fmt.Errorf("failed to read foreign keys of %s: %w", name, err)
		}
		for rows.Next() {
			var (
				id, seq            int
				refTable, from, to string
				onUpdate, onDelete string
				match              string
			)
			if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan foreign key of %s: %w", name, err)
			}
			fks = append(fks, ForeignKey{
				FromTable:  name,
				FromColumn: from,
				ToTable:    refTable,
				ToColumn:   to,
			})
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return fks, nil
}

func describeDuckDB(ctx context.Context, db *sql.DB) ([]Schema, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT c.table_schema, c.table_name, t.table_type,
		       c.column_name, c.data_type, c.is_nullable, c.character_maximum_length
		FROM information_schema.columns c
		JOIN information_schema.tables t
		  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
		WHERE c.table_schema NOT IN ('information_schema', 'pg_catalog')
		ORDER BY c.table_schema, c.table_name, c.ordinal_position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}
	defer rows.Close()

	var (
		schemas []Schema
		curSch  *Schema
		curTab  *Table
	)
	for rows.Next() {
		var (
			schemaName, tableName, tableType string
			col                              Column
			nullable                         string
			maxLen                           sql.NullInt64
		)
		if err := rows.Scan(&schemaName, &tableName, &tableType, &col.Name, &col.Type, &nullable, &maxLen); err != nil {
			return nil, fmt.Errorf("failed to scan column metadata: %w", err)
		}
		col.Nullable = nullable == "YES"
		if maxLen.Valid {
			col.Length = int(maxLen.Int64)
		}

		if curSch == nil || curSch.Name != schemaName {
			schemas = append(schemas, Schema{Name: schemaName})
			curSch = &schemas[len(schemas)-1]
			curTab = nil
		}
		if curTab == nil || curTab.Name != tableName {
			objType := TypeTable
			if strings.Contains(strings.ToUpper(tableType), "VIEW") {
				objType = TypeView
			}
			curSch.Tables = append(curSch.Tables, Table{Name: tableName, Type: objType})
			curTab = &curSch.Tables[len(curSch.Tables)-1]
		}
		curTab.Columns = append(curTab.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}
	return schemas, nil
}

// splitDeclaredType separates a declared length out of types like
// "VARCHAR(20)". Types without a numeric length are returned unchanged.
func splitDeclaredType(declared string) (string, int) {
	open := strings.IndexByte(declared, '(')
	close := strings.LastIndexByte(declared, ')')
	if open < 0 || close < open {
		return declared, 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(declared[open+1 : close]))
	if err != nil {
		return declared, 0
	}
	return strings.TrimSpace(declared[:open]), n
}

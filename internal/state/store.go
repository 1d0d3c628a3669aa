// Package state persists playground databases and their query history to a
// local SQLite file so a restart restores every record.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/quarrylabs/policypad/internal/introspect"
	"github.com/quarrylabs/policypad/internal/policy"
	"github.com/quarrylabs/policypad/internal/registry"
)

// SQLiteStore implements registry.Store on a single SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the store at path and brings its schema up to
// date. Use ":memory:" for a throwaway store.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	// The modernc driver opens one connection per pool slot; a single slot
	// keeps an in-memory store from fragmenting across connections.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping state database: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to configure state database: %w", err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveDatabase upserts the record and replaces its history rows in one
// transaction.
func (s *SQLiteStore) SaveDatabase(db *registry.Database) error {
	if s.db == nil {
		return fmt.Errorf("state database not opened")
	}

	row, err := marshalRecord(db)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO databases
			(name, description, created_at, schema_json, erd, query, rego,
			 input_json, data_json, evaluated_json, filter, datagrid_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			description = excluded.description,
			created_at = excluded.created_at,
			schema_json = excluded.schema_json,
			erd = excluded.erd,
			query = excluded.query,
			rego = excluded.rego,
			input_json = excluded.input_json,
			data_json = excluded.data_json,
			evaluated_json = excluded.evaluated_json,
			filter = excluded.filter,
			datagrid_json = excluded.datagrid_json`,
		row.name, row.description, row.createdAt, row.schemaJSON, row.erd,
		row.query, row.rego, row.inputJSON, row.dataJSON, row.evaluatedJSON,
		row.filter, row.datagridJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert database %s: %w", db.Name, err)
	}

	// History is replaced wholesale; the in-memory record is the source of
	// truth and is always complete.
	if _, err := tx.Exec(`DELETE FROM query_history WHERE database_name = ?`, db.Name); err != nil {
		return fmt.Errorf("failed to clear history for %s: %w", db.Name, err)
	}
	for i, entry := range db.History {
		resultsJSON, err := marshalNullable(entry.Results)
		if err != nil {
			return fmt.Errorf("failed to encode history results: %w", err)
		}
		_, err = tx.Exec(`
			INSERT INTO query_history
				(id, database_name, position, statement, statement_with_filter,
				 created_at, execution_ms, results_json, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.ID, db.Name, i, entry.Statement, entry.StatementWithFilter,
			entry.CreatedAt.UTC().Format(time.RFC3339Nano), entry.ExecutionTime,
			resultsJSON, entry.Error,
		)
		if err != nil {
			return fmt.Errorf("failed to insert history entry: %w", err)
		}
	}

	return tx.Commit()
}

// DeleteDatabase removes the record; history rows cascade.
func (s *SQLiteStore) DeleteDatabase(name string) error {
	if s.db == nil {
		return fmt.Errorf("state database not opened")
	}
	if _, err := s.db.Exec(`DELETE FROM databases WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete database %s: %w", name, err)
	}
	return nil
}

// LoadAll restores every persisted record ordered by creation time.
func (s *SQLiteStore) LoadAll() ([]*registry.Database, error) {
	if s.db == nil {
		return nil, fmt.Errorf("state database not opened")
	}

	rows, err := s.db.Query(`
		SELECT name, description, created_at, schema_json, erd, query, rego,
		       input_json, data_json, evaluated_json, filter, datagrid_json
		FROM databases
		ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to load databases: %w", err)
	}
	defer rows.Close()

	var out []*registry.Database
	for rows.Next() {
		var row record
		err := rows.Scan(&row.name, &row.description, &row.createdAt,
			&row.schemaJSON, &row.erd, &row.query, &row.rego,
			&row.inputJSON, &row.dataJSON, &row.evaluatedJSON,
			&row.filter, &row.datagridJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to scan database row: %w", err)
		}
		db, err := unmarshalRecord(&row)
		if err != nil {
			return nil, err
		}
		out = append(out, db)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating database rows: %w", err)
	}

	for _, db := range out {
		history, err := s.loadHistory(db.Name)
		if err != nil {
			return nil, err
		}
		db.History = history
	}
	return out, nil
}

func (s *SQLiteStore) loadHistory(name string) ([]registry.QueryHistory, error) {
	rows, err := s.db.Query(`
		SELECT id, statement, statement_with_filter, created_at, execution_ms,
		       results_json, error
		FROM query_history
		WHERE database_name = ?
		ORDER BY position`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for %s: %w", name, err)
	}
	defer rows.Close()

	history := []registry.QueryHistory{}
	for rows.Next() {
		var (
			entry       registry.QueryHistory
			createdAt   string
			resultsJSON sql.NullString
		)
		err := rows.Scan(&entry.ID, &entry.Statement, &entry.StatementWithFilter,
			&createdAt, &entry.ExecutionTime, &resultsJSON, &entry.Error)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		entry.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse history timestamp: %w", err)
		}
		if resultsJSON.Valid {
			if err := json.Unmarshal([]byte(resultsJSON.String), &entry.Results); err != nil {
				return nil, fmt.Errorf("failed to decode history results: %w", err)
			}
		}
		history = append(history, entry)
	}
	return history, rows.Err()
}

// record is the flattened column form of a registry.Database.
type record struct {
	name          string
	description   string
	createdAt     string
	schemaJSON    string
	erd           string
	query         string
	rego          string
	inputJSON     string
	dataJSON      string
	evaluatedJSON sql.NullString
	filter        string
	datagridJSON  string
}

func marshalRecord(db *registry.Database) (*record, error) {
	schemaJSON, err := json.Marshal(db.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}
	inputJSON, err := json.Marshal(db.Input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode input: %w", err)
	}
	dataJSON, err := json.Marshal(db.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode data: %w", err)
	}
	datagridJSON, err := json.Marshal(db.Datagrid)
	if err != nil {
		return nil, fmt.Errorf("failed to encode datagrid: %w", err)
	}
	evaluatedJSON, err := marshalNullable(db.Evaluated)
	if err != nil {
		return nil, fmt.Errorf("failed to encode evaluation result: %w", err)
	}

	return &record{
		name:          db.Name,
		description:   db.Description,
		createdAt:     db.CreatedAt.UTC().Format(time.RFC3339Nano),
		schemaJSON:    string(schemaJSON),
		erd:           db.ERD,
		query:         db.Query,
		rego:          db.Rego,
		inputJSON:     string(inputJSON),
		dataJSON:      string(dataJSON),
		evaluatedJSON: evaluatedJSON,
		filter:        db.Filter,
		datagridJSON:  string(datagridJSON),
	}, nil
}

func unmarshalRecord(row *record) (*registry.Database, error) {
	db := &registry.Database{
		Name:        row.name,
		Description: row.description,
		ERD:         row.erd,
		Query:       row.query,
		Rego:        row.rego,
		Filter:      row.filter,
	}

	var err error
	db.CreatedAt, err = time.Parse(time.RFC3339Nano, row.createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse creation timestamp for %s: %w", row.name, err)
	}
	if err := json.Unmarshal([]byte(row.schemaJSON), &db.Schema); err != nil {
		return nil, fmt.Errorf("failed to decode schema for %s: %w", row.name, err)
	}
	if err := json.Unmarshal([]byte(row.inputJSON), &db.Input); err != nil {
		return nil, fmt.Errorf("failed to decode input for %s: %w", row.name, err)
	}
	if err := json.Unmarshal([]byte(row.dataJSON), &db.Data); err != nil {
		return nil, fmt.Errorf("failed to decode data for %s: %w", row.name, err)
	}
	if err := json.Unmarshal([]byte(row.datagridJSON), &db.Datagrid); err != nil {
		return nil, fmt.Errorf("failed to decode datagrid for %s: %w", row.name, err)
	}
	if row.evaluatedJSON.Valid {
		db.Evaluated = &policy.Result{}
		if err := json.Unmarshal([]byte(row.evaluatedJSON.String), db.Evaluated); err != nil {
			return nil, fmt.Errorf("failed to decode evaluation result for %s: %w", row.name, err)
		}
	}
	if db.Schema == nil {
		db.Schema = []introspect.Schema{}
	}
	if db.Input == nil {
		db.Input = map[string]any{}
	}
	if db.Data == nil {
		db.Data = map[string]any{}
	}
	if db.Datagrid == nil {
		db.Datagrid = []registry.Grid{}
	}
	return db, nil
}

// marshalNullable encodes v as JSON, mapping nil values to SQL NULL.
func marshalNullable(v any) (sql.NullString, error) {
	switch val := v.(type) {
	case nil:
		return sql.NullString{}, nil
	case *policy.Result:
		if val == nil {
			return sql.NullString{}, nil
		}
	case []registry.StatementResult:
		if val == nil {
			return sql.NullString{}, nil
		}
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(encoded), Valid: true}, nil
}

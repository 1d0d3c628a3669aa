package session

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

func init() {
	Register("duckdb", func() Session { return NewDuckDBSession() })
}

// DuckDBSession implements Session on the DuckDB engine.
type DuckDBSession struct {
	db     *sql.DB
	config Config
}

// NewDuckDBSession creates an unconnected DuckDB session.
func NewDuckDBSession() *DuckDBSession {
	return &DuckDBSession{}
}

// Connect opens the storage partition for the configured database name.
// Use ":memory:" as the name for an in-memory database.
func (s *DuckDBSession) Connect(ctx context.Context, cfg Config) error {
	path := ""
	if cfg.Name != ":memory:" {
		if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		path = duckdbPartition(cfg.DataDir, cfg.Name)
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	s.db = db
	s.config = cfg
	return nil
}

// Close releases the engine instance.
func (s *DuckDBSession) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Exec runs a statement that returns no rows.
func (s *DuckDBSession) Exec(ctx context.Context, sqlStr string) (sql.Result, error) {
	if s.db == nil {
		return nil, fmt.Errorf("session not connected")
	}
	return s.db.ExecContext(ctx, sqlStr)
}

// Query runs a statement that returns rows.
func (s *DuckDBSession) Query(ctx context.Context, sqlStr string) (*sql.Rows, error) {
	if s.db == nil {
		return nil, fmt.Errorf("session not connected")
	}
	return s.db.QueryContext(ctx, sqlStr)
}

// DB exposes the underlying pool.
func (s *DuckDBSession) DB() *sql.DB { return s.db }

// DialectName identifies the engine's SQL dialect.
func (s *DuckDBSession) DialectName() string { return "duckdb" }

func duckdbPartition(dataDir, name string) string {
	return filepath.Join(dataDir, name+".duckdb")
}

var _ Session = (*DuckDBSession)(nil)

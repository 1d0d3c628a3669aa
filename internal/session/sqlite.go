package session

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // sqlite driver
)

func init() {
	Register("sqlite", func() Session { return NewSQLiteSession() })
}

// SQLiteSession implements Session on the modernc SQLite engine.
type SQLiteSession struct {
	db     *sql.DB
	config Config
}

// NewSQLiteSession creates an unconnected SQLite session.
func NewSQLiteSession() *SQLiteSession {
	return &SQLiteSession{}
}

// Connect opens the storage partition for the configured database name.
func (s *SQLiteSession) Connect(ctx context.Context, cfg Config) error {
	dsn := ":memory:"
	if cfg.Name != ":memory:" {
		if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		dsn = sqlitePartition(cfg.DataDir, cfg.Name)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// One writer; the registry serializes access anyway, and a single
	// connection keeps in-memory sessions coherent.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	s.config = cfg
	return nil
}

// Close releases the engine instance.
func (s *SQLiteSession) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Exec runs a statement that returns no rows.
func (s *SQLiteSession) Exec(ctx context.Context, sqlStr string) (sql.Result, error) {
	if s.db == nil {
		return nil, fmt.Errorf("session not connected")
	}
	return s.db.ExecContext(ctx, sqlStr)
}

// Query runs a statement that returns rows.
func (s *SQLiteSession) Query(ctx context.Context, sqlStr string) (*sql.Rows, error) {
	if s.db == nil {
		return nil, fmt.Errorf("session not connected")
	}
	return s.db.QueryContext(ctx, sqlStr)
}

// DB exposes the underlying pool.
func (s *SQLiteSession) DB() *sql.DB { return s.db }

// DialectName identifies the engine's SQL dialect.
func (s *SQLiteSession) DialectName() string { return "sqlite" }

func sqlitePartition(dataDir, name string) string {
	return filepath.Join(dataDir, name+".db")
}

var _ Session = (*SQLiteSession)(nil)

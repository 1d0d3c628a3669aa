// Package session wraps live embedded-database instances bound to durable
// local storage. At most one session is live per registry; callers must Close
// a session before opening a replacement for the same database name.
package session

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
)

// Config holds what an adapter needs to bind a database name to its storage
// partition.
type Config struct {
	// Engine selects the embedded engine ("sqlite", "duckdb").
	Engine string

	// DataDir is the directory holding one storage partition per database name.
	DataDir string

	// Name is the database name; it doubles as the storage key.
	// Use ":memory:" for an unpersisted session.
	Name string
}

// Session is a live handle to one embedded database instance.
type Session interface {
	// Connect opens the engine against the configured storage partition.
	Connect(ctx context.Context, cfg Config) error

	// Close releases the engine instance and its file handles.
	Close() error

	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, sql string) (sql.Result, error)

	// Query runs a statement that returns rows.
	Query(ctx context.Context, sql string) (*sql.Rows, error)

	// DB exposes the underlying pool for introspection.
	DB() *sql.DB

	// DialectName identifies the engine's SQL dialect.
	DialectName() string
}

// Factory constructs an unconnected session for one engine type.
type Factory func() Session

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
)

// Register makes an engine type available to Open. Called from adapter init
// functions.
func Register(engine string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[engine] = factory
}

// Engines returns the registered engine types, sorted.
func Engines() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownEngineError is returned when Open is asked for an unregistered
// engine type.
type UnknownEngineError struct {
	Engine    string
	Available []string
}

func (e *UnknownEngineError) Error() string {
	return fmt.Sprintf("unknown engine type %q (available: %v)", e.Engine, e.Available)
}

// Open constructs and connects a session for cfg.
func Open(ctx context.Context, cfg Config) (Session, error) {
	registryMu.RLock()
	factory, ok := factories[cfg.Engine]
	registryMu.RUnlock()
	if !ok {
		return nil, &UnknownEngineError{Engine: cfg.Engine, Available: Engines()}
	}

	sess := factory()
	if err := sess.Connect(ctx, cfg); err != nil {
		return nil, err
	}
	return sess, nil
}

package registry

import (
	"time"

	"github.com/quarrylabs/policypad/internal/introspect"
	"github.com/quarrylabs/policypad/internal/policy"
)

// Database is the full per-database state the playground tracks. Records are
// committed wholesale: readers always observe a complete, consistent value.
type Database struct {
	// Name is the unique identifier and storage key. Immutable after creation.
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`

	// Schema and ERD are refreshed together on create/import/connect/reload.
	Schema []introspect.Schema `json:"schema"`
	ERD    string              `json:"erd"`

	// Editor contents.
	Query string `json:"query"`
	Rego  string `json:"rego"`

	// Structured context passed to policy evaluation.
	Input map[string]any `json:"input"`
	Data  map[string]any `json:"data"`

	// Last evaluation outcome.
	Evaluated *policy.Result `json:"evaluated,omitempty"`
	Filter    string         `json:"filter,omitempty"`

	// Datagrid holds one grid per result set of the last successful
	// execution; it is emptied after a failed one.
	Datagrid []Grid `json:"datagrid"`

	// History is append-only; entries are never reordered or truncated.
	History []QueryHistory `json:"history"`
}

// QueryHistory records one executed statement attempt, success or failure.
type QueryHistory struct {
	ID                  string    `json:"id"`
	Statement           string    `json:"statement"`
	StatementWithFilter string    `json:"statementWithFilter"`
	CreatedAt           time.Time `json:"createdAt"`

	// ExecutionTime is wall-clock milliseconds; recorded on failure too.
	ExecutionTime int64 `json:"executionTime"`

	// Results has one entry per executed sub-statement. Mutually exclusive
	// with Error.
	Results []StatementResult `json:"results,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// StatementResult summarizes one executed sub-statement.
type StatementResult struct {
	AffectedRows int64 `json:"affectedRows"`
	TotalRecords int   `json:"totalRecords"`
}

// Grid is a tabular rendering of one result set.
type Grid struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// clone returns a copy of d safe to mutate before committing. Slices that
// the mutation replaces wholesale (schema, datagrid) are shared; history gets
// a fresh backing array so appends never alias a published snapshot.
func (d *Database) clone() *Database {
	c := *d
	c.History = make([]QueryHistory, len(d.History), len(d.History)+1)
	copy(c.History, d.History)
	return &c
}

// Package registry is the state-owning core of the playground. It maps
// database names to their full state, holds at most one live engine session,
// and owns every state transition: create, import, connect, update, remove,
// execute, evaluate, reload.
//
// Commits are atomic from a reader's perspective: every mutation builds an
// updated copy of the affected Database record and publishes it in one swap,
// so a reader never observes a partially-updated record.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/quarrylabs/policypad/internal/compose"
	"github.com/quarrylabs/policypad/internal/introspect"
	"github.com/quarrylabs/policypad/internal/policy"
	"github.com/quarrylabs/policypad/internal/samples"
	"github.com/quarrylabs/policypad/internal/session"
)

// defaultQuery seeds the SQL editor of a freshly created database.
const defaultQuery = "SELECT 1;"

// importNameAttempts bounds the search for an unused generated name.
const importNameAttempts = 100

// PolicyEvaluator is the remote evaluation collaborator.
type PolicyEvaluator interface {
	Evaluate(ctx context.Context, policyText string, input, data map[string]any) (*policy.Result, error)
}

// Store persists the databases mapping. The active session pointer is never
// persisted.
type Store interface {
	SaveDatabase(db *Database) error
	DeleteDatabase(name string) error
	LoadAll() ([]*Database, error)
}

// Config wires the registry's collaborators.
type Config struct {
	// Engine selects the embedded engine for new sessions.
	Engine string

	// DataDir holds one storage partition per database name.
	DataDir string

	// Policy evaluates policy documents. Required for Evaluate/Execute with
	// a policy.
	Policy PolicyEvaluator

	// Store persists state across restarts. Optional; persistence failures
	// are logged, never propagated.
	Store Store

	// Samples resolves import keys. Optional; required for Import.
	Samples *samples.Catalog

	// Clock supplies timestamps and execution timing. Defaults to time.Now.
	Clock func() time.Time

	Logger *slog.Logger

	// OnCommit runs after every committed mutation (UI change notification).
	OnCommit func()

	// OpenSession overrides session construction, for tests.
	OpenSession func(ctx context.Context, name string) (session.Session, error)
}

// active is the single live session pointer.
type active struct {
	name string
	sess session.Session
}

// Registry coordinates sessions, schema, policy evaluation, and history
// across all known databases.
type Registry struct {
	cfg Config

	// opMu serializes mutating operations; stateMu guards the published
	// state so reads never block on an in-flight operation's I/O.
	opMu    sync.Mutex
	stateMu sync.RWMutex

	databases map[string]*Database
	active    *active

	persistWG sync.WaitGroup
}

// New builds a registry and restores the persisted databases mapping. No
// database is auto-connected on restore.
func New(cfg Config) (*Registry, error) {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.OpenSession == nil {
		cfg.OpenSession = func(ctx context.Context, name string) (session.Session, error) {
			return session.Open(ctx, session.Config{Engine: cfg.Engine, DataDir: cfg.DataDir, Name: name})
		}
	}

	r := &Registry{cfg: cfg, databases: make(map[string]*Database)}

	if cfg.Store != nil {
		restored, err := cfg.Store.LoadAll()
		if err != nil {
			return nil, fmt.Errorf("failed to restore registry state: %w", err)
		}
		for _, db := range restored {
			r.databases[db.Name] = db
		}
		if len(restored) > 0 {
			cfg.Logger.Info("restored databases", slog.Int("count", len(restored)))
		}
	}

	return r, nil
}

// Create opens a blank database bound to name's storage partition and makes
// it active.
func (r *Registry) Create(ctx context.Context, name, description string) (*Database, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	if _, exists := r.Get(name); exists {
		return nil, &DuplicateNameError{Name: name}
	}

	sess, err := r.cfg.OpenSession(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to open session for %s: %w", name, err)
	}

	schemas, erd, err := r.refreshSchema(ctx, sess)
	if err != nil {
		_ = sess.Close()
		return nil, err
	}

	r.setActive(name, sess)

	db := &Database{
		Name:        name,
		Description: description,
		CreatedAt:   r.cfg.Clock(),
		Schema:      schemas,
		ERD:         erd,
		Query:       defaultQuery,
		Input:       map[string]any{},
		Data:        map[string]any{},
		Datagrid:    []Grid{},
		History:     []QueryHistory{},
	}
	r.commit(db)
	r.cfg.Logger.Info("database created", slog.String("name", name))
	return db, nil
}

// Import creates a database pre-populated from a sample dataset under a
// generated unique name and makes it active.
func (r *Registry) Import(ctx context.Context, sampleKey, description string) (*Database, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	if r.cfg.Samples == nil {
		return nil, fmt.Errorf("no sample catalog configured")
	}
	sample, ok := r.cfg.Samples.Get(sampleKey)
	if !ok {
		return nil, &NotFoundError{Name: sampleKey}
	}

	name, err := r.generateName(sampleKey)
	if err != nil {
		return nil, err
	}

	sess, err := r.cfg.OpenSession(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to open session for %s: %w", name, err)
	}

	for _, stmt := range compose.Split(sample.Script) {
		if _, err := sess.Exec(ctx, stmt); err != nil {
			_ = sess.Close()
			return nil, fmt.Errorf("failed to seed sample %s: %w", sampleKey, err)
		}
	}

	schemas, erd, err := r.refreshSchema(ctx, sess)
	if err != nil {
		_ = sess.Close()
		return nil, err
	}

	r.setActive(name, sess)

	db := &Database{
		Name:        name,
		Description: description,
		CreatedAt:   r.cfg.Clock(),
		Schema:      schemas,
		ERD:         erd,
		Query:       defaultQuery,
		Input:       map[string]any{},
		Data:        map[string]any{},
		Datagrid:    []Grid{},
		History:     []QueryHistory{},
	}
	if p := sample.Presets; p != nil {
		if p.Query != "" {
			db.Query = strings.TrimRight(p.Query, "\n")
		}
		if p.Rego != "" {
			db.Rego = strings.TrimRight(p.Rego, "\n")
		}
		if p.Input != nil {
			db.Input = p.Input
		}
	}
	r.commit(db)
	r.cfg.Logger.Info("sample imported", slog.String("sample", sampleKey), slog.String("name", name))
	return db, nil
}

// Update mutates display metadata in place and refreshes the creation
// timestamp.
func (r *Registry) Update(ctx context.Context, name, description string) (*Database, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	current, ok := r.Get(name)
	if !ok {
		return nil, &NotFoundError{Name: name}
	}

	db := current.clone()
	db.Description = description
	db.CreatedAt = r.cfg.Clock()
	r.commit(db)
	return db, nil
}

// UpdateContext applies best-effort structured edits to the input/data
// context. Each field is parsed independently; a field that fails to parse
// as JSON leaves the previous structured value untouched and surfaces no
// error.
func (r *Registry) UpdateContext(ctx context.Context, name, inputText, dataText string) (*Database, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	current, ok := r.Get(name)
	if !ok {
		return nil, &NotFoundError{Name: name}
	}

	db := current.clone()
	if parsed, ok := parseObject(inputText); ok {
		db.Input = parsed
	}
	if parsed, ok := parseObject(dataText); ok {
		db.Data = parsed
	}
	r.commit(db)
	return db, nil
}

// Remove deletes the database entry and its durable storage. The active
// session is released only when the removed database is the active one.
// Storage deletion is best-effort: the in-memory state is already committed
// when it runs, and its failure is returned without rolling anything back.
func (r *Registry) Remove(ctx context.Context, name string) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	if _, ok := r.Get(name); !ok {
		return &NotFoundError{Name: name}
	}

	if act := r.currentActive(); act != nil && act.name == name {
		if err := act.sess.Close(); err != nil {
			r.cfg.Logger.Warn("failed to close session", slog.String("name", name), slog.Any("error", err))
		}
		r.stateMu.Lock()
		r.active = nil
		r.stateMu.Unlock()
	}

	r.stateMu.Lock()
	delete(r.databases, name)
	r.stateMu.Unlock()

	if r.cfg.Store != nil {
		r.persistWG.Add(1)
		go func() {
			defer r.persistWG.Done()
			if err := r.cfg.Store.DeleteDatabase(name); err != nil {
				r.cfg.Logger.Error("failed to delete persisted state", slog.String("name", name), slog.Any("error", err))
			}
		}()
	}
	if r.cfg.OnCommit != nil {
		r.cfg.OnCommit()
	}

	r.cfg.Logger.Info("database removed", slog.String("name", name))
	return session.RemoveStorage(r.cfg.DataDir, r.cfg.Engine, name)
}

// Connect opens a fresh session for an existing database, refreshes its
// schema, and makes it active. Any previously active session is closed
// first.
func (r *Registry) Connect(ctx context.Context, name string) (*Database, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	current, ok := r.Get(name)
	if !ok {
		return nil, &NotFoundError{Name: name}
	}

	sess, err := r.cfg.OpenSession(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to open session for %s: %w", name, err)
	}

	schemas, erd, err := r.refreshSchema(ctx, sess)
	if err != nil {
		_ = sess.Close()
		return nil, err
	}

	r.setActive(name, sess)

	db := current.clone()
	db.Schema = schemas
	db.ERD = erd
	r.commit(db)
	r.cfg.Logger.Info("connected", slog.String("name", name))
	return db, nil
}

// Reload re-introspects the active database's schema in place.
func (r *Registry) Reload(ctx context.Context) (*Database, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	act := r.currentActive()
	if act == nil {
		return nil, ErrNoActiveConnection
	}

	schemas, erd, err := r.refreshSchema(ctx, act.sess)
	if err != nil {
		return nil, err
	}

	current, ok := r.Get(act.name)
	if !ok {
		return nil, &NotFoundError{Name: act.name}
	}
	db := current.clone()
	db.Schema = schemas
	db.ERD = erd
	r.commit(db)
	return db, nil
}

// Evaluate sends policyText with the active database's input/data context to
// the evaluation service. On success it commits the policy text, the raw
// result, and the extracted filter fragment. On failure the error is recorded
// as a history entry so the audit trail covers failed attempts, but
// rego/evaluated/filter keep their previous values.
func (r *Registry) Evaluate(ctx context.Context, policyText string) (*policy.Result, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	return r.evaluateLocked(ctx, policyText, "")
}

// evaluateLocked evaluates under opMu. statement names the in-flight SQL for
// the failure history entry; it is empty for standalone evaluation.
func (r *Registry) evaluateLocked(ctx context.Context, policyText, statement string) (*policy.Result, error) {
	act := r.currentActive()
	if act == nil {
		return nil, ErrNoActiveConnection
	}
	current, ok := r.Get(act.name)
	if !ok {
		return nil, &NotFoundError{Name: act.name}
	}
	if r.cfg.Policy == nil {
		return nil, fmt.Errorf("no policy evaluator configured")
	}

	result, err := r.cfg.Policy.Evaluate(ctx, policyText, current.Input, current.Data)
	if err != nil {
		db := current.clone()
		db.History = append(db.History, QueryHistory{
			ID:                  newHistoryID(),
			Statement:           statement,
			StatementWithFilter: statement,
			CreatedAt:           r.cfg.Clock(),
			Error:               err.Error(),
		})
		r.commit(db)
		return nil, err
	}

	db := current.clone()
	db.Rego = policyText
	db.Evaluated = result
	db.Filter = result.Query
	r.commit(db)
	return result, nil
}

// Execute runs query against the active session. When policyText is
// non-empty it is evaluated first and its filter is used; evaluation failure
// aborts the execution. When applyFilter is set the filter fragment is
// spliced into the statement. Both success and failure commit state and
// append exactly one history entry before returning.
func (r *Registry) Execute(ctx context.Context, query, policyText string, applyFilter bool) (*Database, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	act := r.currentActive()
	if act == nil {
		return nil, ErrNoActiveConnection
	}

	filter := ""
	if current, ok := r.Get(act.name); ok {
		filter = current.Filter
	}
	if policyText != "" {
		result, err := r.evaluateLocked(ctx, policyText, query)
		if err != nil {
			return nil, err
		}
		filter = result.Query
	}

	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	statement := query
	if applyFilter {
		statement = compose.Combine(query, filter)
	}

	current, ok := r.Get(act.name)
	if !ok {
		return nil, &NotFoundError{Name: act.name}
	}

	start := r.cfg.Clock()
	results, grids, execErr := r.runStatements(ctx, act.sess, statement)
	elapsed := r.cfg.Clock().Sub(start).Milliseconds()

	db := current.clone()
	db.Query = query
	entry := QueryHistory{
		ID:                  newHistoryID(),
		Statement:           query,
		StatementWithFilter: statement,
		CreatedAt:           start,
		ExecutionTime:       elapsed,
	}

	if execErr != nil {
		db.Datagrid = []Grid{}
		entry.Error = execErr.Error()
		db.History = append(db.History, entry)
		r.commit(db)
		return nil, &ExecutionError{Statement: statement, Err: execErr}
	}

	db.Datagrid = grids
	entry.Results = results
	db.History = append(db.History, entry)
	r.commit(db)
	r.cfg.Logger.Debug("executed",
		slog.String("name", db.Name),
		slog.Int("statements", len(results)),
		slog.Int64("elapsed_ms", elapsed))
	return db, nil
}

// Get returns the committed record for name.
func (r *Registry) Get(name string) (*Database, bool) {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	db, ok := r.databases[name]
	return db, ok
}

// List returns all committed records ordered by creation time, then name.
func (r *Registry) List() []*Database {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	out := make([]*Database, 0, len(r.databases))
	for _, db := range r.databases {
		out = append(out, db)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ActiveName returns the active database name, or "" when none is active.
func (r *Registry) ActiveName() string {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	if r.active == nil {
		return ""
	}
	return r.active.name
}

// Close releases the active session and waits for outstanding persistence
// writes.
func (r *Registry) Close() error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	var err error
	r.stateMu.Lock()
	if r.active != nil {
		err = r.active.sess.Close()
		r.active = nil
	}
	r.stateMu.Unlock()

	r.persistWG.Wait()
	return err
}

// Flush waits for outstanding persistence writes. Intended for tests and
// shutdown paths.
func (r *Registry) Flush() {
	r.persistWG.Wait()
}

// --- internals ---

// setActive closes any previous session before publishing the new pointer.
// Callers hold opMu.
func (r *Registry) setActive(name string, sess session.Session) {
	if prev := r.currentActive(); prev != nil {
		if err := prev.sess.Close(); err != nil {
			r.cfg.Logger.Warn("failed to close previous session",
				slog.String("name", prev.name), slog.Any("error", err))
		}
	}
	r.stateMu.Lock()
	r.active = &active{name: name, sess: sess}
	r.stateMu.Unlock()
}

func (r *Registry) currentActive() *active {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.active
}

// commit publishes db as the new committed record and schedules a
// best-effort persistence write.
func (r *Registry) commit(db *Database) {
	r.stateMu.Lock()
	r.databases[db.Name] = db
	r.stateMu.Unlock()

	if r.cfg.Store != nil {
		r.persistWG.Add(1)
		go func() {
			defer r.persistWG.Done()
			if err := r.cfg.Store.SaveDatabase(db); err != nil {
				r.cfg.Logger.Error("failed to persist state",
					slog.String("name", db.Name), slog.Any("error", err))
			}
		}()
	}
	if r.cfg.OnCommit != nil {
		r.cfg.OnCommit()
	}
}

func (r *Registry) refreshSchema(ctx context.Context, sess session.Session) ([]introspect.Schema, string, error) {
	schemas, err := introspect.Describe(ctx, sess.DB(), sess.DialectName())
	if err != nil {
		return nil, "", fmt.Errorf("failed to introspect schema: %w", err)
	}
	fks, err := introspect.ForeignKeys(ctx, sess.DB(), sess.DialectName())
	if err != nil {
		return nil, "", fmt.Errorf("failed to discover relationships: %w", err)
	}
	return schemas, introspect.ERD(schemas, fks), nil
}

// runStatements executes each sub-statement of script, collecting one
// StatementResult per statement and one Grid per result set.
func (r *Registry) runStatements(ctx context.Context, sess session.Session, script string) ([]StatementResult, []Grid, error) {
	stmts := compose.Split(script)
	results := make([]StatementResult, 0, len(stmts))
	grids := []Grid{}

	for _, stmt := range stmts {
		if compose.ReturnsRows(stmt) {
			rows, err := sess.Query(ctx, stmt)
			if err != nil {
				return nil, nil, err
			}
			grid, err := buildGrid(rows)
			if err != nil {
				return nil, nil, err
			}
			results = append(results, StatementResult{TotalRecords: len(grid.Rows)})
			grids = append(grids, grid)
			continue
		}

		res, err := sess.Exec(ctx, stmt)
		if err != nil {
			return nil, nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			affected = 0
		}
		results = append(results, StatementResult{AffectedRows: affected})
	}
	return results, grids, nil
}

func (r *Registry) generateName(sampleKey string) (string, error) {
	for range importNameAttempts {
		name := fmt.Sprintf("%s-%05d", sampleKey, rand.IntN(100000))
		if _, exists := r.Get(name); !exists {
			return name, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique name for sample %s", sampleKey)
}

// parseObject attempts to parse text as a JSON object. The ok result is
// false for malformed input, in which case callers keep the previous value.
func parseObject(text string) (map[string]any, bool) {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, false
	}
	if parsed == nil {
		parsed = map[string]any{}
	}
	return parsed, true
}

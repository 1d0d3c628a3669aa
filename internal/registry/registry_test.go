package registry

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/policypad/internal/policy"
	"github.com/quarrylabs/policypad/internal/samples"
	"github.com/quarrylabs/policypad/internal/session"
	"github.com/quarrylabs/policypad/internal/testutil"
)

type fakePolicy struct {
	result     *policy.Result
	err        error
	lastPolicy string
	lastInput  map[string]any
	lastData   map[string]any
}

func (f *fakePolicy) Evaluate(_ context.Context, policyText string, input, data map[string]any) (*policy.Result, error) {
	f.lastPolicy = policyText
	f.lastInput = input
	f.lastData = data
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeStore struct {
	mu      sync.Mutex
	saves   []string
	deletes []string
	saveErr error
}

func (s *fakeStore) SaveDatabase(db *Database) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, db.Name)
	return s.saveErr
}

func (s *fakeStore) DeleteDatabase(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, name)
	return nil
}

func (s *fakeStore) LoadAll() ([]*Database, error) { return nil, nil }

func (s *fakeStore) saved() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.saves...)
}

// testClock advances 5ms per call so execution timing is deterministic.
func testClock() func() time.Time {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var calls int
	return func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * 5 * time.Millisecond)
	}
}

func newTestRegistry(t *testing.T, mutate func(*Config)) (*Registry, *fakePolicy) {
	t.Helper()

	catalog, err := samples.Load()
	require.NoError(t, err)

	pol := &fakePolicy{result: &policy.Result{Query: "WHERE products.price <= 500"}}
	cfg := Config{
		Engine:  "sqlite",
		DataDir: t.TempDir(),
		Policy:  pol,
		Samples: catalog,
		Clock:   testClock(),
		Logger:  testutil.NewTestLogger(t),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	reg, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })
	return reg, pol
}

func TestCreateDuplicateName(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)
	ctx := context.Background()

	_, err := reg.Create(ctx, "a", "first")
	require.NoError(t, err)

	_, err = reg.Create(ctx, "a", "second")
	var dupErr *DuplicateNameError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, "a", dupErr.Name)

	assert.Len(t, reg.List(), 1)
}

func TestCreateDefaults(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)

	db, err := reg.Create(context.Background(), "scratch", "a blank db")
	require.NoError(t, err)

	assert.Equal(t, "scratch", db.Name)
	assert.Equal(t, "a blank db", db.Description)
	assert.Equal(t, "SELECT 1;", db.Query)
	assert.Empty(t, db.Rego)
	assert.Empty(t, db.History)
	assert.Contains(t, db.ERD, "erDiagram")
	assert.Equal(t, "scratch", reg.ActiveName())
}

func TestImportSample(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)

	db, err := reg.Import(context.Background(), "orders", "sample data")
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^orders-\d{5}$`), db.Name)
	assert.Equal(t, db.Name, reg.ActiveName())

	// Schema comes from the seed script.
	require.Len(t, db.Schema, 1)
	var tableNames []string
	for _, tbl := range db.Schema[0].Tables {
		tableNames = append(tableNames, tbl.Name)
	}
	assert.Contains(t, tableNames, "customers")
	assert.Contains(t, tableNames, "products")
	assert.Contains(t, tableNames, "orders")

	// Editor presets come from the catalog.
	assert.Contains(t, db.Query, "SELECT * FROM products")
	assert.Contains(t, db.Rego, "package main")
	assert.Equal(t, "Emma Clark", db.Input["user"])
}

func TestImportUnknownSample(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)

	_, err := reg.Import(context.Background(), "nope", "")
	var nfErr *NotFoundError
	assert.ErrorAs(t, err, &nfErr)
}

func TestUpdate(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)
	ctx := context.Background()

	created, err := reg.Create(ctx, "a", "old")
	require.NoError(t, err)

	updated, err := reg.Update(ctx, "a", "new")
	require.NoError(t, err)
	assert.Equal(t, "new", updated.Description)
	assert.True(t, updated.CreatedAt.After(created.CreatedAt))

	_, err = reg.Update(ctx, "missing", "x")
	var nfErr *NotFoundError
	assert.ErrorAs(t, err, &nfErr)
}

func TestUpdateContextBestEffort(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)
	ctx := context.Background()

	_, err := reg.Create(ctx, "a", "")
	require.NoError(t, err)

	db, err := reg.UpdateContext(ctx, "a", `{"user": "Emma Clark"}`, `{"roles": ["admin"]}`)
	require.NoError(t, err)
	assert.Equal(t, "Emma Clark", db.Input["user"])
	assert.Equal(t, []any{"admin"}, db.Data["roles"])

	// Malformed JSON leaves the previous value untouched and raises nothing.
	db, err = reg.UpdateContext(ctx, "a", `{"user": "Em`, `not json`)
	require.NoError(t, err)
	assert.Equal(t, "Emma Clark", db.Input["user"])
	assert.Equal(t, []any{"admin"}, db.Data["roles"])

	_, err = reg.UpdateContext(ctx, "missing", "{}", "{}")
	var nfErr *NotFoundError
	assert.ErrorAs(t, err, &nfErr)
}

func TestRemove(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)
	ctx := context.Background()

	_, err := reg.Create(ctx, "a", "")
	require.NoError(t, err)
	_, err = reg.Create(ctx, "b", "")
	require.NoError(t, err)
	require.Equal(t, "b", reg.ActiveName())

	// Removing a non-active database keeps the active pointer.
	require.NoError(t, reg.Remove(ctx, "a"))
	assert.Equal(t, "b", reg.ActiveName())
	_, ok := reg.Get("a")
	assert.False(t, ok)

	// Removing the active database clears it.
	require.NoError(t, reg.Remove(ctx, "b"))
	assert.Empty(t, reg.ActiveName())

	err = reg.Remove(ctx, "missing")
	var nfErr *NotFoundError
	assert.ErrorAs(t, err, &nfErr)
}

func TestConnectClosesPreviousSession(t *testing.T) {
	var (
		mu     sync.Mutex
		closed []string
	)
	reg, _ := newTestRegistry(t, func(cfg *Config) {
		dataDir := cfg.DataDir
		cfg.OpenSession = func(ctx context.Context, name string) (session.Session, error) {
			sess, err := session.Open(ctx, session.Config{Engine: "sqlite", DataDir: dataDir, Name: name})
			if err != nil {
				return nil, err
			}
			return &closeTracker{Session: sess, name: name, mu: &mu, closed: &closed}, nil
		}
	})
	ctx := context.Background()

	_, err := reg.Create(ctx, "a", "")
	require.NoError(t, err)
	_, err = reg.Create(ctx, "b", "")
	require.NoError(t, err)

	mu.Lock()
	assert.Equal(t, []string{"a"}, closed)
	mu.Unlock()

	_, err = reg.Connect(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", reg.ActiveName())

	mu.Lock()
	assert.Equal(t, []string{"a", "b"}, closed)
	mu.Unlock()

	_, err = reg.Connect(ctx, "missing")
	var nfErr *NotFoundError
	assert.ErrorAs(t, err, &nfErr)
}

type closeTracker struct {
	session.Session
	name   string
	mu     *sync.Mutex
	closed *[]string
}

func (s *closeTracker) Close() error {
	s.mu.Lock()
	*s.closed = append(*s.closed, s.name)
	s.mu.Unlock()
	return s.Session.Close()
}

func TestReload(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)
	ctx := context.Background()

	_, err := reg.Reload(ctx)
	assert.ErrorIs(t, err, ErrNoActiveConnection)

	_, err = reg.Import(ctx, "fruits", "")
	require.NoError(t, err)

	first, err := reg.Reload(ctx)
	require.NoError(t, err)
	second, err := reg.Reload(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.Schema, second.Schema)
	assert.Equal(t, first.ERD, second.ERD)
}

func TestEvaluateCommitsResult(t *testing.T) {
	reg, pol := newTestRegistry(t, nil)
	ctx := context.Background()

	_, err := reg.Evaluate(ctx, "package main")
	assert.ErrorIs(t, err, ErrNoActiveConnection)

	_, err = reg.Create(ctx, "a", "")
	require.NoError(t, err)
	_, err = reg.UpdateContext(ctx, "a", `{"budget": "low"}`, `{}`)
	require.NoError(t, err)

	result, err := reg.Evaluate(ctx, "package main\nfilter := true")
	require.NoError(t, err)
	assert.Equal(t, "WHERE products.price <= 500", result.Query)

	// The active database's context went to the evaluator.
	assert.Equal(t, "low", pol.lastInput["budget"])

	db, ok := reg.Get("a")
	require.True(t, ok)
	assert.Equal(t, "package main\nfilter := true", db.Rego)
	assert.Equal(t, "WHERE products.price <= 500", db.Filter)
	assert.Equal(t, result, db.Evaluated)
}

func TestEvaluateErrorDoesNotMutate(t *testing.T) {
	reg, pol := newTestRegistry(t, nil)
	ctx := context.Background()

	_, err := reg.Create(ctx, "a", "")
	require.NoError(t, err)

	pol.err = &policy.EvaluationError{Code: "invalid", Message: "bad rule"}
	_, err = reg.Evaluate(ctx, "package main\nbroken")

	var evalErr *policy.EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "bad rule", evalErr.Message)

	db, ok := reg.Get("a")
	require.True(t, ok)
	assert.Empty(t, db.Rego)
	assert.Nil(t, db.Evaluated)
	assert.Empty(t, db.Filter)

	// The failed attempt is still part of the audit trail.
	require.Len(t, db.History, 1)
	assert.Equal(t, "bad rule", db.History[0].Error)
	assert.Empty(t, db.History[0].Statement)
	assert.Nil(t, db.History[0].Results)
}

func TestExecuteEmptyQuery(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)
	ctx := context.Background()

	_, err := reg.Execute(ctx, "SELECT 1", "", false)
	assert.ErrorIs(t, err, ErrNoActiveConnection)

	_, err = reg.Create(ctx, "a", "")
	require.NoError(t, err)

	_, err = reg.Execute(ctx, "   \n", "", false)
	assert.ErrorIs(t, err, ErrEmptyQuery)

	db, _ := reg.Get("a")
	assert.Empty(t, db.History)
}

func TestExecuteSuccess(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)
	ctx := context.Background()

	_, err := reg.Create(ctx, "a", "")
	require.NoError(t, err)

	script := "CREATE TABLE t (id INTEGER, label TEXT); INSERT INTO t VALUES (1, 'x'), (2, 'y'); SELECT * FROM t"
	db, err := reg.Execute(ctx, script, "", false)
	require.NoError(t, err)

	assert.Equal(t, script, db.Query)
	require.Len(t, db.Datagrid, 1)
	assert.Equal(t, []string{"id", "label"}, db.Datagrid[0].Columns)
	assert.Equal(t, [][]string{{"1", "x"}, {"2", "y"}}, db.Datagrid[0].Rows)

	require.Len(t, db.History, 1)
	entry := db.History[0]
	assert.Equal(t, script, entry.Statement)
	assert.Equal(t, script, entry.StatementWithFilter)
	assert.Empty(t, entry.Error)
	require.Len(t, entry.Results, 3)
	assert.EqualValues(t, 2, entry.Results[1].AffectedRows)
	assert.Equal(t, 2, entry.Results[2].TotalRecords)
	assert.EqualValues(t, 5, entry.ExecutionTime)
	assert.NotEmpty(t, entry.ID)
}

func TestExecuteFailure(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)
	ctx := context.Background()

	_, err := reg.Create(ctx, "a", "")
	require.NoError(t, err)

	// Leave a datagrid behind so the failure visibly clears it.
	_, err = reg.Execute(ctx, "SELECT 1", "", false)
	require.NoError(t, err)

	_, err = reg.Execute(ctx, "SELECT * FROM does_not_exist", "", false)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)

	db, _ := reg.Get("a")
	assert.Equal(t, "SELECT * FROM does_not_exist", db.Query)
	assert.Empty(t, db.Datagrid)

	require.Len(t, db.History, 2)
	entry := db.History[1]
	assert.NotEmpty(t, entry.Error)
	assert.Nil(t, entry.Results)
	assert.EqualValues(t, 5, entry.ExecutionTime)
}

func TestExecuteWithPolicyFilter(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)
	ctx := context.Background()

	db, err := reg.Import(ctx, "orders", "")
	require.NoError(t, err)
	name := db.Name

	policyText := "package main\nfilter[\"products.price\"] := {\"lte\": 500}"
	db, err = reg.Execute(ctx, "SELECT * FROM products", policyText, true)
	require.NoError(t, err)

	require.Len(t, db.History, 1)
	entry := db.History[0]
	assert.Equal(t, "SELECT * FROM products", entry.Statement)
	assert.Equal(t, "SELECT * FROM products\nWHERE products.price <= 500", entry.StatementWithFilter)

	// Three of the five sample products cost at most 500.
	require.Len(t, db.Datagrid, 1)
	assert.Len(t, db.Datagrid[0].Rows, 3)

	// Evaluation side effects were committed too.
	fresh, _ := reg.Get(name)
	assert.Equal(t, policyText, fresh.Rego)
	assert.Equal(t, "WHERE products.price <= 500", fresh.Filter)
}

func TestExecutePropagatesEvaluationFailure(t *testing.T) {
	reg, pol := newTestRegistry(t, nil)
	ctx := context.Background()

	_, err := reg.Create(ctx, "a", "")
	require.NoError(t, err)

	pol.err = &policy.EvaluationError{Code: "invalid", Message: "bad rule"}
	_, err = reg.Execute(ctx, "SELECT 1", "package main\nbroken", true)

	var evalErr *policy.EvaluationError
	require.ErrorAs(t, err, &evalErr)

	db, _ := reg.Get("a")
	require.Len(t, db.History, 1)
	entry := db.History[0]
	assert.Equal(t, "SELECT 1", entry.Statement)
	assert.Equal(t, "bad rule", entry.Error)
	assert.Nil(t, entry.Results)
	assert.Empty(t, db.Datagrid, "the failed attempt never reached the engine")
}

func TestExecuteReusesStoredFilter(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)
	ctx := context.Background()

	_, err := reg.Import(ctx, "orders", "")
	require.NoError(t, err)

	_, err = reg.Evaluate(ctx, "package main\nfilter := true")
	require.NoError(t, err)

	db, err := reg.Execute(ctx, "SELECT * FROM products", "", true)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM products\nWHERE products.price <= 500",
		db.History[len(db.History)-1].StatementWithFilter)
}

func TestCommitsArePersisted(t *testing.T) {
	store := &fakeStore{}
	reg, _ := newTestRegistry(t, func(cfg *Config) { cfg.Store = store })
	ctx := context.Background()

	_, err := reg.Create(ctx, "a", "")
	require.NoError(t, err)
	require.NoError(t, reg.Remove(ctx, "a"))
	reg.Flush()

	assert.Contains(t, store.saved(), "a")
	store.mu.Lock()
	assert.Equal(t, []string{"a"}, store.deletes)
	store.mu.Unlock()
}

func TestPersistenceFailureDoesNotPropagate(t *testing.T) {
	store := &fakeStore{saveErr: errors.New("disk full")}
	reg, _ := newTestRegistry(t, func(cfg *Config) { cfg.Store = store })

	_, err := reg.Create(context.Background(), "a", "")
	assert.NoError(t, err)
	reg.Flush()

	_, ok := reg.Get("a")
	assert.True(t, ok)
}

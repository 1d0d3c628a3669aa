package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenUnknownEngine(t *testing.T) {
	_, err := Open(context.Background(), Config{Engine: "oracle", Name: ":memory:"})

	var unknownErr *UnknownEngineError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "oracle", unknownErr.Engine)
	assert.Contains(t, unknownErr.Available, "sqlite")
	assert.Contains(t, unknownErr.Available, "duckdb")
}

func TestSQLiteSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	dataDir := t.TempDir()

	sess, err := Open(ctx, Config{Engine: "sqlite", DataDir: dataDir, Name: "playground"})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", sess.DialectName())

	_, err = sess.Exec(ctx, "CREATE TABLE fruits (id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)

	res, err := sess.Exec(ctx, "INSERT INTO fruits (name) VALUES ('apple'), ('pear')")
	require.NoError(t, err)
	affected, err := res.RowsAffected()
	require.NoError(t, err)
	assert.EqualValues(t, 2, affected)

	rows, err := sess.Query(ctx, "SELECT name FROM fruits ORDER BY name")
	require.NoError(t, err)
	var names []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	require.NoError(t, rows.Err())
	require.NoError(t, rows.Close())
	assert.Equal(t, []string{"apple", "pear"}, names)

	// The storage partition is keyed by name.
	_, err = os.Stat(filepath.Join(dataDir, "playground.db"))
	assert.NoError(t, err)

	require.NoError(t, sess.Close())
}

func TestSQLiteInMemorySession(t *testing.T) {
	ctx := context.Background()

	sess, err := Open(ctx, Config{Engine: "sqlite", Name: ":memory:"})
	require.NoError(t, err)
	defer sess.Close()

	_, err = sess.Exec(ctx, "CREATE TABLE t (id INTEGER)")
	require.NoError(t, err)
	_, err = sess.Exec(ctx, "INSERT INTO t VALUES (1)")
	require.NoError(t, err)

	var count int
	require.NoError(t, sess.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM t").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestRemoveStorage(t *testing.T) {
	ctx := context.Background()
	dataDir := t.TempDir()

	sess, err := Open(ctx, Config{Engine: "sqlite", DataDir: dataDir, Name: "doomed"})
	require.NoError(t, err)
	_, err = sess.Exec(ctx, "CREATE TABLE t (id INTEGER)")
	require.NoError(t, err)
	require.NoError(t, sess.Close())

	require.NoError(t, RemoveStorage(dataDir, "sqlite", "doomed"))
	_, err = os.Stat(filepath.Join(dataDir, "doomed.db"))
	assert.True(t, os.IsNotExist(err))

	// Removing an absent partition is not an error.
	assert.NoError(t, RemoveStorage(dataDir, "sqlite", "doomed"))

	var unknownErr *UnknownEngineError
	assert.ErrorAs(t, RemoveStorage(dataDir, "oracle", "x"), &unknownErr)
}

package ui

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/policypad/internal/registry"
	"github.com/quarrylabs/policypad/internal/samples"
	"github.com/quarrylabs/policypad/internal/testutil"
)

func newTestHandler(t *testing.T, dev bool) http.Handler {
	t.Helper()

	catalog, err := samples.Load()
	require.NoError(t, err)

	reg, err := registry.New(registry.Config{
		Engine:  "sqlite",
		DataDir: t.TempDir(),
		Samples: catalog,
		Logger:  testutil.NewTestLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	server := NewServer(Config{
		Registry: reg,
		Catalog:  catalog,
		Logger:   testutil.NewTestLogger(t),
		Dev:      dev,
	})
	return server.Handler()
}

func TestDevReloadEndpointsGated(t *testing.T) {
	srv := httptest.NewServer(newTestHandler(t, false))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/hotreload")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDevReloadEndpointsMounted(t *testing.T) {
	srv := httptest.NewServer(newTestHandler(t, true))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/hotreload")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

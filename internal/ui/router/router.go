// Package router sets up HTTP routes for the playground server.
package router

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/quarrylabs/policypad/internal/registry"
	"github.com/quarrylabs/policypad/internal/samples"
	"github.com/quarrylabs/policypad/internal/ui/features/databases"
	"github.com/quarrylabs/policypad/internal/ui/features/updates"
	"github.com/quarrylabs/policypad/internal/ui/notifier"
)

// SetupRoutes configures all routes for the playground server.
func SetupRoutes(
	router chi.Router,
	reg *registry.Registry,
	catalog *samples.Catalog,
	sessionStore *sessions.CookieStore,
	notify *notifier.Notifier,
	isDev bool,
) {
	if isDev {
		setupReload(router)
	}

	databases.SetupRoutes(router, reg, catalog, sessionStore)
	updates.SetupRoutes(router, reg, notify)
}

// setupReload wires the dev-mode live reload pair: /reload is held open by
// the browser, /hotreload is hit by the asset build to trigger it.
func setupReload(router chi.Router) {
	reloadChan := make(chan struct{}, 1)
	var hotReloadOnce sync.Once

	router.Get("/reload", func(w http.ResponseWriter, r *http.Request) {
		sse := datastar.NewSSE(w, r)
		reload := func() { _ = sse.ExecuteScript("window.location.reload()") }
		hotReloadOnce.Do(reload)
		select {
		case <-reloadChan:
			reload()
		case <-r.Context().Done():
		}
	})

	router.Get("/hotreload", func(w http.ResponseWriter, _ *http.Request) {
		select {
		case reloadChan <- struct{}{}:
		default:
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

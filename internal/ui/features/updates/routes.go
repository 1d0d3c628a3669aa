package updates

import (
	"github.com/go-chi/chi/v5"

	"github.com/quarrylabs/policypad/internal/registry"
	"github.com/quarrylabs/policypad/internal/ui/notifier"
)

// SetupRoutes mounts the SSE update stream.
func SetupRoutes(router chi.Router, reg *registry.Registry, notify *notifier.Notifier) {
	h := NewHandlers(reg, notify)
	router.Get("/updates", h.Updates)
}

package databases

import (
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"

	"github.com/quarrylabs/policypad/internal/registry"
	"github.com/quarrylabs/policypad/internal/samples"
)

// SetupRoutes mounts the JSON API under /api.
func SetupRoutes(router chi.Router, reg *registry.Registry, catalog *samples.Catalog, sessionStore sessions.Store) {
	h := NewHandlers(reg, catalog, sessionStore)

	router.Route("/api", func(r chi.Router) {
		r.Get("/samples", h.Samples)
		r.Get("/session", h.Session)

		r.Route("/databases", func(r chi.Router) {
			r.Get("/", h.List)
			r.Post("/", h.Create)
			r.Post("/import", h.Import)

			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", h.Get)
				r.Patch("/", h.Update)
				r.Delete("/", h.Remove)
				r.Get("/history", h.History)
				r.Patch("/context", h.UpdateContext)
				r.Post("/connect", h.Connect)
			})
		})

		r.Route("/active", func(r chi.Router) {
			r.Get("/", h.Active)
			r.Post("/evaluate", h.Evaluate)
			r.Post("/execute", h.Execute)
			r.Post("/reload", h.Reload)
		})
	})
}

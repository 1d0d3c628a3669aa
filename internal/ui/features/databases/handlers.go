// Package databases exposes the playground's JSON API: database lifecycle,
// policy evaluation, and query execution against the active database.
package databases

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"

	"github.com/quarrylabs/policypad/internal/policy"
	"github.com/quarrylabs/policypad/internal/registry"
	"github.com/quarrylabs/policypad/internal/samples"
)

const sessionName = "policypad"

// Handlers provides the JSON API handlers.
type Handlers struct {
	reg          *registry.Registry
	catalog      *samples.Catalog
	sessionStore sessions.Store
}

// NewHandlers creates a Handlers instance.
func NewHandlers(reg *registry.Registry, catalog *samples.Catalog, sessionStore sessions.Store) *Handlers {
	return &Handlers{reg: reg, catalog: catalog, sessionStore: sessionStore}
}

// List returns all databases ordered by creation time.
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listResponse{
		Databases: h.reg.List(),
		Active:    h.reg.ActiveName(),
	})
}

// Create opens a blank database and makes it active.
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "name must not be empty")
		return
	}

	db, err := h.reg.Create(r.Context(), req.Name, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	h.rememberDatabase(w, r, db.Name)
	writeJSON(w, http.StatusCreated, db)
}

// Import creates a database from a sample dataset and makes it active.
func (h *Handlers) Import(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	db, err := h.reg.Import(r.Context(), req.Sample, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	h.rememberDatabase(w, r, db.Name)
	writeJSON(w, http.StatusCreated, db)
}

// Get returns a single database record.
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	db, ok := h.reg.Get(name)
	if !ok {
		writeError(w, &registry.NotFoundError{Name: name})
		return
	}
	writeJSON(w, http.StatusOK, db)
}

// History returns a database's query history, oldest first.
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	db, ok := h.reg.Get(name)
	if !ok {
		writeError(w, &registry.NotFoundError{Name: name})
		return
	}
	history := db.History
	if history == nil {
		history = []registry.QueryHistory{}
	}
	writeJSON(w, http.StatusOK, history)
}

// Update changes a database's description.
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	db, err := h.reg.Update(r.Context(), chi.URLParam(r, "name"), req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, db)
}

// UpdateContext applies the input/data editor panes. Panes that do not parse
// as JSON objects keep their previous value.
func (h *Handlers) UpdateContext(w http.ResponseWriter, r *http.Request) {
	var req contextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	db, err := h.reg.UpdateContext(r.Context(), chi.URLParam(r, "name"), req.Input, req.Data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, db)
}

// Remove deletes a database and its storage.
func (h *Handlers) Remove(w http.ResponseWriter, r *http.Request) {
	if err := h.reg.Remove(r.Context(), chi.URLParam(r, "name")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Connect makes an existing database the active one.
func (h *Handlers) Connect(w http.ResponseWriter, r *http.Request) {
	db, err := h.reg.Connect(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	h.rememberDatabase(w, r, db.Name)
	writeJSON(w, http.StatusOK, db)
}

// Active returns the active database record.
func (h *Handlers) Active(w http.ResponseWriter, r *http.Request) {
	name := h.reg.ActiveName()
	if name == "" {
		writeError(w, registry.ErrNoActiveConnection)
		return
	}
	db, ok := h.reg.Get(name)
	if !ok {
		writeError(w, &registry.NotFoundError{Name: name})
		return
	}
	writeJSON(w, http.StatusOK, db)
}

// Evaluate runs the policy document against the active database's context.
func (h *Handlers) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	result, err := h.reg.Evaluate(r.Context(), req.Rego)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Execute runs SQL against the active database, optionally evaluating a
// policy first and splicing its filter into the statement.
func (h *Handlers) Execute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	db, err := h.reg.Execute(r.Context(), req.Query, req.Rego, req.ApplyFilter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, db)
}

// Reload re-introspects the active database's schema.
func (h *Handlers) Reload(w http.ResponseWriter, r *http.Request) {
	db, err := h.reg.Reload(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, db)
}

// Samples lists the bundled sample datasets.
func (h *Handlers) Samples(w http.ResponseWriter, r *http.Request) {
	infos := []sampleInfo{}
	for _, s := range h.catalog.All() {
		infos = append(infos, sampleInfo{Key: s.Key, Name: s.Name, Description: s.Description})
	}
	writeJSON(w, http.StatusOK, infos)
}

// Session returns the browser's remembered database alongside the server's
// active one.
func (h *Handlers) Session(w http.ResponseWriter, r *http.Request) {
	resp := sessionResponse{Active: h.reg.ActiveName()}
	if sess, err := h.sessionStore.Get(r, sessionName); err == nil {
		if last, ok := sess.Values["lastDatabase"].(string); ok {
			resp.LastDatabase = last
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// rememberDatabase stores the database name in the browser session so the UI
// can restore it on the next visit.
func (h *Handlers) rememberDatabase(w http.ResponseWriter, r *http.Request, name string) {
	sess, err := h.sessionStore.Get(r, sessionName)
	if err != nil {
		// A stale or tampered cookie yields a fresh session alongside the
		// error; keep going with it.
		if sess == nil {
			return
		}
	}
	sess.Values["lastDatabase"] = name
	_ = sess.Save(r, w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

// writeError maps the registry and policy error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var (
		dupErr   *registry.DuplicateNameError
		nfErr    *registry.NotFoundError
		evalErr  *policy.EvaluationError
		transErr *policy.TransportError
		execErr  *registry.ExecutionError
	)
	resp := errorResponse{Error: err.Error()}
	status := http.StatusInternalServerError

	switch {
	case errors.As(err, &dupErr):
		status = http.StatusConflict
	case errors.As(err, &nfErr):
		status = http.StatusNotFound
	case errors.Is(err, registry.ErrEmptyQuery):
		status = http.StatusBadRequest
	case errors.Is(err, registry.ErrNoActiveConnection):
		status = http.StatusConflict
	case errors.As(err, &evalErr):
		status = http.StatusUnprocessableEntity
		resp.Code = evalErr.Code
	case errors.As(err, &transErr):
		status = http.StatusBadGateway
	case errors.As(err, &execErr):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, resp)
}

// Package updates streams registry change notifications to the browser over
// server-sent events.
package updates

import (
	"encoding/json"
	"net/http"

	"github.com/starfederation/datastar-go/datastar"

	"github.com/quarrylabs/policypad/internal/registry"
	"github.com/quarrylabs/policypad/internal/ui/notifier"
)

// signals is the frontend signal patch sent on every registry change.
type signals struct {
	Active    string   `json:"active"`
	Databases []string `json:"databases"`
}

// Handlers streams update pings as datastar signal patches.
type Handlers struct {
	reg    *registry.Registry
	notify *notifier.Notifier
}

// NewHandlers creates a Handlers instance.
func NewHandlers(reg *registry.Registry, notify *notifier.Notifier) *Handlers {
	return &Handlers{reg: reg, notify: notify}
}

// Updates holds the connection open, pushing the current registry summary
// immediately and again on every committed change.
func (h *Handlers) Updates(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	ch := h.notify.Subscribe()
	defer h.notify.Unsubscribe(ch)

	if err := h.push(sse); err != nil {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ch:
			if err := h.push(sse); err != nil {
				return
			}
		}
	}
}

func (h *Handlers) push(sse *datastar.ServerSentEventGenerator) error {
	sig := signals{
		Active:    h.reg.ActiveName(),
		Databases: []string{},
	}
	for _, db := range h.reg.List() {
		sig.Databases = append(sig.Databases, db.Name)
	}

	encoded, err := json.Marshal(sig)
	if err != nil {
		return err
	}
	return sse.PatchSignals(encoded)
}

package databases

import "github.com/quarrylabs/policypad/internal/registry"

// createRequest creates a new blank database.
type createRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// importRequest creates a database from a bundled sample dataset.
type importRequest struct {
	Sample      string `json:"sample"`
	Description string `json:"description"`
}

type updateRequest struct {
	Description string `json:"description"`
}

// contextRequest carries the raw editor text of both context panes. Each
// field is applied independently and only when it parses as a JSON object.
type contextRequest struct {
	Input string `json:"input"`
	Data  string `json:"data"`
}

type evaluateRequest struct {
	Rego string `json:"rego"`
}

type executeRequest struct {
	Query       string `json:"query"`
	Rego        string `json:"rego"`
	ApplyFilter bool   `json:"applyFilter"`
}

// listResponse is the payload of GET /api/databases.
type listResponse struct {
	Databases []*registry.Database `json:"databases"`
	Active    string               `json:"active"`
}

type sampleInfo struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type sessionResponse struct {
	LastDatabase string `json:"lastDatabase"`
	Active       string `json:"active"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Package policy sends policy documents to the remote evaluation service and
// interprets its structured responses. Evaluation itself is delegated; this
// package only shapes requests and classifies outcomes.
package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-resty/resty/v2"
)

// conditionsPath is the preview endpoint that turns a policy document into a
// structured filter.
const conditionsPath = "/v0/preview/conditions"

// mainModule is the module name the service expects the submitted policy
// under.
const mainModule = "main.rego"

// Request is the evaluation request body.
type Request struct {
	Input       map[string]any    `json:"input"`
	Data        map[string]any    `json:"data"`
	RegoModules map[string]string `json:"rego_modules"`
}

// Result is a successful evaluation outcome. Query holds the SQL filter
// fragment, of the literal form "WHERE <condition>", when the policy defines
// one. Extra carries the full raw result object, including any outputs
// beyond the filter (masks and the like).
type Result struct {
	Query string
	Extra map[string]any
}

// MarshalJSON serializes the raw result object, so a stored or served result
// carries every policy output, not just the filter.
func (r Result) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Extra)+1)
	for k, v := range r.Extra {
		m[k] = v
	}
	if r.Query != "" {
		m["query"] = r.Query
	}
	return json.Marshal(m)
}

// UnmarshalJSON is the inverse of MarshalJSON; the filter is lifted back out
// of the raw object.
func (r *Result) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	r.Extra = m
	r.Query = ""
	if q, ok := m["query"].(string); ok {
		r.Query = q
	}
	return nil
}

// response is the raw wire shape: either a result or a structured error.
type response struct {
	Result  map[string]any `json:"result"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
}

// EvaluationError reports a structured error from the evaluation service
// (for example a policy compile failure).
type EvaluationError struct {
	Code    string
	Message string
}

func (e *EvaluationError) Error() string { return e.Message }

// TransportError reports a non-success HTTP status or an unreachable service.
type TransportError struct {
	Status string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("policy service request failed: %s", e.Status)
}

// Client evaluates policy documents against the remote service.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

// NewClient creates a client for the evaluation service at baseURL.
// No timeout is imposed here; one may be configured on the transport.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:   resty.New().SetBaseURL(baseURL),
		logger: logger,
	}
}

// Evaluate submits policyText with the given input and data context and
// returns the structured result. A structured service error yields
// *EvaluationError; an unreachable service or non-success status yields
// *TransportError.
func (c *Client) Evaluate(ctx context.Context, policyText string, input, data map[string]any) (*Result, error) {
	if input == nil {
		input = map[string]any{}
	}
	if data == nil {
		data = map[string]any{}
	}

	var body response
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(Request{
			Input:       input,
			Data:        data,
			RegoModules: map[string]string{mainModule: policyText},
		}).
		SetResult(&body).
		SetError(&body).
		Post(conditionsPath)
	if err != nil {
		return nil, &TransportError{Status: err.Error()}
	}

	if body.Code != "" {
		c.logger.Debug("policy evaluation rejected",
			slog.String("code", body.Code), slog.String("message", body.Message))
		return nil, &EvaluationError{Code: body.Code, Message: body.Message}
	}

	if !resp.IsSuccess() {
		return nil, &TransportError{Status: resp.Status()}
	}

	result := &Result{Extra: body.Result}
	if q, ok := body.Result["query"].(string); ok {
		result.Query = q
	}

	c.logger.Debug("policy evaluated", slog.Bool("has_filter", result.Query != ""))
	return result, nil
}

// Package llm is the inference boundary: every model call in the pipeline
// goes through a Backend and returns JSON constrained by a schema.
package llm

import (
	"context"
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
)

// Params are the generation knobs forwarded to the backend.
type Params struct {
	NumPredict  int     `json:"num_predict"` // -1 lets the backend decide
	NumCtx      int     `json:"num_ctx"`
	Temperature float64 `json:"temperature"`
	Seed        *int    `json:"seed,omitempty"`
}

// DefaultParams returns the parameters used when nothing is configured.
func DefaultParams() Params {
	return Params{NumPredict: -1, NumCtx: 4096, Temperature: 0.2}
}

// Request is one structured-output call.
type Request struct {
	Model  string
	Prompt string
	Schema *jsonschema.Schema
	Params Params
}

// Backend performs structured-output inference. Implementations must be safe
// for concurrent use.
type Backend interface {
	InvokeStructured(ctx context.Context, req Request) (json.RawMessage, error)
}

// Model binds a backend to a model name and its generation parameters.
type Model struct {
	Backend Backend
	Name    string
	Params  Params
}

// Invoke sends prompt to the model and returns the raw JSON response.
func (m Model) Invoke(ctx context.Context, prompt string, schema *jsonschema.Schema) (json.RawMessage, error) {
	return m.Backend.InvokeStructured(ctx, Request{
		Model:  m.Name,
		Prompt: prompt,
		Schema: schema,
		Params: m.Params,
	})
}

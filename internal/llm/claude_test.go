package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaude_ForcesToolUse(t *testing.T) {
	var got anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"content":[{"type":"tool_use","name":"record_result","input":{"iocs":["1.2.3.4"]}}]}`))
	}))
	defer server.Close()

	schema, err := jsonschema.For[testOutput](nil)
	require.NoError(t, err)

	c := NewClaudeClient("secret", server.URL)
	defer c.Close()
	out, err := c.InvokeStructured(context.Background(), Request{
		Model:  "claude-sonnet-4-5-20250929",
		Prompt: "extract",
		Schema: schema,
		Params: Params{NumPredict: -1, Temperature: 0.2},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"iocs":["1.2.3.4"]}`, string(out))

	assert.Equal(t, 4096, got.MaxTokens)
	require.Len(t, got.Tools, 1)
	assert.Equal(t, claudeToolName, got.Tools[0].Name)
	require.NotNil(t, got.ToolChoice)
	assert.Equal(t, "tool", got.ToolChoice.Type)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.2, *got.Temperature, 1e-9)
}

func TestClaude_TextFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[{"type":"text","text":"Here you go:\n{\"iocs\":[]}"}]}`))
	}))
	defer server.Close()

	out, err := NewClaudeClient("k", server.URL).InvokeStructured(context.Background(), Request{Model: "m"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"iocs":[]}`, string(out))
}

func TestClaude_Overloaded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(529)
		w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	}))
	defer server.Close()

	_, err := NewClaudeClient("k", server.URL).InvokeStructured(context.Background(), Request{Model: "m"})
	var ie *InferenceError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, KindServer, ie.Kind)
	assert.Equal(t, 529, ie.StatusCode)
	assert.True(t, ie.Retryable())
}

func TestClaude_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[]}`))
	}))
	defer server.Close()

	_, err := NewClaudeClient("k", server.URL).InvokeStructured(context.Background(), Request{Model: "m"})
	assert.True(t, IsInvalidOutput(err))
}

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

type testOutput struct {
	IOCs []string `json:"iocs"`
}

func TestOllama_InvokeStructured(t *testing.T) {
	var got ollamaChatRequest
	var rawFormat map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var body map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.NoError(t, json.Unmarshal(body["format"], &rawFormat))
		require.NoError(t, json.Unmarshal(body["options"], &got.Options))
		require.NoError(t, json.Unmarshal(body["model"], &got.Model))
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": `{"iocs":["evil.com"]}`},
			"done":    true,
		})
	}))
	defer server.Close()

	schema, err := jsonschema.For[testOutput](nil)
	require.NoError(t, err)

	seed := 42
	b := NewOllama(server.URL, 0)
	out, err := b.InvokeStructured(context.Background(), Request{
		Model:  "qwen2.5:14b",
		Prompt: "extract",
		Schema: schema,
		Params: Params{NumPredict: -1, NumCtx: 8192, Temperature: 0.2, Seed: &seed},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"iocs":["evil.com"]}`, string(out))

	assert.Equal(t, "qwen2.5:14b", got.Model)
	assert.Equal(t, -1, got.Options.NumPredict)
	assert.Equal(t, 8192, got.Options.NumCtx)
	assert.InDelta(t, 0.2, got.Options.Temperature, 1e-9)
	require.NotNil(t, got.Options.Seed)
	assert.Equal(t, 42, *got.Options.Seed)
	assert.Equal(t, "object", rawFormat["type"])
}

func TestOllama_StripsCodeFence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"content": "```json\n{\"iocs\":[]}\n```"},
			"done":    true,
		})
	}))
	defer server.Close()

	out, err := NewOllama(server.URL, 0).InvokeStructured(context.Background(), Request{Model: "m"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"iocs":[]}`, string(out))
}

func TestOllama_Errors(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		body      string
		kind      ErrorKind
		retryable bool
	}{
		{"model missing", http.StatusNotFound, `{"error":"model \"nope\" not found, try pulling it first"}`, KindModelNotFound, false},
		{"overloaded", http.StatusServiceUnavailable, `{"error":"server busy"}`, KindServer, true},
		{"rate limited", http.StatusTooManyRequests, ``, KindRateLimited, true},
		{"bad request", http.StatusBadRequest, `{"error":"invalid format"}`, KindRequest, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			_, err := NewOllama(server.URL, 0).InvokeStructured(context.Background(), Request{Model: "nope"})
			var ie *InferenceError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, tc.kind, ie.Kind)
			assert.Equal(t, tc.retryable, IsRetryable(err))
		})
	}
}

func TestOllama_MalformedContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"content": "I could not find any indicators."},
			"done":    true,
		})
	}))
	defer server.Close()

	_, err := NewOllama(server.URL, 0).InvokeStructured(context.Background(), Request{Model: "m"})
	require.Error(t, err)
	assert.True(t, IsInvalidOutput(err))
	assert.False(t, IsRetryable(err))
}

func TestOllama_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewOllama(url, 0).InvokeStructured(context.Background(), Request{Model: "m"})
	var ie *InferenceError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, KindTransport, ie.Kind)
	assert.True(t, IsRetryable(err))
}

func TestOllama_DefaultValues(t *testing.T) {
	b := NewOllama("", 0)
	assert.Equal(t, "http://localhost:11434", b.baseURL)
	assert.NotZero(t, b.httpClient.Timeout)
}

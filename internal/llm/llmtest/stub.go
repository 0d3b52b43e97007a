// Package llmtest provides a scripted llm.Backend for tests.
package llmtest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dgallion1/huntgest/internal/llm"
)

// HandlerFunc answers one call. n is the zero-based call number across the
// stub's lifetime.
type HandlerFunc func(ctx context.Context, req llm.Request, n int) (json.RawMessage, error)

// Stub is a concurrency-safe Backend that records requests and delegates
// responses to Handler.
type Stub struct {
	Handler HandlerFunc

	mu    sync.Mutex
	calls []llm.Request
}

var _ llm.Backend = (*Stub)(nil)

// New returns a stub answering with h.
func New(h HandlerFunc) *Stub {
	return &Stub{Handler: h}
}

// InvokeStructured implements llm.Backend.
func (s *Stub) InvokeStructured(ctx context.Context, req llm.Request) (json.RawMessage, error) {
	s.mu.Lock()
	n := len(s.calls)
	s.calls = append(s.calls, req)
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Handler(ctx, req, n)
}

// Calls returns a copy of the recorded requests.
func (s *Stub) Calls() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Request, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns the number of calls made so far.
func (s *Stub) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// JSON marshals v, panicking on failure. Test fixtures only.
func JSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// TransportError returns a retryable inference failure.
func TransportError(msg string) error {
	return &llm.InferenceError{Backend: "stub", Kind: llm.KindServer, StatusCode: 503, Message: msg}
}

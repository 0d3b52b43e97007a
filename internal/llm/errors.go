package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrInvalidOutput marks a response that parsed but did not satisfy its
// schema. Callers wrap it so the retry policy can tell it apart from
// transport failures.
var ErrInvalidOutput = errors.New("invalid structured output")

// ErrorKind classifies inference failures.
type ErrorKind string

const (
	KindTransport         ErrorKind = "transport"
	KindTimeout           ErrorKind = "timeout"
	KindRateLimited       ErrorKind = "rate_limited"
	KindServer            ErrorKind = "server"
	KindRequest           ErrorKind = "request"
	KindModelNotFound     ErrorKind = "model_not_found"
	KindMalformedResponse ErrorKind = "malformed_response"
)

// InferenceError is returned by every Backend for failures on the model side.
type InferenceError struct {
	Backend    string
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *InferenceError) Error() string {
	msg := fmt.Sprintf("%s inference %s", e.Backend, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + truncate(e.Message, 200)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InferenceError) Unwrap() error { return e.Err }

// Retryable reports whether the call may succeed if repeated after a backoff.
func (e *InferenceError) Retryable() bool {
	if errors.Is(e.Err, context.Canceled) {
		return false
	}
	switch e.Kind {
	case KindTransport, KindTimeout, KindRateLimited, KindServer:
		return true
	}
	return false
}

// IsRetryable checks if an error is worth retrying with backoff.
func IsRetryable(err error) bool {
	var ie *InferenceError
	return errors.As(err, &ie) && ie.Retryable()
}

// IsInvalidOutput reports whether err is a schema or parse failure of the
// model's output rather than a failure to reach the model.
func IsInvalidOutput(err error) bool {
	if errors.Is(err, ErrInvalidOutput) {
		return true
	}
	var ie *InferenceError
	return errors.As(err, &ie) && ie.Kind == KindMalformedResponse
}

func transportError(backend string, err error) *InferenceError {
	kind := KindTransport
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &InferenceError{Backend: backend, Kind: kind, Err: err}
}

func statusError(backend string, status int, body string) *InferenceError {
	kind := KindRequest
	switch {
	case status == http.StatusTooManyRequests:
		kind = KindRateLimited
	case status == http.StatusNotFound:
		kind = KindModelNotFound
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		kind = KindTimeout
	case status >= 500:
		kind = KindServer
	}
	return &InferenceError{Backend: backend, Kind: kind, StatusCode: status, Message: body}
}

func malformed(backend, raw string, err error) *InferenceError {
	return &InferenceError{Backend: backend, Kind: KindMalformedResponse, Message: truncate(raw, 200), Err: err}
}

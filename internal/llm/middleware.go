package llm

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// Metered records the latency and outcome of every call in stats.
type Metered struct {
	next  Backend
	stats *LatencyStats
}

func WithStats(next Backend, stats *LatencyStats) *Metered {
	return &Metered{next: next, stats: stats}
}

// InvokeStructured implements Backend.
func (m *Metered) InvokeStructured(ctx context.Context, req Request) (json.RawMessage, error) {
	start := time.Now()
	out, err := m.next.InvokeStructured(ctx, req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		var ie *InferenceError
		if errors.As(err, &ie) {
			m.stats.RecordFailure(elapsed, ie.Kind)
		} else {
			m.stats.RecordFailure(elapsed, KindTransport)
		}
		return nil, err
	}
	m.stats.Record(elapsed)
	return out, nil
}

// Stats returns the collector the wrapper records into.
func (m *Metered) Stats() *LatencyStats { return m.stats }

// Unwrap returns the wrapped backend.
func (m *Metered) Unwrap() Backend { return m.next }

// RateLimited throttles calls to the wrapped backend with a token bucket.
type RateLimited struct {
	next    Backend
	limiter *rate.Limiter
}

// WithRateLimit wraps next so at most rps calls start per second, allowing
// bursts of burst calls. A non-positive rps returns next unchanged.
func WithRateLimit(next Backend, rps float64, burst int) Backend {
	if rps <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// InvokeStructured implements Backend.
func (r *RateLimited) InvokeStructured(ctx context.Context, req Request) (json.RawMessage, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.next.InvokeStructured(ctx, req)
}

// Unwrap returns the wrapped backend.
func (r *RateLimited) Unwrap() Backend { return r.next }

// Close releases idle connections held by b or any backend it wraps.
func Close(b Backend) {
	for b != nil {
		if c, ok := b.(interface{ Close() }); ok {
			c.Close()
		}
		u, ok := b.(interface{ Unwrap() Backend })
		if !ok {
			return
		}
		b = u.Unwrap()
	}
}

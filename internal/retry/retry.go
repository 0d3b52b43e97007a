// Package retry runs inference calls under a bounded retry budget.
package retry

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/dgallion1/huntgest/internal/llm"
)

// Policy bounds how often a failing call is repeated.
// Transport failures are retried MaxRetries times with exponential backoff;
// invalid model output is retried SchemaRetries times immediately.
type Policy struct {
	MaxRetries    int
	SchemaRetries int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:    3,
		SchemaRetries: 1,
		BaseDelay:     time.Second,
		MaxDelay:      30 * time.Second,
	}
}

// Backoff returns a duration for attempt n (0-indexed) with jitter.
func (p Policy) Backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	d := base << uint(min(attempt, 30))
	if d <= 0 || d > maxDelay {
		d = maxDelay
	}
	if half := int64(d) / 2; half > 0 {
		d += time.Duration(rand.Int64N(half))
	}
	return d
}

// Do calls fn until it succeeds, fails permanently, or exhausts the budget
// for its failure class. The last error is returned.
func Do(ctx context.Context, p Policy, log *slog.Logger, fn func(ctx context.Context) error) error {
	transport, schema := 0, 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}

		switch {
		case llm.IsRetryable(err) && transport < p.MaxRetries:
			wait := p.Backoff(transport)
			transport++
			log.Warn("retrying inference call", "attempt", transport, "backoff", wait, "error", err)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return err
			}
		case llm.IsInvalidOutput(err) && schema < p.SchemaRetries:
			schema++
			log.Warn("retrying after invalid model output", "attempt", schema, "error", err)
		default:
			return err
		}
	}
}

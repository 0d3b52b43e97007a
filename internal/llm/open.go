package llm

import (
	"context"
	"fmt"
	"time"
)

// Options selects and configures a backend.
type Options struct {
	Provider          string // ollama, anthropic or gemini
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Stats             *LatencyStats // optional
}

// Open builds the backend named by opts.Provider, wrapped with rate limiting
// and latency stats when configured.
func Open(ctx context.Context, opts Options) (Backend, error) {
	var b Backend
	switch opts.Provider {
	case "", "ollama":
		b = NewOllama(opts.BaseURL, opts.Timeout)
	case "anthropic", "claude":
		if opts.APIKey == "" {
			return nil, fmt.Errorf("anthropic backend requires an API key")
		}
		b = NewClaudeClient(opts.APIKey, opts.BaseURL)
	case "gemini":
		if opts.APIKey == "" {
			return nil, fmt.Errorf("gemini backend requires an API key")
		}
		g, err := NewGemini(ctx, opts.APIKey, opts.BaseURL)
		if err != nil {
			return nil, err
		}
		b = g
	default:
		return nil, fmt.Errorf("unknown llm provider %q", opts.Provider)
	}

	b = WithRateLimit(b, opts.RequestsPerSecond, opts.Burst)
	if opts.Stats != nil {
		b = WithStats(b, opts.Stats)
	}
	return b, nil
}

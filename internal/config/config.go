package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgallion1/huntgest/internal/chunker"
	"github.com/dgallion1/huntgest/internal/llm"
	"github.com/dgallion1/huntgest/internal/retry"
)

type Config struct {
	Port string

	// Auth
	HuntgestAPIKey string

	// Inference backend
	LLMProvider       string
	OllamaURL         string
	LLMModel          string
	AnthropicAPIKey   string
	GeminiAPIKey      string
	LLMTimeout        time.Duration
	RequestsPerSecond float64

	// Generation parameters
	NumPredict  int
	NumCtx      int
	Temperature float64
	Seed        *int

	// Retry
	MaxRetries     int
	RetryBaseDelay time.Duration

	// Worker pool
	WorkerCount          int
	MaxQueueSize         int
	MaxConcurrentExtract int

	// Upload limits
	MaxUploadBytes int64

	// Chunking defaults
	DefaultChunkSize    int
	DefaultChunkOverlap int

	// Hunt planning
	PlaybooksFile string
	TargetsFile   string
	NumHypotheses int
	EnrichABLE    bool

	// Output
	OutputDir       string
	PathstoreURL    string
	PathstoreAPIKey string

	// Job state
	JobTTL time.Duration

	// Sources
	PDFFallbackPdftotext bool
	HTTPUserAgent        string
}

// Default models per provider, used when LLM_MODEL is unset.
var defaultModels = map[string]string{
	"ollama":    "llama3.1:8b",
	"anthropic": "claude-sonnet-4-5-20250929",
	"gemini":    "gemini-2.5-flash",
}

// NormalizeProvider lowercases a provider name and resolves aliases.
func NormalizeProvider(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "claude" {
		return "anthropic"
	}
	return p
}

// DefaultModel returns the model used for a provider when LLM_MODEL is unset.
func DefaultModel(provider string) string {
	return defaultModels[NormalizeProvider(provider)]
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		HuntgestAPIKey: os.Getenv("HUNTGEST_API_KEY"),

		LLMProvider:       envOr("LLM_PROVIDER", "ollama"),
		OllamaURL:         envOr("OLLAMA_URL", "http://localhost:11434"),
		LLMModel:          os.Getenv("LLM_MODEL"),
		AnthropicAPIKey:   os.Getenv("ANTHROPIC_API_KEY"),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		LLMTimeout:        envDuration("LLM_TIMEOUT", 10*time.Minute),
		RequestsPerSecond: envFloat("LLM_REQUESTS_PER_SECOND", 0),

		NumPredict:  envInt("NUM_PREDICT", -1),
		NumCtx:      envInt("NUM_CTX", 4096),
		Temperature: envFloat("LLM_TEMPERATURE", 0.2),
		Seed:        envIntPtr("LLM_SEED"),

		MaxRetries:     envInt("MAX_RETRIES", 3),
		RetryBaseDelay: envDuration("RETRY_BASE_DELAY", time.Second),

		WorkerCount:          envInt("WORKER_COUNT", 2),
		MaxQueueSize:         envInt("MAX_QUEUE_SIZE", 100),
		MaxConcurrentExtract: envInt("MAX_CONCURRENT_EXTRACT", 4),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		DefaultChunkSize:    envInt("DEFAULT_CHUNK_SIZE", 2600),
		DefaultChunkOverlap: envInt("DEFAULT_CHUNK_OVERLAP", 300),

		PlaybooksFile: os.Getenv("PLAYBOOKS_FILE"),
		TargetsFile:   os.Getenv("TARGETS_FILE"),
		NumHypotheses: envInt("NUM_HYPOTHESES", 5),
		EnrichABLE:    envBool("ENRICH_ABLE", false),

		OutputDir:       envOr("OUTPUT_DIR", "."),
		PathstoreURL:    os.Getenv("PATHSTORE_URL"),
		PathstoreAPIKey: os.Getenv("PATHSTORE_API_KEY"),

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),
		HTTPUserAgent:        envOr("HTTP_USER_AGENT", "sensAI/1.0"),
	}

	cfg.LLMProvider = NormalizeProvider(cfg.LLMProvider)
	if cfg.LLMModel == "" {
		cfg.LLMModel = DefaultModel(cfg.LLMProvider)
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxConcurrentExtract <= 0 {
		cfg.MaxConcurrentExtract = 4
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.NumHypotheses <= 0 {
		cfg.NumHypotheses = 5
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}

	return cfg
}

// Validate checks the settings every entry point needs.
func (c Config) Validate() error {
	switch c.LLMProvider {
	case "ollama":
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for provider %q", c.LLMProvider)
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for provider %q", c.LLMProvider)
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q (want ollama, anthropic or gemini)", c.LLMProvider)
	}
	if c.LLMModel == "" {
		return fmt.Errorf("LLM_MODEL is required")
	}
	if err := c.ChunkParams().Validate(); err != nil {
		return err
	}
	if c.PathstoreURL != "" && c.PathstoreAPIKey == "" {
		return fmt.Errorf("PATHSTORE_API_KEY is required when PATHSTORE_URL is set")
	}
	return nil
}

// ValidateServer adds the checks that only apply to the HTTP server.
func (c Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.HuntgestAPIKey == "" {
		return fmt.Errorf("HUNTGEST_API_KEY is required")
	}
	return nil
}

// LLMParams returns the generation parameters.
func (c Config) LLMParams() llm.Params {
	return llm.Params{
		NumPredict:  c.NumPredict,
		NumCtx:      c.NumCtx,
		Temperature: c.Temperature,
		Seed:        c.Seed,
	}
}

// LLMOptions returns the backend settings for llm.Open.
func (c Config) LLMOptions(stats *llm.LatencyStats) llm.Options {
	opts := llm.Options{
		Provider:          c.LLMProvider,
		Timeout:           c.LLMTimeout,
		RequestsPerSecond: c.RequestsPerSecond,
		Stats:             stats,
	}
	switch c.LLMProvider {
	case "ollama":
		opts.BaseURL = c.OllamaURL
	case "anthropic":
		opts.APIKey = c.AnthropicAPIKey
	case "gemini":
		opts.APIKey = c.GeminiAPIKey
	}
	return opts
}

// RetryPolicy returns the retry budget for inference calls.
func (c Config) RetryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxRetries = c.MaxRetries
	if c.RetryBaseDelay > 0 {
		p.BaseDelay = c.RetryBaseDelay
	}
	return p
}

// ChunkParams returns the default chunking window.
func (c Config) ChunkParams() chunker.Params {
	return chunker.Params{Size: c.DefaultChunkSize, Overlap: c.DefaultChunkOverlap}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envIntPtr(key string) *int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return &n
		}
	}
	return nil
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// Package app assembles the pipeline's collaborators from configuration.
// Both binaries build on it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/huntgest/internal/catalog"
	"github.com/dgallion1/huntgest/internal/config"
	"github.com/dgallion1/huntgest/internal/llm"
	"github.com/dgallion1/huntgest/internal/pathstore"
	"github.com/dgallion1/huntgest/internal/pipeline"
	"github.com/dgallion1/huntgest/internal/report"
	"github.com/dgallion1/huntgest/internal/source"
)

// statsWindow is how far back the latency stats look.
const statsWindow = 15 * time.Minute

// App holds the wired collaborators.
type App struct {
	Model     llm.Model
	Runner    *pipeline.Runner
	Loader    *source.Loader
	Publisher *report.Publisher // nil unless PATHSTORE_URL is set
	Playbooks []catalog.Entry
	Targets   []catalog.Entry
	Stats     *llm.LatencyStats

	closers []func()
}

// New opens the configured backend and loads the catalogs. cfg must already
// be validated.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	a := &App{Stats: llm.NewLatencyStats(statsWindow)}

	backend, err := llm.Open(ctx, cfg.LLMOptions(a.Stats))
	if err != nil {
		return nil, fmt.Errorf("open llm backend: %w", err)
	}
	a.closers = append(a.closers, func() { llm.Close(backend) })
	a.Model = llm.Model{Backend: backend, Name: cfg.LLMModel, Params: cfg.LLMParams()}
	a.Runner = pipeline.NewRunner(a.Model, cfg.RetryPolicy(), log)

	if a.Playbooks, err = catalog.LoadOptional(cfg.PlaybooksFile); err != nil {
		return nil, fmt.Errorf("playbooks: %w", err)
	}
	if a.Targets, err = catalog.LoadOptional(cfg.TargetsFile); err != nil {
		return nil, fmt.Errorf("targets: %w", err)
	}

	a.Loader = source.NewLoader(source.Options{
		UserAgent:   cfg.HTTPUserAgent,
		MaxBytes:    cfg.MaxUploadBytes,
		PDFFallback: cfg.PDFFallbackPdftotext,
	}, log)

	if cfg.PathstoreURL != "" {
		ps := pathstore.NewClient(cfg.PathstoreURL, cfg.PathstoreAPIKey)
		a.Publisher = report.NewPublisher(ps, log)
		a.closers = append(a.closers, ps.Close)
	}

	log.Info("pipeline ready",
		"provider", cfg.LLMProvider,
		"model", cfg.LLMModel,
		"playbooks", len(a.Playbooks),
		"targets", len(a.Targets),
		"publish", a.Publisher != nil)
	return a, nil
}

// Options returns the per-run settings derived from cfg and the catalogs.
func (a *App) Options(cfg config.Config) pipeline.Options {
	return pipeline.Options{
		Chunk:          cfg.ChunkParams(),
		FanOut:         cfg.MaxConcurrentExtract,
		Hypotheses:     cfg.NumHypotheses,
		EnrichWithABLE: cfg.EnrichABLE,
		Playbooks:      a.Playbooks,
		Targets:        a.Targets,
	}
}

// Close releases client resources.
func (a *App) Close() {
	for _, c := range a.closers {
		c()
	}
}

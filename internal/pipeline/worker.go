package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgallion1/huntgest/internal/doctree"
	"github.com/dgallion1/huntgest/internal/report"
	"github.com/dgallion1/huntgest/internal/source"
)

// DocumentLoader turns a job's input into a Document.
type DocumentLoader interface {
	Load(ctx context.Context, src, selector string) (doctree.Document, error)
	Parse(data []byte, filename, selector string) (doctree.Document, error)
}

var _ DocumentLoader = (*source.Loader)(nil)

// Worker processes a single job.
type Worker struct {
	runner    *Runner
	loader    DocumentLoader
	publisher *report.Publisher // nil disables publishing
	defaults  Options
	log       *slog.Logger
}

func NewWorker(runner *Runner, loader DocumentLoader, publisher *report.Publisher, defaults Options, log *slog.Logger) *Worker {
	return &Worker{
		runner:    runner,
		loader:    loader,
		publisher: publisher,
		defaults:  defaults,
		log:       log,
	}
}

// Process runs the pipeline for a job and records the outcome on it.
func (w *Worker) Process(ctx context.Context, job *Job) {
	req := job.Request
	log := w.log.With("job_id", job.ID, "kind", req.Kind)

	// Phase 1: Load
	job.SetStatus(StatusLoading, "loading")
	doc, err := w.load(ctx, job)
	if err != nil {
		w.fail(log, job, "loading", err)
		return
	}
	job.mu.Lock()
	job.Title = doc.Title
	job.ContentHash = ContentHashHex([]byte(doc.Text))
	job.mu.Unlock()
	log = log.With("source", doc.Source)

	// Phase 2: Extract
	job.SetStatus(StatusExtracting, "extracting")
	opts := w.options(req, job)
	ir, err := w.runner.ExtractIntel(ctx, doc, opts)
	if err != nil {
		w.fail(log, job, "extracting", err)
		return
	}
	job.AddDegradations(ir.Degradations)
	job.SetCounts(ir.Intel.Len(), 0)
	w.publishIntel(ctx, log, job, doc.Source, ir)

	if req.Kind != KindHunt {
		job.SetResult(ir)
		w.finish(log, job)
		return
	}

	// Phase 3: Plan
	job.SetStatus(StatusPlanning, "planning")
	hr, err := w.runner.HuntFromIntel(ctx, doc, ir.Intel, opts)
	if err != nil {
		w.fail(log, job, "planning", err)
		return
	}
	job.AddDegradations(hr.Degradations)
	hr.Degradations = append(ir.Degradations, hr.Degradations...)
	job.SetCounts(ir.Intel.Len(), len(hr.Plan.Hypotheses))
	w.publishPlan(ctx, log, job, hr)

	job.SetResult(hr)
	w.finish(log, job)
}

func (w *Worker) load(ctx context.Context, job *Job) (doctree.Document, error) {
	req := job.Request
	if data := job.FileData(); data != nil {
		return w.loader.Parse(data, req.Filename, req.Selector)
	}
	if req.Source == "" {
		return doctree.Document{}, fmt.Errorf("%w: job has neither a source nor an upload", source.ErrSourceUnreachable)
	}
	return w.loader.Load(ctx, req.Source, req.Selector)
}

func (w *Worker) options(req JobRequest, job *Job) Options {
	opts := w.defaults
	opts.Chunk = req.ChunkParams(w.defaults.Chunk)
	if req.Hypotheses > 0 {
		opts.Hypotheses = req.Hypotheses
	}
	if req.ABLE {
		opts.EnrichWithABLE = true
	}
	opts.OnChunks = job.SetTotalChunks
	opts.OnChunk = func(_ int, err error) { job.RecordChunk(err) }
	return opts
}

func (w *Worker) publishIntel(ctx context.Context, log *slog.Logger, job *Job, src string, ir *IntelResult) {
	if w.publisher == nil {
		return
	}
	if _, err := w.publisher.PublishIntel(ctx, src, ir.Intel); err != nil {
		log.Error("publish indicators failed", "error", err)
		job.AddError(fmt.Sprintf("publish: %s", err))
	}
}

func (w *Worker) publishPlan(ctx context.Context, log *slog.Logger, job *Job, hr *HuntResult) {
	if w.publisher == nil {
		return
	}
	if err := w.publisher.PublishPlan(ctx, hr.Plan); err != nil {
		log.Error("publish plan failed", "error", err)
		job.AddError(fmt.Sprintf("publish: %s", err))
	}
}

func (w *Worker) fail(log *slog.Logger, job *Job, phase string, err error) {
	job.AddError(err.Error())
	job.SetFailure(err)
	if errors.Is(err, ErrPipelineCancelled) || errors.Is(err, context.Canceled) {
		log.Warn("job cancelled", "phase", phase)
		job.SetStatus(StatusCancelled, phase)
		return
	}
	log.Error("job failed", "phase", phase, "error", err)
	job.SetStatus(StatusFailed, phase)
}

func (w *Worker) finish(log *slog.Logger, job *Job) {
	snap := job.Snapshot()
	if len(snap.Degradations) > 0 || len(snap.Progress.Errors) > 0 {
		log.Info("job finished with degradations", "degradations", len(snap.Degradations), "errors", len(snap.Progress.Errors))
		job.SetStatus(StatusPartial, "done")
		return
	}
	log.Info("job completed", "indicators", snap.Progress.Indicators, "hypotheses", snap.Progress.Hypotheses)
	job.SetStatus(StatusCompleted, "done")
}

// Package pipeline wires the stages together: chunking, concurrent
// extraction, aggregation, scope inference and hypothesis synthesis. It also
// hosts the queued job orchestrator used by the HTTP server.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/huntgest/internal/aggregate"
	"github.com/dgallion1/huntgest/internal/catalog"
	"github.com/dgallion1/huntgest/internal/chunker"
	"github.com/dgallion1/huntgest/internal/doctree"
	"github.com/dgallion1/huntgest/internal/extract"
	"github.com/dgallion1/huntgest/internal/hunt"
	"github.com/dgallion1/huntgest/internal/llm"
	"github.com/dgallion1/huntgest/internal/retry"
)

var (
	// ErrPipelineCancelled is returned when the run's context ends before a
	// result is ready.
	ErrPipelineCancelled = errors.New("pipeline cancelled")

	// ErrPipelineFailed is returned when no chunk could be extracted.
	ErrPipelineFailed = errors.New("pipeline failed")
)

// FailedError reports the first chunk, in index order, whose extraction
// failed when every chunk failed. Chunk is -1 when the document had no text.
type FailedError struct {
	Chunk int
	Err   error
}

func (e *FailedError) Error() string {
	if e.Chunk < 0 {
		return fmt.Sprintf("%s: %v", ErrPipelineFailed, e.Err)
	}
	return fmt.Sprintf("%s: chunk %d: %v", ErrPipelineFailed, e.Chunk, e.Err)
}

func (e *FailedError) Unwrap() error { return e.Err }

func (e *FailedError) Is(target error) bool { return target == ErrPipelineFailed }

// Degradation kinds.
const (
	KindChunkFailed      = "chunk_extraction_failed"
	KindMalformedEntries = "malformed_extraction"
	KindScopeFailed      = "scope_inference_failed"
	KindSynthesisFailed  = "synthesis_failed"
	KindShortHypotheses  = "short_hypotheses"
	KindEnrichmentFailed = "hypothesis_enrichment_failed"
)

// Degradation stages.
const (
	StageExtract   = "extract"
	StageScope     = "scope"
	StageSynthesis = "synthesis"
	StageEnrich    = "enrich"
)

// Degradation records a non-fatal failure that reduced the quality of a
// result. Index is a chunk index or hypothesis ID, or -1.
type Degradation struct {
	Stage  string `json:"stage"`
	Kind   string `json:"kind"`
	Index  int    `json:"index"`
	Detail string `json:"detail"`
}

// Options are the per-run settings.
type Options struct {
	Chunk          chunker.Params
	FanOut         int
	Hypotheses     int
	EnrichWithABLE bool
	Playbooks      []catalog.Entry
	Targets        []catalog.Entry

	// OnChunks, when set, is called once with the chunk count before
	// extraction starts.
	OnChunks func(total int)
	// OnChunk, when set, is called from worker goroutines as each chunk
	// finishes. It must be safe for concurrent use.
	OnChunk func(index int, err error)
}

// DefaultOptions returns the settings used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Chunk:      chunker.DefaultParams(),
		FanOut:     4,
		Hypotheses: 5,
	}
}

// IntelResult is the output of the extraction half of the pipeline.
type IntelResult struct {
	Intel        *aggregate.Intel `json:"intel"`
	Chunks       int              `json:"chunks"`
	Failed       int              `json:"failed_chunks"`
	Malformed    int              `json:"malformed_entries"`
	Degradations []Degradation    `json:"degradations"`
	Elapsed      time.Duration    `json:"elapsed"`
}

// HuntResult is the output of a full run.
type HuntResult struct {
	Plan         *hunt.Plan       `json:"plan"`
	Intel        *aggregate.Intel `json:"intel"`
	Degradations []Degradation    `json:"degradations"`
}

// Runner executes pipeline runs against one model.
type Runner struct {
	model  llm.Model
	policy retry.Policy
	log    *slog.Logger
}

func NewRunner(model llm.Model, policy retry.Policy, log *slog.Logger) *Runner {
	return &Runner{model: model, policy: policy, log: log}
}

// Model returns the model the runner invokes.
func (r *Runner) Model() llm.Model { return r.model }

// ExtractIntel chunks doc, extracts indicators from every chunk with at most
// opts.FanOut calls in flight, and aggregates them after all chunks finish.
func (r *Runner) ExtractIntel(ctx context.Context, doc doctree.Document, opts Options) (*IntelResult, error) {
	start := time.Now()
	log := r.log.With("source", doc.Source)

	chunks, err := chunker.Chunk(doc, opts.Chunk)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, &FailedError{Chunk: -1, Err: errors.New("document has no text")}
	}
	log.Info("chunked document", "chunks", len(chunks), "size", opts.Chunk.Size, "overlap", opts.Chunk.Overlap)
	if opts.OnChunks != nil {
		opts.OnChunks(len(chunks))
	}

	ex := extract.NewExtractor(r.model, r.policy, doc.Source, log)
	results := make([]extract.Result, len(chunks))
	errs := make([]error, len(chunks))

	var g errgroup.Group
	g.SetLimit(max(opts.FanOut, 1))
	for i, c := range chunks {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// Chunks still waiting for a slot when ctx ends are abandoned.
			if ctx.Err() != nil {
				return nil
			}
			results[i], errs[i] = ex.Extract(ctx, c)
			if opts.OnChunk != nil {
				opts.OnChunk(i, errs[i])
			}
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPipelineCancelled, err)
	}

	res := &IntelResult{Chunks: len(chunks)}
	succeeded := make([]extract.Result, 0, len(chunks))
	var firstFailure *FailedError
	for i, err := range errs {
		if err != nil {
			res.Failed++
			res.Degradations = append(res.Degradations, Degradation{
				Stage: StageExtract, Kind: KindChunkFailed, Index: i, Detail: err.Error(),
			})
			if firstFailure == nil {
				firstFailure = &FailedError{Chunk: i, Err: err}
			}
			continue
		}
		if m := results[i].Malformed; m > 0 {
			res.Malformed += m
			res.Degradations = append(res.Degradations, Degradation{
				Stage: StageExtract, Kind: KindMalformedEntries, Index: i,
				Detail: fmt.Sprintf("%d malformed entries dropped", m),
			})
		}
		succeeded = append(succeeded, results[i])
	}
	if len(succeeded) == 0 {
		log.Error("all chunks failed", "chunks", len(chunks))
		return nil, firstFailure
	}

	res.Intel = aggregate.Aggregate(doc.Text, succeeded)
	res.Elapsed = time.Since(start)
	log.Info("extraction complete",
		"indicators", res.Intel.Len(),
		"failed_chunks", res.Failed,
		"malformed", res.Malformed,
		"elapsed", res.Elapsed)
	return res, nil
}

// Hunt runs the full pipeline and returns a hunt plan.
func (r *Runner) Hunt(ctx context.Context, doc doctree.Document, opts Options) (*HuntResult, error) {
	ir, err := r.ExtractIntel(ctx, doc, opts)
	if err != nil {
		return nil, err
	}
	res, err := r.HuntFromIntel(ctx, doc, ir.Intel, opts)
	if err != nil {
		return nil, err
	}
	res.Degradations = append(ir.Degradations, res.Degradations...)
	return res, nil
}

// HuntFromIntel runs scope inference and hypothesis synthesis over intel that
// was already extracted or imported.
func (r *Runner) HuntFromIntel(ctx context.Context, doc doctree.Document, intel *aggregate.Intel, opts Options) (*HuntResult, error) {
	log := r.log.With("source", doc.Source)
	planner := hunt.NewPlanner(r.model, r.policy, log)
	res := &HuntResult{Intel: intel}

	scope, meta, err := planner.InferScope(ctx, doc, intel, opts.Targets)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrPipelineCancelled, ctx.Err())
		}
		log.Warn("continuing without scope", "error", err)
		res.Degradations = append(res.Degradations, Degradation{
			Stage: StageScope, Kind: KindScopeFailed, Index: -1, Detail: err.Error(),
		})
	}

	n := opts.Hypotheses
	if n <= 0 {
		n = DefaultOptions().Hypotheses
	}
	syn, err := planner.Synthesize(ctx, hunt.SynthesisInput{
		Scope:          scope,
		Intel:          intel,
		Playbooks:      opts.Playbooks,
		N:              n,
		EnrichWithABLE: opts.EnrichWithABLE,
	})
	switch {
	case ctx.Err() != nil:
		return nil, fmt.Errorf("%w: %w", ErrPipelineCancelled, ctx.Err())
	case err != nil:
		log.Warn("continuing without hypotheses", "error", err)
		res.Degradations = append(res.Degradations, Degradation{
			Stage: StageSynthesis, Kind: KindSynthesisFailed, Index: -1, Detail: err.Error(),
		})
	case syn.Short:
		res.Degradations = append(res.Degradations, Degradation{
			Stage: StageSynthesis, Kind: KindShortHypotheses, Index: -1,
			Detail: fmt.Sprintf("got %d of %d hypotheses", len(syn.Hypotheses), n),
		})
	}
	for _, f := range syn.EnrichmentFailures {
		res.Degradations = append(res.Degradations, Degradation{
			Stage: StageEnrich, Kind: KindEnrichmentFailed, Index: f.HypothesisID, Detail: f.Err.Error(),
		})
	}

	hyps := syn.Hypotheses
	if hyps == nil {
		hyps = []hunt.Hypothesis{}
	}
	res.Plan = &hunt.Plan{
		Meta:           meta,
		Scope:          scope,
		Hypotheses:     hyps,
		SourceDocument: doc.Source,
		Model:          r.model.Name,
		GeneratedAt:    time.Now().UTC(),
	}
	log.Info("hunt plan ready", "hypotheses", len(hyps), "degradations", len(res.Degradations))
	return res, nil
}

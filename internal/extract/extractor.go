package extract

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgallion1/huntgest/internal/doctree"
	"github.com/dgallion1/huntgest/internal/llm"
	"github.com/dgallion1/huntgest/internal/retry"
)

// Result is the outcome of extracting one chunk.
type Result struct {
	ChunkIndex int      `json:"chunk_index"`
	Records    []Record `json:"records"`
	Malformed  int      `json:"malformed"` // entries dropped by validation
}

// Extractor turns chunks into normalized IOC records with one structured
// inference call per chunk. It is safe for concurrent use.
type Extractor struct {
	model  llm.Model
	policy retry.Policy
	source string
	log    *slog.Logger
}

// NewExtractor creates an extractor. source names the document in prompts
// and may be empty.
func NewExtractor(model llm.Model, policy retry.Policy, source string, log *slog.Logger) *Extractor {
	return &Extractor{model: model, policy: policy, source: source, log: log}
}

// Extract runs one chunk. Invalid entries are dropped and counted; an
// inference failure that survives the retry policy is returned wrapped in
// ErrChunkExtractionFailed.
func (e *Extractor) Extract(ctx context.Context, chunk doctree.Chunk) (Result, error) {
	log := e.log.With("chunk", chunk.Index)
	prompt := BuildChunkPrompt(e.source, chunk)

	var res Result
	err := retry.Do(ctx, e.policy, log, func(ctx context.Context) error {
		raw, err := e.model.Invoke(ctx, prompt, iocSchemas.response)
		if err != nil {
			return err
		}
		entries, err := decodeResponse(raw)
		if err != nil {
			return err
		}
		res = e.collect(log, chunk.Index, entries)
		return nil
	})
	if err != nil {
		return Result{ChunkIndex: chunk.Index}, fmt.Errorf("%w: chunk %d: %w", ErrChunkExtractionFailed, chunk.Index, err)
	}

	log.Debug("chunk extracted", "records", len(res.Records), "malformed", res.Malformed)
	return res, nil
}

func (e *Extractor) collect(log *slog.Logger, chunkIndex int, entries []any) Result {
	res := Result{ChunkIndex: chunkIndex, Records: make([]Record, 0, len(entries))}
	for i, entry := range entries {
		rec, err := decodeEntry(entry)
		if err != nil {
			res.Malformed++
			log.Warn("dropping malformed extraction", "entry", i, "error", err)
			continue
		}
		rec.SourceChunk = chunkIndex
		res.Records = append(res.Records, rec)
	}
	return res
}

package hunt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgallion1/huntgest/internal/aggregate"
	"github.com/dgallion1/huntgest/internal/catalog"
	"github.com/dgallion1/huntgest/internal/doctree"
	"github.com/dgallion1/huntgest/internal/llm"
	"github.com/dgallion1/huntgest/internal/retry"
)

// Planner runs the scope and hypothesis stages against one model.
type Planner struct {
	model  llm.Model
	policy retry.Policy
	log    *slog.Logger
}

func NewPlanner(model llm.Model, policy retry.Policy, log *slog.Logger) *Planner {
	return &Planner{model: model, policy: policy, log: log}
}

// InferScope asks the model for the hunt scope. A response that fails
// validation is retried once; after that ErrScopeInferenceFailed is returned.
func (p *Planner) InferScope(ctx context.Context, doc doctree.Document, intel *aggregate.Intel, targets []catalog.Entry) (Scope, Meta, error) {
	log := p.log.With("stage", "scope")
	prompt := BuildScopePrompt(doc.Text, intel, targets, p.model.Params)

	var resp scopeResponse
	err := retry.Do(ctx, p.policy, log, func(ctx context.Context) error {
		raw, err := p.model.Invoke(ctx, prompt, schemas.scope.request)
		if err != nil {
			return err
		}
		return decodeValidated(raw, schemas.scope.resolved, &resp)
	})
	if err != nil {
		if ctx.Err() != nil {
			return Scope{}, Meta{}, ctx.Err()
		}
		return Scope{}, Meta{}, fmt.Errorf("%w: %w", ErrScopeInferenceFailed, err)
	}

	scope := Scope{
		SystemsAreas: cleanList(resp.SystemsAreas),
		Timeframe:    strings.TrimSpace(resp.Timeframe),
		DataSources:  cleanList(resp.DataSources),
	}
	meta := Meta{
		Name:            strings.TrimSpace(resp.Name),
		Purpose:         strings.TrimSpace(resp.Purpose),
		ExpectedOutcome: strings.TrimSpace(resp.ExpectedOutcome),
	}
	log.Info("scope inferred", "systems_areas", len(scope.SystemsAreas), "data_sources", len(scope.DataSources))
	return scope, meta, nil
}

// SynthesisInput is everything the hypothesis stage needs.
type SynthesisInput struct {
	Scope          Scope
	Intel          *aggregate.Intel
	Playbooks      []catalog.Entry
	N              int
	EnrichWithABLE bool
}

// EnrichmentFailure records a hypothesis left without an ABLE breakdown.
type EnrichmentFailure struct {
	HypothesisID int
	Err          error
}

// SynthesisResult holds the hypotheses and any per-hypothesis failures.
type SynthesisResult struct {
	Hypotheses         []Hypothesis
	Short              bool // fewer than N hypotheses after retries
	EnrichmentFailures []EnrichmentFailure
}

// Synthesize requests exactly in.N hypotheses. A short list is retried once
// and then accepted; a long list is truncated. IDs are 1..N in the order the
// model produced them.
func (p *Planner) Synthesize(ctx context.Context, in SynthesisInput) (SynthesisResult, error) {
	if in.N <= 0 {
		return SynthesisResult{}, fmt.Errorf("%w: hypothesis count must be positive, got %d", ErrSynthesisFailed, in.N)
	}
	log := p.log.With("stage", "hypotheses")
	prompt := buildHypothesesPrompt(in)

	var best []Hypothesis
	err := retry.Do(ctx, p.policy, log, func(ctx context.Context) error {
		raw, err := p.model.Invoke(ctx, prompt, schemas.hypotheses)
		if err != nil {
			return err
		}
		hyps, err := p.decodeHypotheses(log, raw, in.Playbooks)
		if err != nil {
			return err
		}
		if len(hyps) > len(best) {
			best = hyps
		}
		if len(hyps) < in.N {
			return fmt.Errorf("%w: got %d of %d hypotheses", llm.ErrInvalidOutput, len(hyps), in.N)
		}
		return nil
	})

	var res SynthesisResult
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return res, ctx.Err()
	case llm.IsInvalidOutput(err):
		res.Short = true
		log.Warn("accepting short hypothesis list", "got", len(best), "want", in.N)
	default:
		return res, fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
	}

	if len(best) > in.N {
		best = best[:in.N]
	}
	for i := range best {
		best[i].ID = i + 1
	}
	res.Hypotheses = best

	if in.EnrichWithABLE {
		for i := range res.Hypotheses {
			h := &res.Hypotheses[i]
			able, err := p.EnrichABLE(ctx, *h)
			if err != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				log.Warn("ABLE enrichment failed", "hypothesis", h.ID, "error", err)
				res.EnrichmentFailures = append(res.EnrichmentFailures, EnrichmentFailure{HypothesisID: h.ID, Err: err})
				continue
			}
			h.ABLE = able
		}
	}

	log.Info("hypotheses synthesized", "count", len(res.Hypotheses), "enrichment_failures", len(res.EnrichmentFailures))
	return res, nil
}

// EnrichABLE asks the model for the ABLE breakdown of one hypothesis.
func (p *Planner) EnrichABLE(ctx context.Context, h Hypothesis) (*ABLE, error) {
	log := p.log.With("stage", "able", "hypothesis", h.ID)
	prompt := buildABLEPrompt(h)

	var able ABLE
	err := retry.Do(ctx, p.policy, log, func(ctx context.Context) error {
		raw, err := p.model.Invoke(ctx, prompt, schemas.able.request)
		if err != nil {
			return err
		}
		return decodeValidated(raw, schemas.able.resolved, &able)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: hypothesis %d: %w", ErrHypothesisEnrichmentFailed, h.ID, err)
	}
	return &able, nil
}

func (p *Planner) decodeHypotheses(log *slog.Logger, raw []byte, playbooks []catalog.Entry) ([]Hypothesis, error) {
	entries, err := decodeEntries(raw)
	if err != nil {
		return nil, err
	}

	out := make([]Hypothesis, 0, len(entries))
	for i, e := range entries {
		var he hypothesisEntry
		if err := decodeEntry(e, &he); err != nil {
			log.Warn("dropping invalid hypothesis", "entry", i, "error", err)
			continue
		}
		out = append(out, Hypothesis{
			Statement:           strings.TrimSpace(he.Statement),
			Rationale:           strings.TrimSpace(he.Rationale),
			LogSources:          cleanList(he.LogSources),
			DetectionTechniques: cleanList(he.DetectionTechniques),
			Priority:            he.Priority,
			MappedPlaybook:      mapPlaybook(he.Playbook, playbooks),
		})
	}
	return out, nil
}

// mapPlaybook returns the catalog's spelling of name, or nil when the name
// is empty or not in the catalog.
func mapPlaybook(name string, playbooks []catalog.Entry) *string {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "none") {
		return nil
	}
	e, ok := catalog.Lookup(playbooks, name)
	if !ok {
		return nil
	}
	return &e.Name
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[strings.ToLower(s)] {
			continue
		}
		seen[strings.ToLower(s)] = true
		out = append(out, s)
	}
	return out
}

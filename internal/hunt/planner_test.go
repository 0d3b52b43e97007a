package hunt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/huntgest/internal/aggregate"
	"github.com/dgallion1/huntgest/internal/catalog"
	"github.com/dgallion1/huntgest/internal/chunker"
	"github.com/dgallion1/huntgest/internal/doctree"
	"github.com/dgallion1/huntgest/internal/extract"
	"github.com/dgallion1/huntgest/internal/llm"
	"github.com/dgallion1/huntgest/internal/llm/llmtest"
	"github.com/dgallion1/huntgest/internal/retry"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestPlanner(stub *llmtest.Stub) *Planner {
	model := llm.Model{Backend: stub, Name: "test-model", Params: llm.DefaultParams()}
	policy := retry.Policy{MaxRetries: 2, SchemaRetries: 1, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	return NewPlanner(model, policy, quiet)
}

func testIntel() *aggregate.Intel {
	return aggregate.Aggregate("report text", []extract.Result{{
		ChunkIndex: 0,
		Records: []extract.Record{
			{Type: extract.TypeIP, Value: "203.0.113.7", Context: "C2 server", SourceChunk: 0},
			{Type: extract.TypeDomain, Value: "evil.example.com", Context: "staging host", SourceChunk: 0},
		},
	}})
}

var testPlaybooks = []catalog.Entry{
	{Name: "PB-DNS-TUNNEL", Description: "Hunt for DNS tunnelling"},
	{Name: "PB-LATERAL", Description: "Lateral movement over SMB"},
}

func hypothesesResponse(n int) json.RawMessage {
	list := make([]map[string]any, n)
	for i := range list {
		list[i] = map[string]any{
			"statement":            fmt.Sprintf("Hypothesis %d statement", i+1),
			"rationale":            "seen in report",
			"log_sources":          []string{"dns", "proxy"},
			"detection_techniques": []string{"beacon analysis"},
			"priority":             "medium",
		}
	}
	return llmtest.JSON(map[string]any{"hypotheses": list})
}

func validABLE() json.RawMessage {
	return llmtest.JSON(ABLE{Actor: "APT-X", Behavior: "DNS tunnelling", Location: "resolvers", Evidence: "long TXT queries"})
}

func TestInferScope_Success(t *testing.T) {
	stub := llmtest.New(func(ctx context.Context, req llm.Request, n int) (json.RawMessage, error) {
		return llmtest.JSON(map[string]any{
			"name":             " DNS tunnel hunt ",
			"purpose":          "Find C2 over DNS",
			"systems_areas":    []string{"DNS resolvers", "dns resolvers", " "},
			"timeframe":        "last 30 days",
			"data_sources":     []string{"dns logs"},
			"expected_outcome": "confirmed or refuted beaconing",
		}), nil
	})

	doc := doctree.Document{Text: "The actor used 203.0.113.7 for C2.", Source: "report.html"}
	targets := []catalog.Entry{{Name: "dns-resolvers", Description: "Internal DNS"}}
	scope, meta, err := newTestPlanner(stub).InferScope(context.Background(), doc, testIntel(), targets)
	require.NoError(t, err)

	assert.Equal(t, Scope{SystemsAreas: []string{"DNS resolvers"}, Timeframe: "last 30 days", DataSources: []string{"dns logs"}}, scope)
	assert.Equal(t, "DNS tunnel hunt", meta.Name)

	calls := stub.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "203.0.113.7")
	assert.Contains(t, calls[0].Prompt, "dns-resolvers")
	assert.Same(t, schemas.scope.request, calls[0].Schema)
}

func TestInferScope_InvalidTwiceFails(t *testing.T) {
	stub := llmtest.New(func(ctx context.Context, req llm.Request, n int) (json.RawMessage, error) {
		return llmtest.JSON(map[string]any{"name": "x", "systems_areas": []string{}}), nil
	})

	_, _, err := newTestPlanner(stub).InferScope(context.Background(), doctree.Document{Text: "x"}, testIntel(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrScopeInferenceFailed))
	assert.True(t, errors.Is(err, llm.ErrInvalidOutput))
	assert.Equal(t, 2, stub.CallCount(), "invalid scope is retried exactly once")
}

func TestSynthesize_FiveWithOneEnrichmentFailure(t *testing.T) {
	stub := llmtest.New(func(ctx context.Context, req llm.Request, n int) (json.RawMessage, error) {
		if req.Schema == schemas.hypotheses {
			return hypothesesResponse(5), nil
		}
		if strings.Contains(req.Prompt, "Hypothesis 3 statement") {
			return llmtest.JSON(map[string]any{"actor": ""}), nil
		}
		return validABLE(), nil
	})

	res, err := newTestPlanner(stub).Synthesize(context.Background(), SynthesisInput{
		Intel:          testIntel(),
		Playbooks:      testPlaybooks,
		N:              5,
		EnrichWithABLE: true,
	})
	require.NoError(t, err)
	require.Len(t, res.Hypotheses, 5)
	assert.False(t, res.Short)

	for i, h := range res.Hypotheses {
		assert.Equal(t, i+1, h.ID)
		if h.ID == 3 {
			assert.Nil(t, h.ABLE)
			continue
		}
		require.NotNil(t, h.ABLE, "hypothesis %d", h.ID)
		assert.Equal(t, "APT-X", h.ABLE.Actor)
	}

	require.Len(t, res.EnrichmentFailures, 1)
	assert.Equal(t, 3, res.EnrichmentFailures[0].HypothesisID)
	assert.True(t, errors.Is(res.EnrichmentFailures[0].Err, ErrHypothesisEnrichmentFailed))

	// 1 synthesis call, 4 successful enrichments, 2 attempts for the failing one.
	assert.Equal(t, 7, stub.CallCount())
}

func TestSynthesize_NormalizesEntries(t *testing.T) {
	stub := llmtest.New(func(ctx context.Context, req llm.Request, n int) (json.RawMessage, error) {
		return llmtest.JSON(map[string]any{"hypotheses": []any{
			map[string]any{"statement": "A", "rationale": "r", "priority": "HIGH", "playbook": "pb-dns-tunnel"},
			map[string]any{"statement": "B", "rationale": "r", "priority": "urgent", "playbook": "PB-UNKNOWN"},
			map[string]any{"statement": "", "rationale": "r"},
			map[string]any{"statement": "C", "rationale": "r", "playbook": "none"},
		}}), nil
	})

	res, err := newTestPlanner(stub).Synthesize(context.Background(), SynthesisInput{Playbooks: testPlaybooks, N: 3})
	require.NoError(t, err)
	require.Len(t, res.Hypotheses, 3)

	a, b, c := res.Hypotheses[0], res.Hypotheses[1], res.Hypotheses[2]
	assert.Equal(t, "high", a.Priority)
	require.NotNil(t, a.MappedPlaybook)
	assert.Equal(t, "PB-DNS-TUNNEL", *a.MappedPlaybook)

	assert.Equal(t, "", b.Priority)
	assert.Nil(t, b.MappedPlaybook)

	assert.Equal(t, "C", c.Statement)
	assert.Equal(t, 3, c.ID)
	assert.Nil(t, c.MappedPlaybook)
	assert.Nil(t, c.ABLE)
}

func TestSynthesize_ShortListRetriedThenAccepted(t *testing.T) {
	stub := llmtest.New(func(ctx context.Context, req llm.Request, n int) (json.RawMessage, error) {
		if n == 0 {
			return hypothesesResponse(3), nil
		}
		return hypothesesResponse(4), nil
	})

	res, err := newTestPlanner(stub).Synthesize(context.Background(), SynthesisInput{Intel: testIntel(), N: 5})
	require.NoError(t, err)
	assert.True(t, res.Short)
	assert.Len(t, res.Hypotheses, 4)
	assert.Equal(t, 2, stub.CallCount())
}

func TestSynthesize_LongListTruncated(t *testing.T) {
	stub := llmtest.New(func(ctx context.Context, req llm.Request, n int) (json.RawMessage, error) {
		return hypothesesResponse(7), nil
	})

	res, err := newTestPlanner(stub).Synthesize(context.Background(), SynthesisInput{Intel: testIntel(), N: 5})
	require.NoError(t, err)
	require.Len(t, res.Hypotheses, 5)
	assert.Equal(t, 5, res.Hypotheses[4].ID)
	assert.Equal(t, "Hypothesis 5 statement", res.Hypotheses[4].Statement)
}

func TestSynthesize_TransportFailure(t *testing.T) {
	stub := llmtest.New(func(ctx context.Context, req llm.Request, n int) (json.RawMessage, error) {
		return nil, llmtest.TransportError("unavailable")
	})

	_, err := newTestPlanner(stub).Synthesize(context.Background(), SynthesisInput{Intel: testIntel(), N: 5})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSynthesisFailed))
	assert.Equal(t, 3, stub.CallCount())
}

func TestBuildScopePrompt_TruncatesExcerptKeepsIndicators(t *testing.T) {
	words := make([]string, 5000)
	for i := range words {
		words[i] = fmt.Sprintf("word%d", i)
	}
	doc := strings.Join(words, " ")
	params := llm.Params{NumPredict: -1, NumCtx: 2000}

	prompt := BuildScopePrompt(doc, testIntel(), nil, params)

	assert.Contains(t, prompt, "Type,Value,Context")
	assert.Contains(t, prompt, "203.0.113.7")
	assert.Contains(t, prompt, "evil.example.com")
	assert.Contains(t, prompt, "word0 ")
	assert.NotContains(t, prompt, "word4999")
	assert.LessOrEqual(t, chunker.EstimateTokens(prompt), 2000-1000+1)
}

func TestBuildScopePrompt_NoLimit(t *testing.T) {
	prompt := BuildScopePrompt("full text stays", testIntel(), nil, llm.Params{})
	assert.True(t, strings.HasSuffix(prompt, "full text stays"))
}

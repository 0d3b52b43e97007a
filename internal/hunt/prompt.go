package hunt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dgallion1/huntgest/internal/aggregate"
	"github.com/dgallion1/huntgest/internal/catalog"
	"github.com/dgallion1/huntgest/internal/chunker"
	"github.com/dgallion1/huntgest/internal/llm"
)

const scopeInstructions = `You are planning a threat hunt based on the threat report and indicators below.

Define the scope of the hunt:
- "name": a short name for the hunt
- "purpose": one or two sentences on why the hunt matters
- "systems_areas": the systems, network segments or business areas to search
- "timeframe": the time window to search
- "data_sources": the log and telemetry sources that will be queried
- "expected_outcome": what the hunt should produce

Respond with ONLY a JSON object with these fields.`

const hypothesesInstructions = `You are a threat hunter. Using the hunt scope and indicators below, write exactly %d distinct, testable hunting hypotheses.

For each hypothesis give:
- "statement": the hypothesis, phrased so it can be confirmed or refuted
- "rationale": why the intelligence supports it
- "log_sources": logs that would confirm or refute it
- "detection_techniques": queries or analytics to run
- "priority": "high", "medium" or "low"
- "playbook": the name of the closest playbook from the catalog, exactly as written, or "" if none fits

Respond with ONLY a JSON object {"hypotheses": [...]}.`

const ableInstructions = `Break the following threat hunting hypothesis down with the ABLE method:
- "actor": who is behind the activity
- "behavior": what the actor does, described as techniques
- "location": where in the environment the behavior would be observed
- "evidence": which data would show the behavior

Respond with ONLY a JSON object with these four fields.`

// minExcerptTokens is the smallest excerpt worth including.
const minExcerptTokens = 64

// promptReserve is the output budget assumed when NumPredict is unbounded.
const promptReserve = 1024

// ExcerptBudget returns how many tokens of document text fit beside fixed
// in the model's context window. A non-positive NumCtx means no limit (-1).
func ExcerptBudget(fixed string, params llm.Params) int {
	if params.NumCtx <= 0 {
		return -1
	}
	reserve := params.NumPredict
	if reserve <= 0 || reserve > params.NumCtx/2 {
		reserve = min(promptReserve, params.NumCtx/2)
	}
	return params.NumCtx - reserve - chunker.EstimateTokens(fixed)
}

// BuildScopePrompt assembles the scope prompt. The indicator summary is always
// included in full; the document excerpt is cut to fit params.NumCtx.
func BuildScopePrompt(docText string, intel *aggregate.Intel, targets []catalog.Entry, params llm.Params) string {
	var fixed strings.Builder
	fixed.WriteString(scopeInstructions)
	if len(targets) > 0 {
		fixed.WriteString("\n\nChoose systems_areas from these available targets where they apply:\n")
		fixed.WriteString(catalog.Format(targets))
	}
	fixed.WriteString("\n\nIndicators (CSV):\n")
	fixed.WriteString(intel.CSV())

	excerpt := docText
	if budget := ExcerptBudget(fixed.String()+"\nReport excerpt:\n", params); budget >= 0 {
		if budget < minExcerptTokens {
			excerpt = ""
		} else {
			excerpt = chunker.TruncateTokens(docText, budget)
		}
	}

	var sb strings.Builder
	sb.WriteString(fixed.String())
	if excerpt != "" {
		sb.WriteString("\nReport excerpt:\n")
		sb.WriteString(excerpt)
	}
	return sb.String()
}

func buildHypothesesPrompt(in SynthesisInput) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(hypothesesInstructions, in.N))
	sb.WriteString("\n\nScope:\n")
	scope, _ := json.MarshalIndent(in.Scope, "", "  ")
	sb.Write(scope)
	if len(in.Playbooks) > 0 {
		sb.WriteString("\n\nPlaybook catalog:\n")
		sb.WriteString(catalog.Format(in.Playbooks))
	}
	sb.WriteString("\n\nIndicators (CSV):\n")
	sb.WriteString(in.Intel.CSV())
	return sb.String()
}

func buildABLEPrompt(h Hypothesis) string {
	var sb strings.Builder
	sb.WriteString(ableInstructions)
	sb.WriteString("\n\nHypothesis:\n")
	sb.WriteString(h.Statement)
	if h.Rationale != "" {
		sb.WriteString("\n\nRationale:\n")
		sb.WriteString(h.Rationale)
	}
	if len(h.LogSources) > 0 {
		sb.WriteString("\n\nLog sources: ")
		sb.WriteString(strings.Join(h.LogSources, ", "))
	}
	return sb.String()
}

package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/huntgest/internal/aggregate"
	"github.com/dgallion1/huntgest/internal/hunt"
)

// WritePlanMarkdown renders a hunt plan, followed by its indicators when
// intel is non-nil.
func WritePlanMarkdown(w io.Writer, plan *hunt.Plan, intel *aggregate.Intel) error {
	var b strings.Builder

	title := plan.Meta.Name
	if title == "" {
		title = "Threat hunt"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "- **Source:** %s\n", plan.SourceDocument)
	fmt.Fprintf(&b, "- **Model:** %s\n", plan.Model)
	fmt.Fprintf(&b, "- **Generated:** %s\n\n", plan.GeneratedAt.Format("2006-01-02 15:04 MST"))

	if plan.Meta.Purpose != "" {
		fmt.Fprintf(&b, "## Purpose\n\n%s\n\n", plan.Meta.Purpose)
	}

	b.WriteString("## Scope\n\n")
	if plan.Scope.IsZero() {
		b.WriteString("_No scope could be inferred._\n\n")
	} else {
		writeList(&b, "Systems and areas", plan.Scope.SystemsAreas)
		if plan.Scope.Timeframe != "" {
			fmt.Fprintf(&b, "- **Timeframe:** %s\n", plan.Scope.Timeframe)
		}
		writeList(&b, "Data sources", plan.Scope.DataSources)
		b.WriteString("\n")
	}
	if plan.Meta.ExpectedOutcome != "" {
		fmt.Fprintf(&b, "## Expected outcome\n\n%s\n\n", plan.Meta.ExpectedOutcome)
	}

	b.WriteString("## Hypotheses\n\n")
	if len(plan.Hypotheses) == 0 {
		b.WriteString("_No hypotheses were generated._\n\n")
	}
	for _, h := range plan.Hypotheses {
		fmt.Fprintf(&b, "### H%d. %s\n\n", h.ID, h.Statement)
		if h.Priority != "" {
			fmt.Fprintf(&b, "- **Priority:** %s\n", h.Priority)
		}
		if h.MappedPlaybook != nil {
			fmt.Fprintf(&b, "- **Playbook:** %s\n", *h.MappedPlaybook)
		}
		writeList(&b, "Log sources", h.LogSources)
		writeList(&b, "Detection", h.DetectionTechniques)
		if h.Rationale != "" {
			fmt.Fprintf(&b, "\n%s\n", h.Rationale)
		}
		if a := h.ABLE; a != nil {
			b.WriteString("\n| ABLE | |\n|---|---|\n")
			fmt.Fprintf(&b, "| Actor | %s |\n", cell(a.Actor))
			fmt.Fprintf(&b, "| Behavior | %s |\n", cell(a.Behavior))
			fmt.Fprintf(&b, "| Location | %s |\n", cell(a.Location))
			fmt.Fprintf(&b, "| Evidence | %s |\n", cell(a.Evidence))
		}
		b.WriteString("\n")
	}

	if intel != nil {
		b.WriteString("## Indicators\n\n")
		writeIntelTable(&b, intel)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteIntelMarkdown renders indicators as a Markdown table.
func WriteIntelMarkdown(w io.Writer, source string, intel *aggregate.Intel) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# Indicators: %s\n\n%s\n\n", source, intel.Summary())
	writeIntelTable(&b, intel)
	_, err := io.WriteString(w, b.String())
	return err
}

func writeIntelTable(b *strings.Builder, intel *aggregate.Intel) {
	if intel.Len() == 0 {
		b.WriteString("_No indicators found._\n")
		return
	}
	b.WriteString("| Type | Value | Context |\n|---|---|---|\n")
	for _, ind := range intel.Indicators {
		fmt.Fprintf(b, "| %s | `%s` | %s |\n", ind.Type, strings.ReplaceAll(ind.Value, "`", "'"), cell(ind.JoinedContext()))
	}
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "- **%s:** %s\n", label, strings.Join(items, ", "))
}

// cell escapes text for a Markdown table cell.
func cell(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}

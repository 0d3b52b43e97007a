package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/dgallion1/huntgest/internal/aggregate"
	"github.com/dgallion1/huntgest/internal/hunt"
)

var (
	borderColor  = lipgloss.Color("#45475A")
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")).Padding(0, 1)
	typeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4")).Align(lipgloss.Center).Padding(0, 1)
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F5C2E7")).Padding(0, 1)
	contextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1")).Padding(0, 1)
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#CDD6F4"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
)

// maxContextWidth caps the context column so wide tables stay readable.
const maxContextWidth = 80

// IntelTable renders indicators as a terminal table with Type, Value and
// Context columns.
func IntelTable(intel *aggregate.Intel) string {
	rows := make([][]string, 0, intel.Len())
	for _, ind := range intel.Indicators {
		ctx := ind.JoinedContext()
		if strings.TrimSpace(ctx) == "" {
			ctx = "N/A"
		}
		rows = append(rows, []string{string(ind.Type), ind.Value, ctx})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(borderColor)).
		Headers("Type", "Value", "Context").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			switch col {
			case 0:
				return typeStyle
			case 1:
				return valueStyle
			default:
				return contextStyle.Width(maxContextWidth)
			}
		})

	return titleStyle.Render("Extracted IOCs") + "\n" + t.Render() + "\n" + mutedStyle.Render(intel.Summary())
}

// PlanSummary renders a short terminal view of a hunt plan.
func PlanSummary(plan *hunt.Plan) string {
	var b strings.Builder
	name := plan.Meta.Name
	if name == "" {
		name = "Threat hunt"
	}
	b.WriteString(titleStyle.Render(name))
	b.WriteString("\n")
	if plan.Meta.Purpose != "" {
		b.WriteString(plan.Meta.Purpose + "\n")
	}
	b.WriteString("\n")

	if !plan.Scope.IsZero() {
		b.WriteString(headerStyle.UnsetPadding().Render("Scope") + "\n")
		fmt.Fprintf(&b, "  Systems:      %s\n", strings.Join(plan.Scope.SystemsAreas, ", "))
		fmt.Fprintf(&b, "  Timeframe:    %s\n", plan.Scope.Timeframe)
		fmt.Fprintf(&b, "  Data sources: %s\n\n", strings.Join(plan.Scope.DataSources, ", "))
	}

	rows := make([][]string, 0, len(plan.Hypotheses))
	for _, h := range plan.Hypotheses {
		pb := "-"
		if h.MappedPlaybook != nil {
			pb = *h.MappedPlaybook
		}
		prio := h.Priority
		if prio == "" {
			prio = "-"
		}
		rows = append(rows, []string{fmt.Sprintf("H%d", h.ID), prio, pb, h.Statement})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(borderColor)).
		Headers("ID", "Priority", "Playbook", "Hypothesis").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 3 {
				return contextStyle.Width(maxContextWidth)
			}
			return valueStyle
		})
	b.WriteString(t.Render())
	return b.String()
}

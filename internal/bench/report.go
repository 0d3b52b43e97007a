package bench

import (
	"fmt"
	"strings"
)

// Report collects the rows of one benchmark run.
type Report struct {
	Models []string `json:"models"`
	Rows   []Row    `json:"rows"`
}

// Markdown renders one section per model with a results table.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("# IOC Extracting Benchmark\n")
	for _, model := range r.Models {
		fmt.Fprintf(&b, "\n## %s\n\n", model)
		b.WriteString("| Source | Scraped Size | Chunk Size | Chunk Overlap | Total Inference Time | Score |\n")
		b.WriteString("|:--|--:|--:|--:|--:|--:|\n")
		for _, row := range r.Rows {
			if row.Model != model {
				continue
			}
			score := row.Score.String()
			if row.Err != "" {
				score = "error: " + row.Err
			}
			fmt.Fprintf(&b, "| %s | %d | %d | %d | %.2f s. | %s |\n",
				cell(row.Source), row.ScrapedSize, row.Chunk.Size, row.Chunk.Overlap,
				row.Elapsed.Seconds(), cell(score))
		}
	}
	return b.String()
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

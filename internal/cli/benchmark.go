package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/dgallion1/huntgest/internal/bench"
	"github.com/dgallion1/huntgest/internal/llm"
	"github.com/dgallion1/huntgest/internal/pipeline"
)

type benchmarkOptions struct {
	models   []string
	sizes    []int
	overlaps []int
	cases    string
	out      string
	raw      bool
}

func newBenchmarkCmd(g *globalFlags) *cobra.Command {
	var o benchmarkOptions
	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Score models on IOC extraction across chunk settings",
		Long: `Run extraction for every model, chunk size, chunk overlap and case, and
score each run by the share of expected keywords found in the indicators.

The case file is YAML:

  cases:
    - source: https://example.com/report
      selector: article-body
      keywords: [203.0.113.7, evil.example]`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBenchmark(cmd, g, &o)
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&o.models, "models", nil, "models to benchmark (default LLM_MODEL)")
	f.IntSliceVarP(&o.sizes, "chunk-size", "s", []int{2600}, "chunk sizes to try")
	f.IntSliceVarP(&o.overlaps, "chunk-overlap", "o", []int{300}, "chunk overlaps to try")
	f.StringVar(&o.cases, "cases", "", "YAML case file")
	f.StringVar(&o.out, "out", "", "file to write the Markdown report to")
	f.BoolVar(&o.raw, "raw", false, "print Markdown without terminal rendering")
	cmd.MarkFlagRequired("cases")
	return cmd
}

func runBenchmark(cmd *cobra.Command, g *globalFlags, o *benchmarkOptions) error {
	cases, err := bench.LoadCases(o.cases)
	if err != nil {
		return err
	}
	cfg, a, log, err := g.setup(cmd, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	models := o.models
	if len(models) == 0 {
		models = []string{cfg.LLMModel}
	}
	newRunner := func(model string) *pipeline.Runner {
		m := llm.Model{Backend: a.Model.Backend, Name: model, Params: a.Model.Params}
		return pipeline.NewRunner(m, cfg.RetryPolicy(), log)
	}

	d := bench.NewDriver(a.Loader, newRunner, log)
	stderr := cmd.ErrOrStderr()
	d.OnRow = func(r bench.Row) {
		fmt.Fprintf(stderr, "%s cs=%d co=%d %s: %s (%.2fs)\n",
			r.Model, r.Chunk.Size, r.Chunk.Overlap, r.Source, r.Score, r.Elapsed.Seconds())
	}

	rep, err := d.Run(cmd.Context(), bench.Plan{
		Models:   models,
		Sizes:    o.sizes,
		Overlaps: o.overlaps,
		Cases:    cases,
		FanOut:   cfg.MaxConcurrentExtract,
	})
	if err != nil {
		return err
	}
	md := rep.Markdown()

	if o.out != "" {
		if err := os.WriteFile(o.out, []byte(md), 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Fprintf(stderr, "saved %s\n", o.out)
	}
	return renderMarkdown(cmd.OutOrStdout(), md, o.raw)
}

// renderMarkdown styles md for the terminal, falling back to plain text.
func renderMarkdown(w io.Writer, md string, raw bool) error {
	if !raw {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(120),
		)
		if err == nil {
			if out, err := r.Render(md); err == nil {
				_, err = io.WriteString(w, out)
				return err
			}
		}
	}
	_, err := io.WriteString(w, md)
	return err
}

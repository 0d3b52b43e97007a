package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dgallion1/huntgest/internal/aggregate"
	"github.com/dgallion1/huntgest/internal/config"
	"github.com/dgallion1/huntgest/internal/extract"
	"github.com/dgallion1/huntgest/internal/pipeline"
	"github.com/dgallion1/huntgest/internal/report"
)

type huntOptions struct {
	selector   string
	hypotheses int
	able       bool
	playbooks  string
	targets    string
	iocs       string
	markdown   bool
	json       bool
	out        string
	publish    bool
}

func newHuntCmd(g *globalFlags) *cobra.Command {
	var o huntOptions
	cmd := &cobra.Command{
		Use:   "hunt SOURCE",
		Short: "Draft a threat hunting plan from a report",
		Long: `Extract indicators from a report, infer the scope of a hunt, and write
testable hunting hypotheses, optionally broken down with the ABLE method and
mapped to a playbook catalog.

With --iocs the indicators are read from a CSV file (Type,Value,Context) and
extraction is skipped; SOURCE is still read to guide scope inference.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHunt(cmd, g, &o, args[0])
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.selector, "selector", "", "CSS class or tag selector limiting HTML extraction")
	f.IntVarP(&o.hypotheses, "hypotheses", "n", 0, "number of hypotheses to generate (default NUM_HYPOTHESES)")
	f.BoolVar(&o.able, "able", false, "break each hypothesis down with the ABLE method")
	f.StringVar(&o.playbooks, "playbooks", "", "playbook catalog file (TOML, YAML or name;description lines)")
	f.StringVar(&o.targets, "targets", "", "hunt target catalog file")
	f.StringVar(&o.iocs, "iocs", "", "CSV file of indicators to use instead of extraction")
	f.BoolVar(&o.markdown, "markdown", false, "print the plan as Markdown")
	f.BoolVar(&o.json, "json", false, "print the plan as JSON")
	f.StringVar(&o.out, "out", "", "directory to save JSON and Markdown reports in")
	f.BoolVar(&o.publish, "publish", false, "publish indicators and plan to pathstore (needs PATHSTORE_URL)")
	g.addChunkFlags(cmd)
	cmd.MarkFlagsMutuallyExclusive("markdown", "json")
	return cmd
}

func runHunt(cmd *cobra.Command, g *globalFlags, o *huntOptions, src string) error {
	if o.hypotheses < 0 {
		return fmt.Errorf("--hypotheses must not be negative")
	}
	cfg, a, log, err := g.setup(cmd, func(cfg *config.Config) {
		g.applyChunkFlags(cmd, cfg)
		if o.playbooks != "" {
			cfg.PlaybooksFile = o.playbooks
		}
		if o.targets != "" {
			cfg.TargetsFile = o.targets
		}
		if o.hypotheses > 0 {
			cfg.NumHypotheses = o.hypotheses
		}
		if o.able {
			cfg.EnrichABLE = true
		}
	})
	if err != nil {
		return err
	}
	defer a.Close()
	if o.publish && a.Publisher == nil {
		return errNoPathstore
	}
	ctx := cmd.Context()
	opts := a.Options(cfg)

	doc, err := a.Loader.Load(ctx, src, o.selector)
	if err != nil {
		return err
	}

	var res *pipeline.HuntResult
	if o.iocs != "" {
		intel, err := importIntel(o.iocs, doc.Text)
		if err != nil {
			return err
		}
		log.Info("imported indicators", "file", o.iocs, "indicators", intel.Len())
		res, err = a.Runner.HuntFromIntel(ctx, doc, intel, opts)
		if err != nil {
			return err
		}
	} else {
		res, err = a.Runner.Hunt(ctx, doc, opts)
		if err != nil {
			return err
		}
	}
	for _, d := range res.Degradations {
		log.Warn("degraded", "stage", d.Stage, "kind", d.Kind, "index", d.Index, "detail", d.Detail)
	}

	if o.publish {
		if err := publishIntel(cmd, a.Publisher, doc.Source, res.Intel); err != nil {
			return err
		}
		if err := a.Publisher.PublishPlan(ctx, res.Plan); err != nil {
			return err
		}
	}
	if o.out != "" {
		if err := saveHunt(cmd, cfg, o.out, doc.Source, res); err != nil {
			return err
		}
	}

	w := cmd.OutOrStdout()
	switch {
	case o.json:
		return report.WriteJSON(w, res)
	case o.markdown:
		return report.WritePlanMarkdown(w, res.Plan, res.Intel)
	default:
		_, err := fmt.Fprintln(w, report.IntelTable(res.Intel)+"\n\n"+report.PlanSummary(res.Plan))
		return err
	}
}

// importIntel reads an IOC CSV and aggregates it as a single chunk.
func importIntel(path, text string) (*aggregate.Intel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open iocs: %w", err)
	}
	defer f.Close()
	records, err := aggregate.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return aggregate.Aggregate(text, []extract.Result{{Records: records}}), nil
}

func saveHunt(cmd *cobra.Command, cfg config.Config, dir, src string, res *pipeline.HuntResult) error {
	np := nameParams(cfg)
	for _, f := range []struct {
		ext   string
		write func(io.Writer) error
	}{
		{"json", func(w io.Writer) error { return report.WriteJSON(w, res) }},
		{"md", func(w io.Writer) error { return report.WritePlanMarkdown(w, res.Plan, res.Intel) }},
	} {
		path, err := report.Save(dir, report.Name(report.KindHunt, src, np, f.ext), f.write)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "saved %s\n", path)
	}
	return nil
}

package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dgallion1/huntgest/internal/aggregate"
	"github.com/dgallion1/huntgest/internal/config"
	"github.com/dgallion1/huntgest/internal/report"
)

type analyzeOptions struct {
	selector string
	json     bool
	csv      bool
	out      string
	publish  bool
}

func newAnalyzeCmd(g *globalFlags) *cobra.Command {
	var o analyzeOptions
	cmd := &cobra.Command{
		Use:   "analyze SOURCE",
		Short: "Extract indicators of compromise from a report",
		Long: `Extract and deduplicate indicators of compromise from a report given as a
URL or a local file (HTML, PDF, DOCX, Markdown, CSV or text).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, g, &o, args[0])
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.selector, "selector", "", "CSS class or tag selector limiting HTML extraction")
	f.BoolVar(&o.json, "json", false, "print the result as JSON")
	f.BoolVar(&o.csv, "csv", false, "print the indicators as CSV")
	f.StringVar(&o.out, "out", "", "directory to save JSON and CSV reports in")
	f.BoolVar(&o.publish, "publish", false, "publish indicators to pathstore (needs PATHSTORE_URL)")
	g.addChunkFlags(cmd)
	cmd.MarkFlagsMutuallyExclusive("json", "csv")
	return cmd
}

func runAnalyze(cmd *cobra.Command, g *globalFlags, o *analyzeOptions, src string) error {
	cfg, a, log, err := g.setup(cmd, func(cfg *config.Config) { g.applyChunkFlags(cmd, cfg) })
	if err != nil {
		return err
	}
	defer a.Close()
	if o.publish && a.Publisher == nil {
		return errNoPathstore
	}
	ctx := cmd.Context()

	doc, err := a.Loader.Load(ctx, src, o.selector)
	if err != nil {
		return err
	}
	log.Info("document loaded", "source", doc.Source, "chars", len(doc.Text))

	res, err := a.Runner.ExtractIntel(ctx, doc, a.Options(cfg))
	if err != nil {
		return err
	}
	for _, d := range res.Degradations {
		log.Warn("degraded", "stage", d.Stage, "kind", d.Kind, "index", d.Index, "detail", d.Detail)
	}

	if o.publish {
		if err := publishIntel(cmd, a.Publisher, doc.Source, res.Intel); err != nil {
			return err
		}
	}
	if o.out != "" {
		if err := saveIntel(cmd, cfg, o.out, doc.Source, res.Intel); err != nil {
			return err
		}
	}

	w := cmd.OutOrStdout()
	switch {
	case o.json:
		return report.WriteJSON(w, res)
	case o.csv:
		return res.Intel.WriteCSV(w)
	default:
		_, err := fmt.Fprintln(w, report.IntelTable(res.Intel))
		return err
	}
}

func saveIntel(cmd *cobra.Command, cfg config.Config, dir, src string, intel *aggregate.Intel) error {
	np := nameParams(cfg)
	for _, f := range []struct {
		ext   string
		write func(io.Writer) error
	}{
		{"json", func(w io.Writer) error { return report.WriteJSON(w, intel) }},
		{"csv", intel.WriteCSV},
	} {
		path, err := report.Save(dir, report.Name(report.KindIOCs, src, np, f.ext), f.write)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "saved %s\n", path)
	}
	return nil
}

var errNoPathstore = errors.New("--publish needs PATHSTORE_URL")

func publishIntel(cmd *cobra.Command, pub *report.Publisher, src string, intel *aggregate.Intel) error {
	n, err := pub.PublishIntel(cmd.Context(), src, intel)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "published %d indicators\n", n)
	return nil
}

func nameParams(cfg config.Config) report.NameParams {
	return report.NameParams{
		ChunkSize:    cfg.DefaultChunkSize,
		ChunkOverlap: cfg.DefaultChunkOverlap,
		NumCtx:       cfg.NumCtx,
		NumPredict:   cfg.NumPredict,
	}
}

package bench

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/dgallion1/huntgest/internal/chunker"
	"github.com/dgallion1/huntgest/internal/doctree"
	"github.com/dgallion1/huntgest/internal/pipeline"
)

// Loader fetches a case's document.
type Loader interface {
	Load(ctx context.Context, src, selector string) (doctree.Document, error)
}

// Plan is the grid to run: every model × size × overlap × case.
type Plan struct {
	Models   []string
	Sizes    []int
	Overlaps []int
	Cases    []Case
	FanOut   int
}

// Row is one benchmark measurement.
type Row struct {
	Model       string         `json:"model"`
	Source      string         `json:"source"`
	ScrapedSize int            `json:"scraped_size"` // characters
	Chunk       chunker.Params `json:"chunk"`
	Elapsed     time.Duration  `json:"elapsed"`
	Score       Score          `json:"score"`
	Err         string         `json:"error,omitempty"`
}

// Driver runs benchmark plans.
type Driver struct {
	loader    Loader
	newRunner func(model string) *pipeline.Runner
	log       *slog.Logger

	// OnRow, when set, is called after each measurement.
	OnRow func(Row)
}

// NewDriver returns a driver. newRunner builds the runner for a model name.
func NewDriver(loader Loader, newRunner func(model string) *pipeline.Runner, log *slog.Logger) *Driver {
	return &Driver{loader: loader, newRunner: newRunner, log: log}
}

type loaded struct {
	doc doctree.Document
	err error
}

// Run executes the plan. Documents are loaded once per case. A case whose
// document cannot be loaded, or whose extraction fails, is reported as a row
// with Err set; cancellation stops the run.
func (d *Driver) Run(ctx context.Context, plan Plan) (*Report, error) {
	if len(plan.Models) == 0 {
		return nil, errors.New("no models to benchmark")
	}
	if len(plan.Cases) == 0 {
		return nil, errors.New("no benchmark cases")
	}
	var grid []chunker.Params
	for _, size := range plan.Sizes {
		for _, overlap := range plan.Overlaps {
			p := chunker.Params{Size: size, Overlap: overlap}
			if err := p.Validate(); err != nil {
				return nil, err
			}
			grid = append(grid, p)
		}
	}
	if len(grid) == 0 {
		return nil, fmt.Errorf("%w: no chunk sizes or overlaps", chunker.ErrInvalidConfig)
	}

	docs := make([]loaded, len(plan.Cases))
	for i, c := range plan.Cases {
		docs[i].doc, docs[i].err = d.loader.Load(ctx, c.Source, c.Selector)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if docs[i].err != nil {
			d.log.Warn("benchmark case unavailable", "source", c.Source, "error", docs[i].err)
		}
	}

	rep := &Report{Models: plan.Models}
	for _, model := range plan.Models {
		runner := d.newRunner(model)
		for _, params := range grid {
			for i, c := range plan.Cases {
				row, err := d.measure(ctx, runner, model, params, plan.FanOut, c, docs[i])
				if err != nil {
					return rep, err
				}
				rep.Rows = append(rep.Rows, row)
				if d.OnRow != nil {
					d.OnRow(row)
				}
			}
		}
	}
	return rep, nil
}

func (d *Driver) measure(ctx context.Context, runner *pipeline.Runner, model string, params chunker.Params, fanOut int, c Case, ld loaded) (Row, error) {
	row := Row{
		Model:       model,
		Source:      c.Source,
		ScrapedSize: utf8.RuneCountInString(ld.doc.Text),
		Chunk:       params,
		Score:       Rate(nil, c.Keywords),
	}
	if ld.err != nil {
		row.Err = ld.err.Error()
		return row, nil
	}

	opts := pipeline.DefaultOptions()
	opts.Chunk = params
	if fanOut > 0 {
		opts.FanOut = fanOut
	}

	start := time.Now()
	res, err := runner.ExtractIntel(ctx, ld.doc, opts)
	row.Elapsed = time.Since(start)
	if err != nil {
		if errors.Is(err, pipeline.ErrPipelineCancelled) {
			return row, err
		}
		row.Err = err.Error()
		return row, nil
	}
	row.Score = Rate(res.Intel, c.Keywords)
	d.log.Info("benchmark row",
		"model", model,
		"source", c.Source,
		"chunk_size", params.Size,
		"chunk_overlap", params.Overlap,
		"elapsed", row.Elapsed,
		"score", row.Score.String())
	return row, nil
}

// Package aggregate merges per-chunk extraction results into one
// deduplicated view of a document's indicators.
package aggregate

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/dgallion1/huntgest/internal/extract"
)

// Context is one distinct description of an indicator and the earliest chunk
// it was seen in.
type Context struct {
	Text  string `json:"text"`
	Chunk int    `json:"chunk"`
}

// Indicator is a deduplicated IOC.
type Indicator struct {
	Type        extract.Type `json:"type"`
	Value       string       `json:"value"`
	Contexts    []Context    `json:"contexts"`
	SourceChunk int          `json:"source_chunk"` // lowest chunk index it appeared in
}

// JoinedContext returns the contexts joined with " | ".
func (i Indicator) JoinedContext() string {
	texts := make([]string, len(i.Contexts))
	for n, c := range i.Contexts {
		texts[n] = c.Text
	}
	return strings.Join(texts, " | ")
}

// Intel is the aggregated view of a whole document.
type Intel struct {
	Indicators []Indicator          `json:"indicators"`
	Text       string               `json:"text,omitempty"`
	Counts     map[extract.Type]int `json:"counts"`
}

type group struct {
	key      extract.Key
	minChunk int
	contexts map[string]int // text -> earliest chunk
}

// Aggregate groups records by (type, value). The result does not depend on
// the order of results or of the records inside them.
func Aggregate(text string, results []extract.Result) *Intel {
	groups := make(map[extract.Key]*group)
	for _, res := range results {
		for _, rec := range res.Records {
			key := rec.Key()
			g, ok := groups[key]
			if !ok {
				g = &group{key: key, minChunk: rec.SourceChunk, contexts: make(map[string]int)}
				groups[key] = g
			}
			g.minChunk = min(g.minChunk, rec.SourceChunk)

			ctx := strings.TrimSpace(rec.Context)
			if ctx == "" {
				continue
			}
			if seen, ok := g.contexts[ctx]; !ok || rec.SourceChunk < seen {
				g.contexts[ctx] = rec.SourceChunk
			}
		}
	}

	intel := &Intel{
		Indicators: make([]Indicator, 0, len(groups)),
		Text:       text,
		Counts:     make(map[extract.Type]int),
	}
	for _, g := range groups {
		ind := Indicator{
			Type:        g.key.Type,
			Value:       g.key.Value,
			SourceChunk: g.minChunk,
			Contexts:    make([]Context, 0, len(g.contexts)),
		}
		for t, chunk := range g.contexts {
			ind.Contexts = append(ind.Contexts, Context{Text: t, Chunk: chunk})
		}
		slices.SortFunc(ind.Contexts, func(a, b Context) int {
			return cmp.Or(cmp.Compare(a.Chunk, b.Chunk), strings.Compare(a.Text, b.Text))
		})
		intel.Indicators = append(intel.Indicators, ind)
		intel.Counts[ind.Type]++
	}
	slices.SortFunc(intel.Indicators, func(a, b Indicator) int {
		return cmp.Or(cmp.Compare(a.Type.Rank(), b.Type.Rank()),
			strings.Compare(string(a.Type), string(b.Type)),
			strings.Compare(a.Value, b.Value))
	})
	return intel
}

// Records flattens the intel back into records such that aggregating them
// again yields the same Intel.
func (in *Intel) Records() []extract.Record {
	var out []extract.Record
	for _, ind := range in.Indicators {
		out = append(out, extract.Record{Type: ind.Type, Value: ind.Value, SourceChunk: ind.SourceChunk})
		for _, c := range ind.Contexts {
			out = append(out, extract.Record{Type: ind.Type, Value: ind.Value, Context: c.Text, SourceChunk: c.Chunk})
		}
	}
	return out
}

// Len returns the number of distinct indicators.
func (in *Intel) Len() int { return len(in.Indicators) }

// Summary renders the per-type counts in type order, e.g. "ip: 2, domain: 1".
func (in *Intel) Summary() string {
	var parts []string
	for _, t := range extract.Types {
		if n := in.Counts[t]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s: %d", t, n))
		}
	}
	if len(parts) == 0 {
		return "no indicators"
	}
	return strings.Join(parts, ", ")
}

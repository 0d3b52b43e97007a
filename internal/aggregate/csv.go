package aggregate

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/huntgest/internal/extract"
)

var csvHeader = []string{"Type", "Value", "Context"}

// WriteCSV writes one row per indicator with its contexts joined by " | ".
func (in *Intel) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, ind := range in.Indicators {
		if err := cw.Write([]string{string(ind.Type), ind.Value, ind.JoinedContext()}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSV returns the indicators as CSV text. A nil Intel yields only the header.
func (in *Intel) CSV() string {
	if in == nil {
		in = &Intel{}
	}
	var b strings.Builder
	in.WriteCSV(&b)
	return b.String()
}

// ReadCSV parses an IOC CSV with Type, Value and Context columns (any case,
// any order). Rows that fail normalization are skipped; joined contexts are
// split back apart.
func ReadCSV(r io.Reader) ([]extract.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cols := map[string]int{}
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	typeCol, okType := cols["type"]
	valueCol, okValue := cols["value"]
	if !okType || !okValue {
		return nil, fmt.Errorf("csv header must contain Type and Value columns, got %v", header)
	}
	contextCol, hasContext := cols["context"]

	var out []extract.Record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if typeCol >= len(row) || valueCol >= len(row) {
			continue
		}
		value := row[valueCol]
		rec := extract.Record{Type: extract.ParseType(row[typeCol], extract.Defang(value)), Value: value}
		rec, err = extract.Normalize(rec)
		if err != nil {
			continue
		}

		var contexts []string
		if hasContext && contextCol < len(row) {
			contexts = strings.Split(row[contextCol], " | ")
		}
		out = append(out, rec)
		for _, c := range contexts {
			if c = strings.TrimSpace(c); c != "" {
				out = append(out, extract.Record{Type: rec.Type, Value: rec.Value, Context: c})
			}
		}
	}
	return out, nil
}

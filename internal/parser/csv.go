package parser

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/huntgest/internal/doctree"
)

// csvBatch is the number of data rows rendered per node.
const csvBatch = 20

// CSVParser handles indicator exports and other delimited tables. The
// delimiter (comma, semicolon or tab) is sniffed from the header row; each
// data row is rendered as "header: value" pairs.
type CSVParser struct{}

func (p *CSVParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	br := bufio.NewReader(r)
	reader := csv.NewReader(br)
	reader.Comma = sniffDelimiter(br)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	tree := &doctree.DocTree{Title: trimExt(filename)}
	if len(records) == 0 {
		return tree, nil
	}

	headers, rows := records[0], records[1:]
	for i := 0; i < len(rows); i += csvBatch {
		end := min(i+csvBatch, len(rows))

		var text strings.Builder
		for _, row := range rows[i:end] {
			text.WriteString(csvRow(headers, row))
			text.WriteByte('\n')
		}
		tree.Children = append(tree.Children, &doctree.DocNode{
			// Line numbers are 1-based and count the header.
			Title: fmt.Sprintf("Rows %d-%d", i+2, end+1),
			Text:  strings.TrimRight(text.String(), "\n"),
		})
	}
	return tree, nil
}

func csvRow(headers, row []string) string {
	parts := make([]string, 0, len(row))
	for j, cell := range row {
		if cell == "" {
			continue
		}
		if j < len(headers) && headers[j] != "" {
			parts = append(parts, headers[j]+": "+cell)
		} else {
			parts = append(parts, cell)
		}
	}
	return strings.Join(parts, "; ")
}

// sniffDelimiter picks the most frequent candidate in the first line.
func sniffDelimiter(br *bufio.Reader) rune {
	head, _ := br.Peek(4096)
	line, _, _ := strings.Cut(string(head), "\n")
	best, bestN := ',', strings.Count(line, ",")
	for _, d := range []rune{';', '\t'} {
		if n := strings.Count(line, string(d)); n > bestN {
			best, bestN = d, n
		}
	}
	return best
}

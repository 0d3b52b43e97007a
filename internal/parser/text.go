package parser

import (
	"bufio"
	"io"
	"strings"

	"github.com/dgallion1/huntgest/internal/doctree"
)

// TextParser handles plain-text reports. Blank lines separate paragraphs; a
// paragraph whose first line is underlined with "===" or "---" is titled.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	tree := &doctree.DocTree{Title: trimExt(filename)}
	var lines []string
	flush := func() {
		if len(lines) > 0 {
			tree.Children = append(tree.Children, textNode(lines))
			lines = nil
		}
	}

	first := true
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()
	return tree, nil
}

func textNode(lines []string) *doctree.DocNode {
	if len(lines) >= 2 && isUnderline(lines[1]) {
		return &doctree.DocNode{
			Title: strings.TrimSpace(lines[0]),
			Text:  strings.Join(lines[2:], "\n"),
		}
	}
	return &doctree.DocNode{Text: strings.Join(lines, "\n")}
}

func isUnderline(line string) bool {
	line = strings.TrimSpace(line)
	if len(line) < 3 {
		return false
	}
	return strings.Trim(line, "=") == "" || strings.Trim(line, "-") == ""
}

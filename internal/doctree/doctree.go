package doctree

import (
	"strings"
	"time"
)

// DocTree is the root of a parsed document.
type DocTree struct {
	Title    string     // Document title (from metadata or filename)
	Children []*DocNode // Top-level sections
}

// DocNode is a recursive section in the document tree.
type DocNode struct {
	Title    string     // Section heading (empty for leaf text)
	Text     string     // Text content of this node (may be empty for container nodes)
	Page     int        // Source page/line (0 if N/A)
	Children []*DocNode // Subsections
}

// Document is the normalized plain text of a threat report, ready for chunking.
type Document struct {
	Text        string    `json:"text"`
	Source      string    `json:"source"` // URL or file path
	Title       string    `json:"title,omitempty"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// Len returns the length of the document text in characters.
func (d Document) Len() int {
	return len([]rune(d.Text))
}

// Chunk is a contiguous window of a Document.
// Start and End are character offsets into Document.Text, End exclusive.
type Chunk struct {
	Index int    `json:"index"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// Flatten renders a tree as plain text: headings on their own line,
// sections separated by blank lines.
func Flatten(tree *DocTree) string {
	if tree == nil {
		return ""
	}
	var parts []string
	for _, child := range tree.Children {
		parts = flattenNode(child, parts)
	}
	return strings.Join(parts, "\n\n")
}

func flattenNode(node *DocNode, parts []string) []string {
	var b strings.Builder
	if t := strings.TrimSpace(node.Title); t != "" {
		b.WriteString(t)
	}
	if t := strings.TrimSpace(node.Text); t != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(t)
	}
	if b.Len() > 0 {
		parts = append(parts, b.String())
	}
	for _, child := range node.Children {
		parts = flattenNode(child, parts)
	}
	return parts
}

package chunker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgallion1/huntgest/internal/doctree"
)

// ErrInvalidConfig is returned when the window parameters cannot produce
// progress through the document.
var ErrInvalidConfig = errors.New("invalid chunk config")

// Params controls the sliding window. Sizes are in characters.
type Params struct {
	Size    int `json:"chunk_size"`
	Overlap int `json:"chunk_overlap"`
}

// DefaultParams returns the window used when nothing is configured.
func DefaultParams() Params {
	return Params{Size: 2600, Overlap: 300}
}

// Validate reports whether the window advances.
func (p Params) Validate() error {
	if p.Size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, p.Size)
	}
	if p.Overlap < 0 {
		return fmt.Errorf("%w: chunk overlap must not be negative, got %d", ErrInvalidConfig, p.Overlap)
	}
	if p.Overlap >= p.Size {
		return fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d", ErrInvalidConfig, p.Overlap, p.Size)
	}
	return nil
}

// Chunk splits the document into windows of p.Size characters, each starting
// p.Size-p.Overlap characters after the previous one. The last window may be
// shorter. An empty document yields no chunks.
func Chunk(doc doctree.Document, p Params) ([]doctree.Chunk, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	text := []rune(doc.Text)
	if len(text) == 0 {
		return nil, nil
	}

	step := p.Size - p.Overlap
	chunks := make([]doctree.Chunk, 0, (len(text)+step-1)/step)
	for start := 0; ; start += step {
		end := min(start+p.Size, len(text))
		chunks = append(chunks, doctree.Chunk{
			Index: len(chunks),
			Start: start,
			End:   end,
			Text:  string(text[start:end]),
		})
		if end == len(text) {
			break
		}
	}
	return chunks, nil
}

// Reassemble rebuilds the original text from chunks produced by Chunk,
// skipping the characters each chunk shares with its predecessor.
func Reassemble(chunks []doctree.Chunk) string {
	var b strings.Builder
	covered := 0
	for _, c := range chunks {
		text := []rune(c.Text)
		if skip := covered - c.Start; skip > 0 {
			if skip >= len(text) {
				continue
			}
			text = text[skip:]
		}
		b.WriteString(string(text))
		covered = c.End
	}
	return b.String()
}

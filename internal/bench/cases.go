// Package bench measures how well models extract indicators from known
// reports across chunking configurations.
package bench

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dgallion1/huntgest/internal/aggregate"
)

// Case is one benchmark document and the indicator fragments a good
// extraction should surface.
type Case struct {
	Source   string   `yaml:"source"`
	Selector string   `yaml:"selector,omitempty"`
	Keywords []string `yaml:"keywords"`
}

type caseFile struct {
	Cases []Case `yaml:"cases"`
}

// LoadCases reads a YAML case file.
func LoadCases(path string) ([]Case, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cases: %w", err)
	}
	defer f.Close()
	cases, err := ParseCases(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cases, nil
}

// ParseCases decodes cases from YAML of the form {cases: [{source, selector,
// keywords}]}.
func ParseCases(r io.Reader) ([]Case, error) {
	var doc caseFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("no cases")
		}
		return nil, fmt.Errorf("decode cases: %w", err)
	}
	if len(doc.Cases) == 0 {
		return nil, errors.New("no cases")
	}
	for i, c := range doc.Cases {
		if strings.TrimSpace(c.Source) == "" {
			return nil, fmt.Errorf("case %d: source is required", i)
		}
	}
	return doc.Cases, nil
}

// Score is the share of keywords found in the extracted indicators.
type Score struct {
	Matched int `json:"matched"`
	Total   int `json:"total"`
}

// Percent returns the match rate, or 0 when there are no keywords.
func (s Score) Percent() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Matched) / float64(s.Total) * 100
}

// String formats the score as "10/12 83.33%".
func (s Score) String() string {
	return fmt.Sprintf("%d/%d %.2f%%", s.Matched, s.Total, s.Percent())
}

// Rate counts the keywords that occur, case-insensitively, as a substring
// of at least one indicator value. Duplicate keywords count once.
func Rate(intel *aggregate.Intel, keywords []string) Score {
	seen := make(map[string]bool, len(keywords))
	var s Score
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		s.Total++
		if intel == nil {
			continue
		}
		for _, ind := range intel.Indicators {
			if strings.Contains(strings.ToLower(ind.Value), k) {
				s.Matched++
				break
			}
		}
	}
	return s
}

// Package catalog loads named entries (hunt playbooks, hunt targets) that
// the planner offers to the model.
package catalog

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrEmpty is returned when a catalog file has no entries.
var ErrEmpty = errors.New("catalog has no entries")

// Entry is one catalog item.
type Entry struct {
	Name        string `toml:"name" yaml:"name" json:"name"`
	Description string `toml:"description" yaml:"description" json:"description,omitempty"`
}

type document struct {
	Entry    []Entry `toml:"entry" yaml:"entries"`
	Playbook []Entry `toml:"playbook" yaml:"playbooks"`
	Target   []Entry `toml:"target" yaml:"targets"`
}

func (d document) entries() []Entry {
	var out []Entry
	out = append(out, d.Entry...)
	out = append(out, d.Playbook...)
	return append(out, d.Target...)
}

// Load reads a catalog file. The format is chosen by extension: .toml,
// .yaml/.yml, and anything else as "name;description" lines.
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	entries, err := Parse(bytes.NewReader(data), filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

// LoadOptional is Load for optional catalogs: an empty path yields no entries.
func LoadOptional(path string) ([]Entry, error) {
	if path == "" {
		return nil, nil
	}
	return Load(path)
}

// Parse decodes a catalog in the format named by ext.
func Parse(r io.Reader, ext string) ([]Entry, error) {
	var (
		entries []Entry
		err     error
	)
	switch strings.ToLower(ext) {
	case ".toml":
		var doc document
		if err = toml.NewDecoder(r).Decode(&doc); err == nil {
			entries = doc.entries()
		}
	case ".yaml", ".yml":
		entries, err = parseYAML(r)
	default:
		entries, err = parseLines(r)
	}
	if err != nil {
		return nil, err
	}
	return validate(entries)
}

// parseYAML accepts either a bare list of entries or a mapping with an
// entries, playbooks or targets list.
func parseYAML(r io.Reader) ([]Entry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var list []Entry
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode yaml catalog: %w", err)
	}
	return doc.entries(), nil
}

func parseLines(r io.Reader) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, desc, _ := strings.Cut(line, ";")
		entries = append(entries, Entry{Name: strings.TrimSpace(name), Description: strings.TrimSpace(desc)})
	}
	return entries, sc.Err()
}

func validate(entries []Entry) ([]Entry, error) {
	if len(entries) == 0 {
		return nil, ErrEmpty
	}
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("entry %d has no name", i+1)
		}
		key := strings.ToLower(e.Name)
		if seen[key] {
			return nil, fmt.Errorf("duplicate entry %q", e.Name)
		}
		seen[key] = true
	}
	return entries, nil
}

// Lookup finds an entry by case-insensitive name.
func Lookup(entries []Entry, name string) (Entry, bool) {
	name = strings.TrimSpace(name)
	for _, e := range entries {
		if strings.EqualFold(e.Name, name) {
			return e, true
		}
	}
	return Entry{}, false
}

// Format renders entries as a bullet list for prompts.
func Format(entries []Entry) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString("- ")
		b.WriteString(e.Name)
		if e.Description != "" {
			b.WriteString(": ")
			b.WriteString(e.Description)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Package report renders pipeline output as JSON, CSV and Markdown files and
// terminal tables, and publishes it to pathstore.
package report

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Report kinds used in file names.
const (
	KindIOCs = "iocs"
	KindHunt = "hunt"
	KindDoc  = "doc"
)

// NameParams are the run settings encoded into a report file name.
type NameParams struct {
	ChunkSize    int
	ChunkOverlap int
	NumCtx       int
	NumPredict   int
}

// Name builds "<kind>_<slug>_cs-N_co-N_nc-N_np-N.<ext>". An empty kind or
// ext is left out.
func Name(kind, source string, p NameParams, ext string) string {
	var b strings.Builder
	if kind != "" {
		b.WriteString(kind)
		b.WriteByte('_')
	}
	b.WriteString(Slugify(stripScheme(source)))
	fmt.Fprintf(&b, "_cs-%d_co-%d_nc-%d_np-%d", p.ChunkSize, p.ChunkOverlap, p.NumCtx, p.NumPredict)
	if ext != "" {
		b.WriteByte('.')
		b.WriteString(strings.TrimPrefix(ext, "."))
	}
	return b.String()
}

func stripScheme(s string) string {
	for _, p := range []string{"https://", "http://"} {
		if strings.HasPrefix(strings.ToLower(s), p) {
			return s[len(p):]
		}
	}
	return s
}

// Slugify lowercases s, drops accents, and joins runs of letters and digits
// with single hyphens.
func Slugify(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range norm.NFKD.String(s) {
		switch {
		case unicode.Is(unicode.Mn, r):
			continue
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(unicode.ToLower(r))
		default:
			pendingDash = true
		}
	}
	if b.Len() == 0 {
		return "report"
	}
	return b.String()
}

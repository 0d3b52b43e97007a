package extract

import (
	"fmt"
	"net/netip"
	"regexp"
	"strings"
)

var defanger = strings.NewReplacer(
	"[.]", ".", "(.)", ".", "{.}", ".", "[dot]", ".", "(dot)", ".",
	"[:]", ":", "[://]", "://",
	"[@]", "@", "[at]", "@", "(at)", "@",
)

var (
	hxxpRe  = regexp.MustCompile(`(?i)\bhxxp(s?)://`)
	hexRe   = regexp.MustCompile(`^[0-9a-f]+$`)
	cveRe   = regexp.MustCompile(`(?i)^cve-\d{4}-\d{4,}$`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// instructionPattern matches text addressed to the model rather than
// describing the threat, such as "ignore previous instructions".
var instructionPattern = regexp.MustCompile(
	`(?i)\b(ignore|disregard|forget)\s+(all\s+|any\s+)?(previous|prior|above|earlier)\s+` +
		`(instructions|prompts?|rules)\b`,
)

var hashLengths = map[Type]int{TypeMD5: 32, TypeSHA1: 40, TypeSHA256: 64}

// Defang reverses the usual obfuscation of indicators in reports.
func Defang(v string) string {
	v = defanger.Replace(v)
	return hxxpRe.ReplaceAllString(v, "http$1://")
}

// Normalize canonicalizes a record so equal indicators compare equal.
// It returns an error wrapping ErrMalformedExtraction when the value is
// empty or a hash does not match its declared type.
func Normalize(r Record) (Record, error) {
	r.Context = cleanContext(r.Context)

	v := Defang(strings.TrimSpace(r.Value))
	v = strings.Trim(v, " \t\r\n\"'`<>,;")
	if r.Type != TypeURL && r.Type != TypeOther && r.Type != TypeFilename {
		v = strings.Trim(v, ".()[]{}")
	}
	if v == "" {
		return r, fmt.Errorf("%w: empty %s value", ErrMalformedExtraction, r.Type)
	}

	switch r.Type {
	case TypeIP:
		if addr, err := netip.ParseAddr(v); err == nil {
			v = addr.String()
		}
	case TypeDomain:
		v = strings.TrimSuffix(strings.ToLower(v), ".")
	case TypeURL:
		v = lowerSchemeHost(strings.TrimRight(v, ".)"))
	case TypeMD5, TypeSHA1, TypeSHA256:
		v = strings.ToLower(v)
		if len(v) != hashLengths[r.Type] || !hexRe.MatchString(v) {
			return r, fmt.Errorf("%w: %q is not a valid %s", ErrMalformedExtraction, v, r.Type)
		}
	case TypeEmail:
		v = strings.ToLower(v)
	case TypeCVE:
		v = strings.ToUpper(v)
		if !cveRe.MatchString(v) {
			r.Type = TypeOther
		}
	}

	r.Value = v
	return r, nil
}

func cleanContext(s string) string {
	s = strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
	if instructionPattern.MatchString(s) {
		return ""
	}
	if r := []rune(s); len(r) > 500 {
		s = string(r[:500])
	}
	return s
}

// lowerSchemeHost lowercases the scheme and host of a URL and leaves the
// path, query and fragment untouched.
func lowerSchemeHost(v string) string {
	idx := strings.Index(v, "://")
	if idx <= 0 {
		return v
	}
	rest := v[idx+3:]
	hostEnd := strings.IndexAny(rest, "/?#")
	if hostEnd < 0 {
		hostEnd = len(rest)
	}
	return strings.ToLower(v[:idx+3]) + strings.ToLower(rest[:hostEnd]) + rest[hostEnd:]
}

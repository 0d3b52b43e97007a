package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var codeBlockRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

func stripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

// decodeContent turns model text into a JSON object, tolerating code fences
// and leading chatter before the first brace.
func decodeContent(backend, text string) (json.RawMessage, error) {
	s := stripCodeBlock(text)
	if !json.Valid([]byte(s)) {
		start := strings.IndexByte(s, '{')
		end := strings.LastIndexByte(s, '}')
		if start < 0 || end <= start || !json.Valid([]byte(s[start:end+1])) {
			return nil, malformed(backend, text, errors.New("response is not valid JSON"))
		}
		s = s[start : end+1]
	}
	return json.RawMessage(s), nil
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

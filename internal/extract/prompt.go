package extract

import (
	"fmt"
	"strings"

	"github.com/dgallion1/huntgest/internal/doctree"
)

const ExtractionPrompt = `You are a threat intelligence analyst. Extract every indicator of compromise (IOC) from the report excerpt below.

Return a JSON object with a single field "iocs": an array of objects, each with:
- "type": one of "ip", "domain", "url", "hash-md5", "hash-sha1", "hash-sha256", "email", "filename", "cve", "other"
- "value": the indicator exactly as written, including any defanging such as [.] or hxxp
- "context": one short sentence on the role the indicator plays (C2 server, dropper, phishing sender...)

Rules:
- Only report indicators that appear literally in the excerpt
- Do not report the report's own publisher, vendors or reference links as indicators
- One entry per distinct indicator
- If there are no indicators, return {"iocs": []}

Respond with ONLY the JSON object, no other text.`

// BuildChunkPrompt creates the extraction prompt for one chunk, including
// the source document and the chunk's position in it.
func BuildChunkPrompt(source string, chunk doctree.Chunk) string {
	var sb strings.Builder
	sb.WriteString(ExtractionPrompt)
	sb.WriteString("\n\n---\n")
	if source != "" {
		sb.WriteString(fmt.Sprintf("Document: %q\n", source))
	}
	sb.WriteString(fmt.Sprintf("Excerpt %d (characters %d-%d)\n", chunk.Index+1, chunk.Start, chunk.End))
	sb.WriteString("---\n")
	sb.WriteString(chunk.Text)
	return sb.String()
}

package extract

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgallion1/huntgest/internal/llm"
)

var (
	// ErrMalformedExtraction marks a single returned entry that failed
	// validation. The entry is dropped and extraction continues.
	ErrMalformedExtraction = errors.New("malformed extraction")

	// ErrChunkExtractionFailed marks a chunk whose inference call failed
	// after retries.
	ErrChunkExtractionFailed = errors.New("chunk extraction failed")
)

// decodeResponse splits a model response into its entries. The response must
// be an object with an "iocs" array, or a bare array.
func decodeResponse(raw json.RawMessage) ([]any, error) {
	var top any
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", llm.ErrInvalidOutput, err)
	}
	switch v := top.(type) {
	case []any:
		return v, nil
	case map[string]any:
		list, present := v["iocs"]
		if !present {
			return nil, fmt.Errorf("%w: response has no \"iocs\" field", llm.ErrInvalidOutput)
		}
		if list == nil {
			return nil, nil
		}
		entries, ok := list.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: \"iocs\" is %T, want array", llm.ErrInvalidOutput, list)
		}
		return entries, nil
	}
	return nil, fmt.Errorf("%w: response is %T, want object", llm.ErrInvalidOutput, top)
}

// decodeEntry validates one entry against the entry schema and normalizes it.
func decodeEntry(e any) (Record, error) {
	m, ok := e.(map[string]any)
	if !ok {
		return Record{}, fmt.Errorf("%w: entry is %T, want object", ErrMalformedExtraction, e)
	}
	if label, ok := m["type"].(string); ok {
		value, _ := m["value"].(string)
		m["type"] = string(ParseType(label, Defang(value)))
	}
	if err := iocSchemas.entry.Validate(m); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedExtraction, err)
	}

	rec := Record{
		Type:  Type(m["type"].(string)),
		Value: m["value"].(string),
	}
	if c, ok := m["context"].(string); ok {
		rec.Context = c
	}
	return Normalize(rec)
}

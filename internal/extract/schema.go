package extract

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

type iocEntry struct {
	Type    string `json:"type" jsonschema:"kind of indicator"`
	Value   string `json:"value" jsonschema:"the indicator exactly as it appears in the text"`
	Context string `json:"context,omitempty" jsonschema:"one sentence on how the indicator relates to the activity described"`
}

type iocList struct {
	IOCs []iocEntry `json:"iocs"`
}

type schemas struct {
	response *jsonschema.Schema   // sent to the model
	entry    *jsonschema.Resolved // applied to each returned entry
}

var iocSchemas = mustBuildSchemas()

func mustBuildSchemas() schemas {
	s, err := buildSchemas()
	if err != nil {
		panic(err)
	}
	return s
}

func buildSchemas() (schemas, error) {
	resp, err := jsonschema.For[iocList](nil)
	if err != nil {
		return schemas{}, fmt.Errorf("ioc response schema: %w", err)
	}
	entry := resp.Properties["iocs"].Items
	entry.AdditionalProperties = nil
	entry.Properties["type"].Enum = make([]any, 0, len(Types))
	for _, t := range Types {
		entry.Properties["type"].Enum = append(entry.Properties["type"].Enum, string(t))
	}
	entry.Properties["value"].MinLength = jsonschema.Ptr(1)

	resolved, err := entry.Resolve(nil)
	if err != nil {
		return schemas{}, fmt.Errorf("resolve ioc entry schema: %w", err)
	}
	return schemas{response: resp, entry: resolved}, nil
}

// ResponseSchema returns the JSON schema the extraction call is constrained to.
func ResponseSchema() *jsonschema.Schema {
	return iocSchemas.response
}

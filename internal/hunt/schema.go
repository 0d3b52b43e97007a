package hunt

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/dgallion1/huntgest/internal/llm"
)

type scopeResponse struct {
	Name            string   `json:"name" jsonschema:"short name for the hunt"`
	Purpose         string   `json:"purpose" jsonschema:"why the hunt is worth running"`
	SystemsAreas    []string `json:"systems_areas" jsonschema:"systems, networks or business areas to hunt in"`
	Timeframe       string   `json:"timeframe" jsonschema:"time window to search, e.g. last 30 days"`
	DataSources     []string `json:"data_sources" jsonschema:"log and telemetry sources to query"`
	ExpectedOutcome string   `json:"expected_outcome" jsonschema:"what a successful hunt produces"`
}

type hypothesisEntry struct {
	Statement           string   `json:"statement" jsonschema:"the hypothesis, as a testable statement"`
	Rationale           string   `json:"rationale" jsonschema:"why the intelligence supports it"`
	LogSources          []string `json:"log_sources,omitempty" jsonschema:"logs that can confirm or refute it"`
	DetectionTechniques []string `json:"detection_techniques,omitempty" jsonschema:"queries or analytics to run"`
	Priority            string   `json:"priority,omitempty" jsonschema:"high, medium or low"`
	Playbook            string   `json:"playbook,omitempty" jsonschema:"name of the closest playbook from the catalog, or empty"`
}

type hypothesisList struct {
	Hypotheses []hypothesisEntry `json:"hypotheses"`
}

var priorities = []any{"high", "medium", "low"}

type schema struct {
	request  *jsonschema.Schema
	resolved *jsonschema.Resolved
}

type planSchemas struct {
	scope      schema
	hypotheses *jsonschema.Schema
	hypothesis *jsonschema.Resolved
	able       schema
}

var schemas = mustBuildSchemas()

func mustBuildSchemas() planSchemas {
	s, err := buildSchemas()
	if err != nil {
		panic(err)
	}
	return s
}

func buildSchemas() (planSchemas, error) {
	var out planSchemas

	scope, err := jsonschema.For[scopeResponse](nil)
	if err != nil {
		return out, fmt.Errorf("scope schema: %w", err)
	}
	scope.AdditionalProperties = nil
	scope.Properties["systems_areas"].MinItems = jsonschema.Ptr(1)
	scope.Properties["data_sources"].MinItems = jsonschema.Ptr(1)
	scope.Properties["timeframe"].MinLength = jsonschema.Ptr(1)
	if out.scope, err = resolve(scope); err != nil {
		return out, err
	}

	hyps, err := jsonschema.For[hypothesisList](nil)
	if err != nil {
		return out, fmt.Errorf("hypotheses schema: %w", err)
	}
	entry := hyps.Properties["hypotheses"].Items
	entry.AdditionalProperties = nil
	entry.Properties["statement"].MinLength = jsonschema.Ptr(1)
	entry.Properties["priority"].Enum = priorities
	out.hypotheses = hyps
	if out.hypothesis, err = entry.Resolve(nil); err != nil {
		return out, fmt.Errorf("resolve hypothesis schema: %w", err)
	}

	able, err := jsonschema.For[ABLE](nil)
	if err != nil {
		return out, fmt.Errorf("able schema: %w", err)
	}
	able.AdditionalProperties = nil
	for _, p := range able.Properties {
		p.MinLength = jsonschema.Ptr(1)
	}
	if out.able, err = resolve(able); err != nil {
		return out, err
	}
	return out, nil
}

func resolve(s *jsonschema.Schema) (schema, error) {
	r, err := s.Resolve(nil)
	if err != nil {
		return schema{}, fmt.Errorf("resolve schema: %w", err)
	}
	return schema{request: s, resolved: r}, nil
}

// decodeValidated validates raw against rs and decodes it into v. Failures
// wrap llm.ErrInvalidOutput.
func decodeValidated(raw json.RawMessage, rs *jsonschema.Resolved, v any) error {
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("%w: %v", llm.ErrInvalidOutput, err)
	}
	if err := rs.Validate(instance); err != nil {
		return fmt.Errorf("%w: %v", llm.ErrInvalidOutput, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", llm.ErrInvalidOutput, err)
	}
	return nil
}

// decodeEntries returns the raw hypothesis entries of a response. Both
// {"hypotheses": [...]} and a bare array are accepted.
func decodeEntries(raw json.RawMessage) ([]any, error) {
	var top any
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", llm.ErrInvalidOutput, err)
	}
	switch v := top.(type) {
	case []any:
		return v, nil
	case map[string]any:
		list, ok := v["hypotheses"].([]any)
		if !ok {
			return nil, fmt.Errorf("%w: response has no \"hypotheses\" array", llm.ErrInvalidOutput)
		}
		return list, nil
	}
	return nil, fmt.Errorf("%w: response is %T, want object", llm.ErrInvalidOutput, top)
}

// decodeEntry validates one hypothesis entry. Priority is lowercased and
// dropped when it is not one of the known levels.
func decodeEntry(e any, out *hypothesisEntry) error {
	m, ok := e.(map[string]any)
	if !ok {
		return fmt.Errorf("entry is %T, want object", e)
	}
	if p, ok := m["priority"].(string); ok {
		p = strings.ToLower(strings.TrimSpace(p))
		if slices.Contains(priorities, any(p)) {
			m["priority"] = p
		} else {
			delete(m, "priority")
		}
	}
	if err := schemas.hypothesis.Validate(m); err != nil {
		return err
	}
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

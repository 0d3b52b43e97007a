// Package hunt turns aggregated intelligence into a threat-hunting plan:
// a scope for the hunt and a set of testable hypotheses.
package hunt

import (
	"errors"
	"time"
)

var (
	// ErrScopeInferenceFailed is returned when no valid scope could be
	// obtained. The pipeline continues without a scope.
	ErrScopeInferenceFailed = errors.New("scope inference failed")

	// ErrHypothesisEnrichmentFailed marks a hypothesis whose ABLE breakdown
	// could not be produced.
	ErrHypothesisEnrichmentFailed = errors.New("hypothesis enrichment failed")

	// ErrSynthesisFailed is returned when the hypothesis call could not be
	// completed at all.
	ErrSynthesisFailed = errors.New("hypothesis synthesis failed")
)

// Scope bounds where and when to hunt.
type Scope struct {
	SystemsAreas []string `json:"systems_areas"`
	Timeframe    string   `json:"timeframe"`
	DataSources  []string `json:"data_sources"`
}

// IsZero reports whether the scope is empty.
func (s Scope) IsZero() bool {
	return len(s.SystemsAreas) == 0 && s.Timeframe == "" && len(s.DataSources) == 0
}

// Meta names the hunt and states what it should achieve.
type Meta struct {
	Name            string `json:"name"`
	Purpose         string `json:"purpose"`
	ExpectedOutcome string `json:"expected_outcome"`
}

// ABLE breaks a hypothesis into Actor, Behavior, Location and Evidence.
type ABLE struct {
	Actor    string `json:"actor" jsonschema:"who is behind the activity"`
	Behavior string `json:"behavior" jsonschema:"what the actor does, in terms of techniques"`
	Location string `json:"location" jsonschema:"where in the environment the behavior would be seen"`
	Evidence string `json:"evidence" jsonschema:"which data would show the behavior"`
}

// Hypothesis is one testable hunting hypothesis.
type Hypothesis struct {
	ID                  int      `json:"id"`
	Statement           string   `json:"statement"`
	Rationale           string   `json:"rationale"`
	LogSources          []string `json:"log_sources,omitempty"`
	DetectionTechniques []string `json:"detection_techniques,omitempty"`
	Priority            string   `json:"priority,omitempty"`
	MappedPlaybook      *string  `json:"mapped_playbook"`
	ABLE                *ABLE    `json:"able"`
}

// Plan is the final output of the pipeline.
type Plan struct {
	Meta           Meta         `json:"meta"`
	Scope          Scope        `json:"scope"`
	Hypotheses     []Hypothesis `json:"hypotheses"`
	SourceDocument string       `json:"source_document"`
	Model          string       `json:"model"`
	GeneratedAt    time.Time    `json:"generated_at"`
}

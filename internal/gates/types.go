package gates

import (
	"github.com/fulmenhq/contentpack/pkg/policy"
	"github.com/fulmenhq/contentpack/pkg/registry"
	"github.com/fulmenhq/contentpack/pkg/resolve"
)

// State is a validation engine state.
type State string

const (
	StateIdle         State = "idle"
	StateScanning     State = "scanning"
	StatePerUnitCheck State = "per-unit-check"
	StateAggregating  State = "aggregating"
	StatePassed       State = "passed"
	StateFailedSoft   State = "failed-soft"
	StateFailedHard   State = "failed-hard"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StatePassed || s == StateFailedSoft || s == StateFailedHard
}

// Issue is one validation finding, tagged with the gate that raised it.
type Issue struct {
	Gate       string          `json:"gate"`
	Message    string          `json:"message"`
	Severity   policy.Severity `json:"severity"`
	File       string          `json:"file,omitempty"`
	Identifier string          `json:"identifier,omitempty"`
}

// Corpus is the resolved content handed to the engine.
type Corpus struct {
	Registry *registry.Registry
	Entries  []resolve.Entry
}

// Unit is one resolved entry with its content loaded for checking.
type Unit struct {
	Entry resolve.Entry
	Kind  *registry.Kind
	// Content is the unit's own bytes; for borrowed entries, the envelope's content.
	Content []byte
	// Doc is the decoded JSON document, nil for text kinds or unparseable content.
	Doc interface{}
	// ParseErr is set when a JSON kind failed to decode.
	ParseErr error
	// ReadErr is set when the content could not be read.
	ReadErr error
}

// Outcome is the result of one validation run.
type Outcome struct {
	State  State          `json:"state"`
	Issues []Issue        `json:"issues"`
	Trace  []State        `json:"trace"`
	Units  int            `json:"units"`
	Counts map[string]int `json:"counts"`
}

// Blocking returns the issues that stop packaging.
func (o Outcome) Blocking() []Issue { return o.filter(policy.SeverityBlocking) }

// Warnings returns the issues downgraded to warnings.
func (o Outcome) Warnings() []Issue { return o.filter(policy.SeverityWarning) }

func (o Outcome) filter(s policy.Severity) []Issue {
	var out []Issue
	for _, is := range o.Issues {
		if is.Severity == s {
			out = append(out, is)
		}
	}
	return out
}

// Package gates evaluates a resolved corpus against the gate policy. A run
// walks Idle -> Scanning -> PerUnitCheck* -> Aggregating and ends Passed,
// FailedSoft (warnings only) or FailedHard (at least one blocking issue).
package gates

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/fulmenhq/contentpack/pkg/logger"
	"github.com/fulmenhq/contentpack/pkg/policy"
	"github.com/fulmenhq/contentpack/pkg/registry"
	"github.com/fulmenhq/contentpack/pkg/resolve"
	"github.com/fulmenhq/contentpack/pkg/work"
)

// Engine runs the built-in gates and the policy's custom rules.
type Engine struct {
	workers int
}

// NewEngine creates an engine checking up to workers units at once.
func NewEngine(workers int) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{workers: workers}
}

// Validate checks the corpus. The policy is only read. Repeated calls on
// unchanged input return identical outcomes. The error is non-nil only for
// context cancellation or an internal state-machine fault.
func (e *Engine) Validate(ctx context.Context, corpus Corpus, p *policy.GatePolicy) (Outcome, error) {
	m := newMachine()
	if err := m.to(StateScanning); err != nil {
		return Outcome{}, err
	}

	var present []resolve.Entry
	for _, entry := range corpus.Entries {
		if !entry.Missing() {
			present = append(present, entry)
		}
	}
	units, err := work.Map(ctx, present, e.workers, func(_ context.Context, _ int, entry resolve.Entry) (*Unit, error) {
		return loadUnit(corpus.Registry, entry), nil
	})
	if err != nil {
		return Outcome{}, err
	}
	logger.Debug("Scanned corpus", logger.Int("units", len(units)), logger.Int("entries", len(corpus.Entries)))

	schemaGate, issues := newSchemaCheck(corpus.Registry)
	completeness := completenessCheck{}
	checks := []UnitCheck{schemaGate, completeness, rangesCheck{}}
	if p.Names(policy.GateFallback) {
		checks = append(checks, fallbackCheck{policy: p})
	}
	for _, r := range p.Rules() {
		checks = append(checks, regoCheck{rule: r})
	}
	for _, c := range []CorpusCheck{completeness} {
		issues = append(issues, c.CheckCorpus(corpus)...)
	}

	perUnit, err := work.Map(ctx, units, e.workers, func(ctx context.Context, _ int, u *Unit) ([]Issue, error) {
		var out []Issue
		for _, c := range checks {
			out = append(out, c.Check(ctx, u)...)
		}
		return out, nil
	})
	if err != nil {
		return Outcome{}, err
	}
	for _, found := range perUnit {
		if err := m.to(StatePerUnitCheck); err != nil {
			return Outcome{}, err
		}
		issues = append(issues, found...)
	}

	if err := m.to(StateAggregating); err != nil {
		return Outcome{}, err
	}
	out := aggregate(issues, p)
	if err := m.to(out.State); err != nil {
		return Outcome{}, err
	}
	out.Trace = m.trace
	out.Units = len(units)
	logger.Info("Validation finished",
		logger.String("state", string(out.State)),
		logger.Int("issues", len(out.Issues)),
		logger.Int("blocking", len(out.Blocking())))
	return out, nil
}

func aggregate(issues []Issue, p *policy.GatePolicy) Outcome {
	out := Outcome{Counts: map[string]int{}}
	blocking := false
	for i := range issues {
		issues[i].Severity = p.Severity(issues[i].Gate)
		if issues[i].Severity == policy.SeverityBlocking {
			blocking = true
		}
		out.Counts[issues[i].Gate]++
	}
	sort.SliceStable(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]
		if a.Gate != b.Gate {
			return a.Gate < b.Gate
		}
		if a.File != b.File {
			return a.File < b.File
		}
		return a.Message < b.Message
	})
	out.Issues = issues
	switch {
	case blocking:
		out.State = StateFailedHard
	case len(issues) > 0:
		out.State = StateFailedSoft
	default:
		out.State = StatePassed
	}
	return out
}

func loadUnit(reg *registry.Registry, entry resolve.Entry) *Unit {
	u := &Unit{Entry: entry}
	if k, ok := reg.Kind(entry.ID.Domain, entry.Kind); ok {
		u.Kind = k
	} else {
		u.Kind = &registry.Kind{Name: entry.Kind, Format: entry.Format}
	}

	data, err := entry.ReadAll()
	if err != nil {
		u.ReadErr = err
		return u
	}
	u.Content = data
	if entry.Borrowed() {
		env, err := resolve.Unwrap(data)
		if err != nil {
			u.ReadErr = err
			return u
		}
		u.Content = env.Content
		if !u.Kind.JSON() {
			var s string
			if json.Unmarshal(env.Content, &s) == nil {
				u.Content = []byte(s)
			}
		}
	}
	if u.Kind.JSON() && len(u.Content) > 0 {
		var doc interface{}
		if err := json.Unmarshal(u.Content, &doc); err != nil {
			u.ParseErr = err
		} else {
			u.Doc = doc
		}
	}
	return u
}

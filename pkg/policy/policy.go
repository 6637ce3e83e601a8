// Package policy holds the gate policy: per-gate strictness, the gates global
// soft mode may downgrade, accepted fallbacks, and custom Rego rules.
package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/fulmenhq/contentpack/internal/assets"
	"github.com/fulmenhq/contentpack/internal/schema"
)

// Built-in gate names.
const (
	GateSchema       = "schema"
	GateCompleteness = "completeness"
	GateRanges       = "ranges"
	GateFallback     = "fallback"
)

// BuiltinGates lists the built-in gates in evaluation order.
var BuiltinGates = []string{GateSchema, GateCompleteness, GateRanges, GateFallback}

// builtinLevels reads the built-in gate levels of the embedded default policy.
var builtinLevels = sync.OnceValues(func() (map[string]Level, error) {
	var doc Document
	if err := schema.LoadDocument("default-policy.yaml", assets.DefaultPolicy, schema.PolicyV1, &doc); err != nil {
		return nil, fmt.Errorf("embedded default policy: %w", err)
	}
	levels := make(map[string]Level, len(BuiltinGates))
	for _, gate := range BuiltinGates {
		if l, ok := doc.Gates[gate]; ok {
			levels[gate] = l
		}
	}
	return levels, nil
})

// Document is the on-disk shape of a policy.
type Document struct {
	Version           string           `json:"version,omitempty" yaml:"version,omitempty"`
	SoftMode          bool             `json:"soft_mode" yaml:"soft_mode"`
	Gates             map[string]Level `json:"gates" yaml:"gates"`
	Downgradeable     []string         `json:"downgradeable,omitempty" yaml:"downgradeable,omitempty"`
	AcceptedFallbacks []string         `json:"accepted_fallbacks,omitempty" yaml:"accepted_fallbacks,omitempty"`
	Rules             []Rule           `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// GatePolicy is an immutable snapshot of a loaded policy document.
// Accessors return copies; nothing mutates a GatePolicy after Parse.
type GatePolicy struct {
	version           string
	softMode          bool
	gates             map[string]Level
	defaults          map[string]Level // built-in gate levels of the embedded default
	downgradeable     map[string]bool
	acceptedFallbacks map[string]bool
	rules             []*CompiledRule
}

// Parse validates a policy document against the embedded schema and compiles
// its Rego rules. name selects the decoder by extension.
func Parse(ctx context.Context, name string, data []byte) (*GatePolicy, error) {
	var doc Document
	if err := schema.LoadDocument(name, data, schema.PolicyV1, &doc); err != nil {
		return nil, err
	}
	return FromDocument(ctx, doc)
}

// FromDocument builds a GatePolicy from a decoded document.
func FromDocument(ctx context.Context, doc Document) (*GatePolicy, error) {
	p := &GatePolicy{
		version:           doc.Version,
		softMode:          doc.SoftMode,
		gates:             make(map[string]Level, len(doc.Gates)),
		downgradeable:     make(map[string]bool, len(doc.Downgradeable)),
		acceptedFallbacks: make(map[string]bool, len(doc.AcceptedFallbacks)),
	}
	if p.version == "" {
		p.version = "v1"
	}
	for gate, level := range doc.Gates {
		if level != Hard && level != Soft {
			return nil, fmt.Errorf("gate %s: unknown level %q", gate, level)
		}
		p.gates[gate] = level
	}
	defaults, err := builtinLevels()
	if err != nil {
		return nil, err
	}
	p.defaults = defaults
	for _, gate := range doc.Downgradeable {
		p.downgradeable[gate] = true
	}
	for _, id := range doc.AcceptedFallbacks {
		p.acceptedFallbacks[strings.TrimSpace(id)] = true
	}
	for i, r := range doc.Rules {
		compiled, err := compileRule(ctx, i, r)
		if err != nil {
			return nil, err
		}
		p.rules = append(p.rules, compiled)
	}
	return p, nil
}

// Version returns the document version.
func (p *GatePolicy) Version() string { return p.version }

// SoftMode reports whether global soft mode is on.
func (p *GatePolicy) SoftMode() bool { return p.softMode }

// WithSoftMode returns a copy with global soft mode set to on.
func (p *GatePolicy) WithSoftMode(on bool) *GatePolicy {
	cp := *p
	cp.softMode = on
	return &cp
}

// Level returns a gate's configured strictness. Built-in gates the document
// does not name take the embedded default's level; other gates are hard.
func (p *GatePolicy) Level(gate string) Level {
	if l, ok := p.gates[gate]; ok {
		return l
	}
	if l, ok := p.defaults[gate]; ok {
		return l
	}
	return Hard
}

// Names reports whether the document sets a level for gate. The fallback
// gate only runs for policies that name it.
func (p *GatePolicy) Names(gate string) bool {
	_, ok := p.gates[gate]
	return ok
}

// Downgradeable reports whether soft mode may downgrade gate.
func (p *GatePolicy) Downgradeable(gate string) bool { return p.downgradeable[gate] }

// Severity resolves the severity of an issue raised by gate.
func (p *GatePolicy) Severity(gate string) Severity {
	return Resolve(p.Level(gate), p.softMode, p.Downgradeable(gate))
}

// AcceptsFallback reports whether fallback content for domain/key is accepted
// without raising a fallback issue. Entries may name "domain/key" or a bare key.
func (p *GatePolicy) AcceptsFallback(domain, key string) bool {
	return p.acceptedFallbacks[domain+"/"+key] || p.acceptedFallbacks[key]
}

// Gates returns a copy of the configured gate levels.
func (p *GatePolicy) Gates() map[string]Level {
	out := make(map[string]Level, len(p.gates))
	for k, v := range p.gates {
		out[k] = v
	}
	return out
}

// Rules returns the compiled custom rules in declaration order.
func (p *GatePolicy) Rules() []*CompiledRule {
	out := make([]*CompiledRule, len(p.rules))
	copy(out, p.rules)
	return out
}

// Document renders the snapshot back into document form with sorted lists.
func (p *GatePolicy) Document() Document {
	doc := Document{
		Version:           p.version,
		SoftMode:          p.softMode,
		Gates:             p.Gates(),
		Downgradeable:     sortedKeys(p.downgradeable),
		AcceptedFallbacks: sortedKeys(p.acceptedFallbacks),
	}
	for _, r := range p.rules {
		doc.Rules = append(doc.Rules, r.Rule)
	}
	return doc
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

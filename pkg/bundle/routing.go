package bundle

import (
	"encoding/json"
	"path"

	"github.com/fulmenhq/contentpack/pkg/registry"
	"github.com/fulmenhq/contentpack/pkg/resolve"
)

// RoutingVersion of the routing document format.
const RoutingVersion = "1.0.0"

// Routing is the lookup table a runtime consumer reads from routing.json.
type Routing struct {
	RoutingVersion string          `json:"routing_version"`
	Domains        []RoutingDomain `json:"domains"`
}

// RoutingDomain describes one domain of the bundle.
type RoutingDomain struct {
	Name        string              `json:"name"`
	Kinds       []RoutingKind       `json:"kinds"`
	Identifiers []RoutingIdentifier `json:"identifiers"`
}

// RoutingKind maps a kind to its bundle path template.
type RoutingKind struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Format   string `json:"format"`
	Optional bool   `json:"optional,omitempty"`
	// Fallback names the fallback strategy, "none" when only one tier exists.
	Fallback string `json:"fallback"`
}

// RoutingIdentifier is one canonical identifier with its resolution state.
type RoutingIdentifier struct {
	ID            string   `json:"id"`
	Missing       bool     `json:"missing"`
	MissingKinds  []string `json:"missing_kinds,omitempty"`
	FallbackKinds []string `json:"fallback_kinds,omitempty"`
}

// BuildRouting describes the registry and the resolution outcome.
func BuildRouting(reg *registry.Registry, entries []resolve.Entry) *Routing {
	type state struct{ missing, fallback []string }
	states := map[registry.Identifier]*state{}
	for _, e := range entries {
		st, ok := states[e.ID]
		if !ok {
			st = &state{}
			states[e.ID] = st
		}
		switch {
		case e.Missing() && !e.Optional:
			st.missing = append(st.missing, e.Kind)
		case e.Provenance == registry.Fallback:
			st.fallback = append(st.fallback, e.Kind)
		}
	}

	r := &Routing{RoutingVersion: RoutingVersion, Domains: []RoutingDomain{}}
	for _, d := range reg.Domains {
		rd := RoutingDomain{Name: d.Name, Kinds: []RoutingKind{}, Identifiers: []RoutingIdentifier{}}
		for _, k := range d.Kinds {
			rd.Kinds = append(rd.Kinds, RoutingKind{
				Name:     k.Name,
				Path:     path.Join(d.Name, k.Name, "{id}"+k.Extension),
				Format:   k.Format,
				Optional: k.Optional,
				Fallback: fallbackStrategy(k),
			})
		}
		for _, key := range d.Identifiers {
			ri := RoutingIdentifier{ID: key}
			if st, ok := states[registry.Identifier{Domain: d.Name, Key: key}]; ok {
				ri.MissingKinds = st.missing
				ri.FallbackKinds = st.fallback
				ri.Missing = len(st.missing) > 0
			}
			rd.Identifiers = append(rd.Identifiers, ri)
		}
		r.Domains = append(r.Domains, rd)
	}
	return r
}

// Marshal renders the routing document as indented JSON with a trailing newline.
func (r *Routing) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func fallbackStrategy(k registry.Kind) string {
	for _, t := range k.Tiers[1:] {
		if t.Borrowed() && t.Strategy.Transform != nil && t.Strategy.Transform.Name != "" {
			return t.Strategy.Transform.Name
		}
		if t.Borrowed() {
			return string(registry.StrategyBorrowed)
		}
	}
	if len(k.Tiers) > 1 {
		return "tiered"
	}
	return "none"
}

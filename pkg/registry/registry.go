// Package registry describes where content lives: the canonical identifiers of
// each domain, the content kinds they require, and the priority-ordered source
// tiers consulted when resolving one identifier/kind pair.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fulmenhq/contentpack/internal/schema"
	"github.com/fulmenhq/contentpack/pkg/ignore"
)

// Provenance records where resolved content came from.
type Provenance string

const (
	Authentic Provenance = "authentic"
	Fallback  Provenance = "fallback"
	Missing   Provenance = "missing"
)

// StrategyKind names how a tier finds its content.
type StrategyKind string

const (
	// StrategyExact reads the file located for the identifier itself.
	StrategyExact StrategyKind = "exact"
	// StrategyBorrowed reads a base identifier's file and relabels it.
	StrategyBorrowed StrategyKind = "borrowed-transform"
)

// Content formats.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Identifier names one unit of content within a domain.
type Identifier struct {
	Domain string `json:"domain"`
	Key    string `json:"key"`
}

func (id Identifier) String() string {
	return id.Domain + "/" + id.Key
}

// Transform derives the base identifier a borrowed tier reads from.
type Transform struct {
	Name    string            `json:"name,omitempty"`
	Reducer string            `json:"reducer,omitempty"`
	Base    map[string]string `json:"base,omitempty"`
	Reason  string            `json:"reason,omitempty"`
}

// Strategy is the data description of a tier's resolution step.
type Strategy struct {
	Kind      StrategyKind `json:"kind"`
	Locate    string       `json:"locate"`
	Transform *Transform   `json:"transform,omitempty"`
}

// Tier is a ranked candidate source. Rank 0 is tried first.
type Tier struct {
	Name       string     `json:"name"`
	Rank       int        `json:"-"`
	Provenance Provenance `json:"provenance,omitempty"`
	Strategy   Strategy   `json:"strategy"`
}

// Borrowed reports whether the tier reads another identifier's content.
func (t Tier) Borrowed() bool { return t.Strategy.Kind == StrategyBorrowed }

// CategoryCount expects the object or array at Path to hold Count members.
type CategoryCount struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// Range bounds a numeric field found at any depth of a document.
type Range struct {
	Field string   `json:"field"`
	Min   *float64 `json:"min,omitempty"`
	Max   *float64 `json:"max,omitempty"`
}

// Kind is one content kind required (or optional) for every identifier of a domain.
type Kind struct {
	Name           string          `json:"name"`
	Extension      string          `json:"extension,omitempty"`
	Format         string          `json:"format,omitempty"`
	Optional       bool            `json:"optional,omitempty"`
	RequiredFields []string        `json:"required_fields,omitempty"`
	Schema         string          `json:"schema,omitempty"`
	CategoryCounts []CategoryCount `json:"category_counts,omitempty"`
	Ranges         []Range         `json:"ranges,omitempty"`
	Tiers          []Tier          `json:"tiers"`
}

// JSON reports whether the kind's content is parsed as JSON.
func (k Kind) JSON() bool { return k.Format == FormatJSON }

// Domain groups identifiers sharing the same kinds and tiers.
type Domain struct {
	Name        string   `json:"name"`
	Identifiers []string `json:"identifiers"`
	Kinds       []Kind   `json:"kinds"`
}

// Kind looks up a kind by name.
func (d *Domain) Kind(name string) (*Kind, bool) {
	for i := range d.Kinds {
		if d.Kinds[i].Name == name {
			return &d.Kinds[i], true
		}
	}
	return nil, false
}

// Registry is a loaded content source registry.
type Registry struct {
	Version string   `json:"version,omitempty"`
	Root    string   `json:"root,omitempty"`
	Domains []Domain `json:"domains"`

	path   string
	ignore *ignore.Matcher
}

// Path returns the document the registry was loaded from, if any.
func (r *Registry) Path() string { return r.path }

// Load reads, validates and normalizes a registry document. The content root
// defaults to the directory holding the document; relative roots resolve
// against that directory as well.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- user-selected registry document
	if err != nil {
		return nil, fmt.Errorf("read registry %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve registry path: %w", err)
	}
	r, err := Parse(path, data, filepath.Dir(abs))
	if err != nil {
		return nil, err
	}
	r.path = abs
	return r, nil
}

// Parse decodes a registry document. name selects the decoder by extension.
func Parse(name string, data []byte, baseDir string) (*Registry, error) {
	var r Registry
	if err := schema.LoadDocument(name, data, schema.RegistryV1, &r); err != nil {
		return nil, fmt.Errorf("registry %s: %w", name, err)
	}
	if err := r.normalize(baseDir); err != nil {
		return nil, fmt.Errorf("registry %s: %w", name, err)
	}
	return &r, nil
}

// WithRoot returns a copy of the registry reading content from root.
func (r *Registry) WithRoot(root string) (*Registry, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve content root: %w", err)
	}
	cp := *r
	cp.Root = abs
	cp.ignore = ignore.NewMatcher(abs)
	return &cp, nil
}

func (r *Registry) normalize(baseDir string) error {
	switch {
	case r.Root == "":
		r.Root = baseDir
	case !filepath.IsAbs(r.Root):
		r.Root = filepath.Join(baseDir, filepath.FromSlash(r.Root))
	}
	r.Root = filepath.Clean(r.Root)
	r.ignore = ignore.NewMatcher(r.Root)

	seenDomains := map[string]bool{}
	for di := range r.Domains {
		d := &r.Domains[di]
		if err := checkName("domain", d.Name); err != nil {
			return err
		}
		if seenDomains[d.Name] {
			return fmt.Errorf("duplicate domain %q", d.Name)
		}
		seenDomains[d.Name] = true

		seenIDs := map[string]bool{}
		for _, key := range d.Identifiers {
			if err := checkName("identifier", key); err != nil {
				return fmt.Errorf("domain %s: %w", d.Name, err)
			}
			if seenIDs[key] {
				return fmt.Errorf("domain %s: duplicate identifier %q", d.Name, key)
			}
			seenIDs[key] = true
		}

		seenKinds := map[string]bool{}
		for ki := range d.Kinds {
			k := &d.Kinds[ki]
			if err := checkName("kind", k.Name); err != nil {
				return fmt.Errorf("domain %s: %w", d.Name, err)
			}
			if seenKinds[k.Name] {
				return fmt.Errorf("domain %s: duplicate kind %q", d.Name, k.Name)
			}
			seenKinds[k.Name] = true
			if err := normalizeKind(k); err != nil {
				return fmt.Errorf("domain %s kind %s: %w", d.Name, k.Name, err)
			}
		}
	}
	return nil
}

func normalizeKind(k *Kind) error {
	if k.Format == "" {
		k.Format = FormatJSON
	}
	if k.Extension == "" {
		if k.JSON() {
			k.Extension = ".json"
		} else {
			k.Extension = ".txt"
		}
	}
	if !strings.HasPrefix(k.Extension, ".") {
		k.Extension = "." + k.Extension
	}

	seen := map[string]bool{}
	for i := range k.Tiers {
		t := &k.Tiers[i]
		if seen[t.Name] {
			return fmt.Errorf("duplicate tier %q", t.Name)
		}
		seen[t.Name] = true
		t.Rank = i
		if !strings.Contains(t.Strategy.Locate, "{id}") {
			return fmt.Errorf("tier %s: locate template must contain {id}", t.Name)
		}
		switch t.Strategy.Kind {
		case StrategyExact:
			if t.Provenance == "" {
				if i == 0 {
					t.Provenance = Authentic
				} else {
					t.Provenance = Fallback
				}
			}
		case StrategyBorrowed:
			tr := t.Strategy.Transform
			if tr == nil || (tr.Reducer == "" && len(tr.Base) == 0) {
				return fmt.Errorf("tier %s: borrowed-transform needs a reducer or base map", t.Name)
			}
			// Borrowed content is never authentic.
			t.Provenance = Fallback
		default:
			return fmt.Errorf("tier %s: unknown strategy %q", t.Name, t.Strategy.Kind)
		}
	}
	return nil
}

func checkName(what, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%s name is empty", what)
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\*?[]{}`) {
		return fmt.Errorf("%s %q contains path or glob characters", what, name)
	}
	return nil
}

// Identifiers returns the canonical identifier list: domains in declaration
// order, identifiers in declaration order within each domain.
func (r *Registry) Identifiers() []Identifier {
	var out []Identifier
	for _, d := range r.Domains {
		for _, key := range d.Identifiers {
			out = append(out, Identifier{Domain: d.Name, Key: key})
		}
	}
	return out
}

// Domain looks up a domain by name.
func (r *Registry) Domain(name string) (*Domain, bool) {
	for i := range r.Domains {
		if r.Domains[i].Name == name {
			return &r.Domains[i], true
		}
	}
	return nil, false
}

// Kind looks up a kind of a domain.
func (r *Registry) Kind(domain, kind string) (*Kind, bool) {
	d, ok := r.Domain(domain)
	if !ok {
		return nil, false
	}
	return d.Kind(kind)
}

// Request is one identifier/kind pair the pipeline must resolve.
type Request struct {
	ID   Identifier
	Kind string
}

// Requests expands the canonical identifiers into every identifier/kind pair,
// in canonical order: identifier first, then the domain's kind order.
func (r *Registry) Requests() []Request {
	var out []Request
	for _, d := range r.Domains {
		for _, key := range d.Identifiers {
			for _, k := range d.Kinds {
				out = append(out, Request{ID: Identifier{Domain: d.Name, Key: key}, Kind: k.Name})
			}
		}
	}
	return out
}

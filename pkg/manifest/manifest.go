// Package manifest builds and verifies the integrity manifest of a bundle:
// per-file fingerprints in canonical path order plus one aggregate
// fingerprint over the sorted (path, fingerprint) pairs.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/fulmenhq/contentpack/internal/schema"
	"github.com/fulmenhq/contentpack/pkg/logger"
	"github.com/fulmenhq/contentpack/pkg/versioning"
)

// Version of the manifest document format.
const Version = "1.0.0"

// File names reserved at the bundle root. They are never listed as entries.
const (
	FileName        = "manifest.json"
	RoutingFileName = "routing.json"
)

// Dataset identifies the release.
type Dataset struct {
	Name           string `json:"name"`
	Version        string `json:"version"`
	SourceRevision string `json:"source_revision,omitempty"`
}

// Entry is one file of the bundle.
type Entry struct {
	Path        string    `json:"path"`
	Source      string    `json:"source"`
	Provenance  string    `json:"provenance"`
	Fingerprint string    `json:"fingerprint"`
	Size        int64     `json:"size"`
	Modified    time.Time `json:"modified"`
}

// MissingUnit lists the required kinds an identifier lacks.
type MissingUnit struct {
	Domain     string   `json:"domain"`
	Identifier string   `json:"identifier"`
	Kinds      []string `json:"kinds"`
}

// Summary aggregates resolution results.
type Summary struct {
	Tiers      map[string]int `json:"tiers"`
	Provenance map[string]int `json:"provenance"`
	Missing    []MissingUnit  `json:"missing"`
}

// Manifest is the declarative integrity document written as manifest.json.
type Manifest struct {
	ManifestVersion      string    `json:"manifest_version"`
	GeneratedAt          time.Time `json:"generated_at"`
	Generator            string    `json:"generator,omitempty"`
	Dataset              Dataset   `json:"dataset"`
	TotalFiles           int       `json:"total_files"`
	TotalBytes           int64     `json:"total_bytes"`
	HashAlgorithm        Algorithm `json:"hash_algorithm"`
	AggregateFingerprint string    `json:"aggregate_fingerprint"`
	RoutingFingerprint   string    `json:"routing_fingerprint,omitempty"`
	Files                []Entry   `json:"files"`
	Summary              Summary   `json:"summary"`
}

// MissingKeys returns the identifiers listed as missing, in manifest order.
func (m *Manifest) MissingKeys() []string {
	out := []string{}
	for _, mu := range m.Summary.Missing {
		out = append(out, mu.Identifier)
	}
	return out
}

// Lookup finds an entry by normalized path.
func (m *Manifest) Lookup(p string) (Entry, bool) {
	p = NormalizePath(p)
	i := sort.Search(len(m.Files), func(i int) bool { return m.Files[i].Path >= p })
	if i < len(m.Files) && m.Files[i].Path == p {
		return m.Files[i], true
	}
	return Entry{}, false
}

// Marshal renders the manifest as indented JSON with a trailing newline.
func (m *Manifest) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Read loads a manifest.json and validates it against the embedded schema.
func Read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- user-selected manifest
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := schema.LoadDocument(path, data, schema.ManifestV1, &m); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	if err := checkVersion(m.ManifestVersion); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return &m, nil
}

// checkVersion accepts any manifest_version with this build's major version.
func checkVersion(v string) error {
	got, err := versioning.Parse(v)
	if err != nil {
		return fmt.Errorf("manifest_version: %w", err)
	}
	want, _ := versioning.Parse(Version)
	if got.Major() != want.Major() {
		return fmt.Errorf("unsupported manifest_version %s (reads %d.x)", v, want.Major())
	}
	if c, _ := versioning.Compare(v, Version); c == versioning.ComparisonGreater {
		logger.Debug("Manifest written by a newer minor format", logger.String("manifest_version", v))
	}
	return nil
}

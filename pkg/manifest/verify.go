package manifest

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/fulmenhq/contentpack/pkg/safeio"
)

// VerifyReport compares a materialized bundle against its manifest.
type VerifyReport struct {
	OK                bool     `json:"ok"`
	Expected          int      `json:"expected"`
	Present           int      `json:"present"`
	Missing           []string `json:"missing,omitempty"`
	Changed           []string `json:"changed,omitempty"`
	Extra             []string `json:"extra,omitempty"`
	AggregateMismatch bool     `json:"aggregate_mismatch,omitempty"`
	RoutingMismatch   bool     `json:"routing_mismatch,omitempty"`
}

// Verify re-hashes every file the manifest lists under dir and reports
// missing, changed and unlisted files. It also recomputes the aggregate
// fingerprint so an edited manifest is caught.
func Verify(dir string, m *Manifest) (*VerifyReport, error) {
	r := &VerifyReport{Expected: len(m.Files)}
	want := make(map[string]bool, len(m.Files))
	for _, f := range m.Files {
		want[f.Path] = true
		full, err := safeio.JoinContained(dir, f.Path)
		if err != nil {
			return nil, &IntegrityError{Path: f.Path, Err: err}
		}
		fh, err := os.Open(full) // #nosec G304 -- contained within dir
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				r.Missing = append(r.Missing, f.Path)
				continue
			}
			return nil, &IntegrityError{Path: f.Path, Err: err}
		}
		fp, _, err := HashReader(m.HashAlgorithm, fh)
		_ = fh.Close()
		if err != nil {
			return nil, &IntegrityError{Path: f.Path, Err: err}
		}
		r.Present++
		if fp != f.Fingerprint {
			r.Changed = append(r.Changed, f.Path)
		}
	}

	if m.RoutingFingerprint != "" {
		data, err := os.ReadFile(filepath.Join(dir, RoutingFileName)) // #nosec G304 -- fixed name inside dir
		if err != nil || HashBytes(m.HashAlgorithm, data) != m.RoutingFingerprint {
			r.RoutingMismatch = true
		}
	}

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = NormalizePath(rel)
		if rel == FileName || rel == RoutingFileName {
			return nil
		}
		if !want[rel] {
			r.Extra = append(r.Extra, rel)
		}
		return nil
	})
	if err != nil {
		return nil, &IntegrityError{Path: dir, Err: err}
	}
	sort.Strings(r.Extra)

	r.AggregateMismatch = Aggregate(m.HashAlgorithm, m.Files) != m.AggregateFingerprint
	r.OK = len(r.Missing) == 0 && len(r.Changed) == 0 && len(r.Extra) == 0 && !r.AggregateMismatch && !r.RoutingMismatch
	return r, nil
}

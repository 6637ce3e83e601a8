package resolve

import (
	"bytes"
	"io"
	"os"
	"path"
	"time"

	"github.com/fulmenhq/contentpack/pkg/registry"
)

// Entry is the outcome of resolving one identifier/kind pair.
type Entry struct {
	ID         registry.Identifier
	Kind       string
	Format     string
	Optional   bool
	Tier       string
	Rank       int
	Provenance registry.Provenance
	// BaseKey is the identifier whose content a borrowed tier supplied.
	BaseKey string
	Reason  string
	// SourcePath is the file read from the content root.
	SourcePath string
	// Path is the bundle-relative location, <domain>/<kind>/<key><ext>.
	Path    string
	Size    int64
	ModTime time.Time

	body []byte // fallback envelope for borrowed tiers
}

// Missing reports whether no tier produced content.
func (e Entry) Missing() bool { return e.Provenance == registry.Missing }

// Borrowed reports whether the bytes are a fallback envelope.
func (e Entry) Borrowed() bool { return e.body != nil }

// Open streams the entry's bytes: the envelope for borrowed tiers, otherwise
// the source file.
func (e Entry) Open() (io.ReadCloser, error) {
	if e.Missing() {
		return nil, os.ErrNotExist
	}
	if e.body != nil {
		return io.NopCloser(bytes.NewReader(e.body)), nil
	}
	return os.Open(e.SourcePath) // #nosec G304 -- located inside the content root
}

// ReadAll returns the entry's full contents.
func (e Entry) ReadAll() ([]byte, error) {
	rc, err := e.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

// BundlePath builds the bundle-relative path for id/kind.
func BundlePath(id registry.Identifier, kind, ext string) string {
	return path.Join(id.Domain, kind, id.Key+ext)
}

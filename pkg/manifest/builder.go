package manifest

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fulmenhq/contentpack/pkg/buildinfo"
	"github.com/fulmenhq/contentpack/pkg/logger"
	"github.com/fulmenhq/contentpack/pkg/registry"
	"github.com/fulmenhq/contentpack/pkg/resolve"
	"github.com/fulmenhq/contentpack/pkg/work"
)

// IntegrityError reports a file that could not be read or hashed.
type IntegrityError struct {
	Path string
	Err  error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity: %s: %v", e.Path, e.Err)
}

func (e *IntegrityError) Unwrap() error { return e.Err }

// Options configures a Builder.
type Options struct {
	Algorithm Algorithm
	Dataset   Dataset
	// GeneratedAt pins the generation timestamp and clamps entry modification
	// times to it, as SOURCE_DATE_EPOCH does. When nil the newest entry
	// modification time is used, or the Unix epoch for an empty bundle.
	GeneratedAt *time.Time
	// Routing is the routing document whose fingerprint the manifest records.
	Routing []byte
	Workers int
}

// Builder produces manifests from resolved entries.
type Builder struct {
	opts Options
}

// NewBuilder validates options and returns a Builder.
func NewBuilder(opts Options) (*Builder, error) {
	if _, err := ParseAlgorithm(string(opts.Algorithm)); err != nil {
		return nil, err
	}
	if opts.Algorithm == "" {
		opts.Algorithm = SHA256
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Builder{opts: opts}, nil
}

// Build hashes every present entry and assembles the manifest. Missing
// entries appear only in the summary. Any read failure aborts the build with
// an *IntegrityError.
func (b *Builder) Build(ctx context.Context, entries []resolve.Entry) (*Manifest, error) {
	var present, missing []resolve.Entry
	seen := map[string]bool{}
	for _, e := range entries {
		if e.Missing() {
			missing = append(missing, e)
			continue
		}
		p := NormalizePath(e.Path)
		if p == FileName || p == RoutingFileName {
			continue
		}
		if seen[p] {
			return nil, fmt.Errorf("duplicate manifest path %q", p)
		}
		seen[p] = true
		present = append(present, e)
	}

	files, err := work.Map(ctx, present, b.opts.Workers, func(_ context.Context, _ int, e resolve.Entry) (Entry, error) {
		return b.hashEntry(e)
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	m := &Manifest{
		ManifestVersion: Version,
		Generator:       buildinfo.Generator(),
		Dataset:         b.opts.Dataset,
		HashAlgorithm:   b.opts.Algorithm,
		Files:           files,
		Summary:         summarize(present, missing),
	}
	m.TotalFiles = len(files)
	for _, f := range files {
		m.TotalBytes += f.Size
	}
	m.AggregateFingerprint = Aggregate(b.opts.Algorithm, files)
	if b.opts.Routing != nil {
		m.RoutingFingerprint = HashBytes(b.opts.Algorithm, b.opts.Routing)
	}
	m.GeneratedAt = b.generatedAt(files)

	logger.Debug("Built manifest",
		logger.Int("files", m.TotalFiles),
		logger.Int64("bytes", m.TotalBytes),
		logger.String("aggregate", m.AggregateFingerprint))
	return m, nil
}

func (b *Builder) hashEntry(e resolve.Entry) (Entry, error) {
	p := NormalizePath(e.Path)
	rc, err := e.Open()
	if err != nil {
		return Entry{}, &IntegrityError{Path: p, Err: err}
	}
	defer func() { _ = rc.Close() }()

	fp, n, err := HashReader(b.opts.Algorithm, rc)
	if err != nil {
		return Entry{}, &IntegrityError{Path: p, Err: err}
	}
	return Entry{
		Path:        p,
		Source:      e.Tier,
		Provenance:  string(e.Provenance),
		Fingerprint: fp,
		Size:        n,
		Modified:    b.modified(e.ModTime),
	}, nil
}

// modified truncates t to seconds and clamps it to a pinned GeneratedAt.
func (b *Builder) modified(t time.Time) time.Time {
	t = t.UTC().Truncate(time.Second)
	if b.opts.GeneratedAt != nil {
		if limit := b.opts.GeneratedAt.UTC().Truncate(time.Second); t.After(limit) {
			return limit
		}
	}
	return t
}

func (b *Builder) generatedAt(files []Entry) time.Time {
	if b.opts.GeneratedAt != nil {
		return b.opts.GeneratedAt.UTC().Truncate(time.Second)
	}
	newest := time.Unix(0, 0).UTC()
	for _, f := range files {
		if f.Modified.After(newest) {
			newest = f.Modified
		}
	}
	return newest
}

// summarize counts the entries listed in files plus the missing ones, so
// tier counts always agree with the file list.
func summarize(present, missing []resolve.Entry) Summary {
	s := Summary{Tiers: map[string]int{}, Provenance: map[string]int{}}
	for _, e := range present {
		s.Provenance[string(e.Provenance)]++
		s.Tiers[e.Tier]++
	}
	var required []resolve.MissingItem
	for _, e := range missing {
		s.Provenance[string(e.Provenance)]++
		if !e.Optional {
			required = append(required, resolve.MissingItem{ID: e.ID, Kind: e.Kind})
		}
	}
	s.Missing = groupMissing(required)
	return s
}

// groupMissing groups missing kinds by identifier in first-seen order.
func groupMissing(items []resolve.MissingItem) []MissingUnit {
	out := []MissingUnit{}
	index := map[registry.Identifier]int{}
	for _, it := range items {
		if i, ok := index[it.ID]; ok {
			out[i].Kinds = append(out[i].Kinds, it.Kind)
			continue
		}
		index[it.ID] = len(out)
		out = append(out, MissingUnit{Domain: it.ID.Domain, Identifier: it.ID.Key, Kinds: []string{it.Kind}})
	}
	return out
}

// SourceDateEpoch reads SOURCE_DATE_EPOCH. It returns nil when unset.
func SourceDateEpoch() (*time.Time, error) {
	raw := strings.TrimSpace(os.Getenv("SOURCE_DATE_EPOCH"))
	if raw == "" {
		return nil, nil
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid SOURCE_DATE_EPOCH %q: %w", raw, err)
	}
	t := time.Unix(secs, 0).UTC()
	return &t, nil
}

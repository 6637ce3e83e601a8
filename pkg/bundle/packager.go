// Package bundle materializes a release: resolved content laid out as
// <domain>/<kind>/<key><ext>, routing.json and manifest.json at the root,
// swapped into place atomically, optionally archived as zip or tar.zst.
package bundle

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fulmenhq/contentpack/pkg/logger"
	"github.com/fulmenhq/contentpack/pkg/manifest"
	"github.com/fulmenhq/contentpack/pkg/resolve"
	"github.com/fulmenhq/contentpack/pkg/safeio"
	"github.com/fulmenhq/contentpack/pkg/work"
)

// PackagingError reports a bundle that could not be produced. No partial
// output is left behind when it is returned.
type PackagingError struct {
	Op   string
	Path string
	Err  error
}

func (e *PackagingError) Error() string {
	return fmt.Sprintf("packaging: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PackagingError) Unwrap() error { return e.Err }

var (
	// ErrOverlap rejects an output location that would replace protected
	// directories or resolved source files. Replacing the output removes
	// everything below it.
	ErrOverlap = errors.New("output overlaps protected content")
	// ErrNotBundle rejects replacing a non-empty directory that holds no
	// manifest.
	ErrNotBundle = errors.New("output directory exists and is not a bundle")
)

// Options configures a Packager.
type Options struct {
	OutputDir   string
	Archive     ArchiveFormat
	ArchivePath string // defaults to OutputDir plus the format extension
	Workers     int
	// Protected lists directories the output may not equal or contain,
	// typically the content root and the registry's directory.
	Protected []string
}

// Artifact describes what Package produced.
type Artifact struct {
	Dir     string `json:"dir"`
	Archive string `json:"archive,omitempty"`
	Files   int    `json:"files"`
	Bytes   int64  `json:"bytes"`
}

// Packager writes bundles.
type Packager struct {
	opts Options
}

// NewPackager validates options.
func NewPackager(opts Options) (*Packager, error) {
	if strings.TrimSpace(opts.OutputDir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if _, err := ParseArchiveFormat(string(opts.Archive)); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(opts.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output directory: %w", err)
	}
	opts.OutputDir = abs
	if opts.Archive != ArchiveNone && opts.ArchivePath == "" {
		opts.ArchivePath = abs + "." + string(opts.Archive)
	}
	if err := checkProtected(opts); err != nil {
		return nil, err
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Packager{opts: opts}, nil
}

// checkProtected rejects an output directory that equals or contains a
// protected directory.
func checkProtected(opts Options) error {
	for _, dir := range opts.Protected {
		if dir == "" {
			continue
		}
		inside, err := safeio.Contains(opts.OutputDir, dir)
		if err != nil {
			return &PackagingError{Op: "check", Path: opts.OutputDir, Err: err}
		}
		if inside {
			return &PackagingError{Op: "check", Path: opts.OutputDir, Err: fmt.Errorf("%w: %s", ErrOverlap, dir)}
		}
	}
	return nil
}

// checkTargets runs before staging. The output may not hold a resolved source
// and the archive may not overwrite one; an existing output must be a bundle.
func (p *Packager) checkTargets(entries []resolve.Entry) error {
	out := p.opts.OutputDir
	for _, e := range entries {
		if e.Missing() || e.SourcePath == "" {
			continue
		}
		inside, err := safeio.Contains(out, e.SourcePath)
		if err != nil {
			return &PackagingError{Op: "check", Path: out, Err: err}
		}
		if inside {
			return &PackagingError{Op: "check", Path: out, Err: fmt.Errorf("%w: %s", ErrOverlap, e.SourcePath)}
		}
		if p.opts.ArchivePath != "" {
			same, err := safeio.Contains(e.SourcePath, p.opts.ArchivePath)
			if err != nil {
				return &PackagingError{Op: "check", Path: p.opts.ArchivePath, Err: err}
			}
			if same {
				return &PackagingError{Op: "check", Path: p.opts.ArchivePath, Err: fmt.Errorf("%w: %s", ErrOverlap, e.SourcePath)}
			}
		}
	}

	items, err := os.ReadDir(out)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return &PackagingError{Op: "check", Path: out, Err: err}
	}
	if len(items) == 0 {
		return nil
	}
	if _, err := os.Stat(filepath.Join(out, manifest.FileName)); err != nil {
		return &PackagingError{Op: "check", Path: out, Err: ErrNotBundle}
	}
	return nil
}

// Package stages the bundle next to the output directory, verifies every
// copied byte against the manifest, then replaces the previous output.
// Re-running with unchanged input yields an identical tree and archive.
func (p *Packager) Package(ctx context.Context, entries []resolve.Entry, m *manifest.Manifest, routing []byte) (*Artifact, error) {
	if err := p.checkTargets(entries); err != nil {
		return nil, err
	}
	out := p.opts.OutputDir
	parent := filepath.Dir(out)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, &PackagingError{Op: "create", Path: parent, Err: err}
	}
	removeStale(parent, filepath.Base(out))
	staging, err := os.MkdirTemp(parent, "."+filepath.Base(out)+".staging-")
	if err != nil {
		return nil, &PackagingError{Op: "stage", Path: parent, Err: err}
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(staging)
		}
	}()
	if err := os.Chmod(staging, dirMode); err != nil {
		return nil, &PackagingError{Op: "stage", Path: staging, Err: err}
	}

	copied, err := p.stage(ctx, staging, entries, m)
	if err != nil {
		return nil, err
	}

	manifestBytes, err := m.Marshal()
	if err != nil {
		return nil, &PackagingError{Op: "encode", Path: manifest.FileName, Err: err}
	}
	if routing != nil {
		if err := safeio.WriteFileAtomic(filepath.Join(staging, manifest.RoutingFileName), routing, fileMode); err != nil {
			return nil, &PackagingError{Op: "write", Path: manifest.RoutingFileName, Err: err}
		}
	}
	// manifest.json goes last: its presence marks a complete staging tree.
	if err := safeio.WriteFileAtomic(filepath.Join(staging, manifest.FileName), manifestBytes, fileMode); err != nil {
		return nil, &PackagingError{Op: "write", Path: manifest.FileName, Err: err}
	}

	art := &Artifact{Dir: out, Files: len(m.Files), Bytes: copied}
	var archiveTmp string
	if p.opts.Archive != ArchiveNone {
		names := make([]string, 0, len(m.Files)+2)
		for _, f := range m.Files {
			names = append(names, f.Path)
		}
		if routing != nil {
			names = append(names, manifest.RoutingFileName)
		}
		names = append(names, manifest.FileName)
		if archiveTmp, err = p.buildArchive(staging, names); err != nil {
			return nil, err
		}
		defer func() { _ = os.Remove(archiveTmp) }()
	}

	// Directory and archive are both complete; only renames remain.
	previous, err := swap(staging, out)
	if err != nil {
		return nil, err
	}
	committed = true
	if archiveTmp != "" {
		if err := os.Rename(archiveTmp, p.opts.ArchivePath); err != nil {
			rollback(out, previous)
			return nil, &PackagingError{Op: "archive", Path: p.opts.ArchivePath, Err: err}
		}
		art.Archive = p.opts.ArchivePath
	}
	discard(previous)

	logger.Info("Bundle written",
		logger.String("dir", art.Dir),
		logger.String("archive", art.Archive),
		logger.Int("files", art.Files))
	return art, nil
}

func (p *Packager) stage(ctx context.Context, staging string, entries []resolve.Entry, m *manifest.Manifest) (int64, error) {
	var present []resolve.Entry
	for _, e := range entries {
		if !e.Missing() {
			present = append(present, e)
		}
	}
	if len(present) != len(m.Files) {
		return 0, &PackagingError{Op: "stage", Path: staging,
			Err: fmt.Errorf("manifest lists %d files, %d entries resolved", len(m.Files), len(present))}
	}

	var total atomic.Int64
	err := work.Each(ctx, present, p.opts.Workers, func(_ context.Context, _ int, e resolve.Entry) error {
		rel := manifest.NormalizePath(e.Path)
		want, ok := m.Lookup(rel)
		if !ok {
			return &PackagingError{Op: "stage", Path: rel, Err: fmt.Errorf("entry not in manifest")}
		}
		n, err := copyEntry(staging, rel, e, want, m.HashAlgorithm)
		if err != nil {
			return err
		}
		total.Add(n)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total.Load(), nil
}

// copyEntry streams one entry into the staging tree, hashing as it copies.
func copyEntry(staging, rel string, e resolve.Entry, want manifest.Entry, alg manifest.Algorithm) (int64, error) {
	dst, err := safeio.JoinContained(staging, rel)
	if err != nil {
		return 0, &PackagingError{Op: "stage", Path: rel, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(dst), dirMode); err != nil {
		return 0, &PackagingError{Op: "mkdir", Path: rel, Err: err}
	}
	src, err := e.Open()
	if err != nil {
		return 0, &PackagingError{Op: "read", Path: rel, Err: err}
	}
	defer func() { _ = src.Close() }()

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fileMode) // #nosec G304 -- contained in staging
	if err != nil {
		return 0, &PackagingError{Op: "write", Path: rel, Err: err}
	}
	h := alg.New()
	buf := make([]byte, manifest.ChunkSize)
	n, err := io.CopyBuffer(io.MultiWriter(f, h), src, buf)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, &PackagingError{Op: "write", Path: rel, Err: err}
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != want.Fingerprint {
		return 0, &PackagingError{Op: "verify", Path: rel, Err: fmt.Errorf("content changed after manifest was built")}
	}
	_ = os.Chtimes(dst, want.Modified, want.Modified)
	return n, nil
}

// swap replaces out with staging. The previous output is moved aside and
// its new location returned, so the caller can discard or restore it.
func swap(staging, out string) (string, error) {
	var previous string
	if _, err := os.Lstat(out); err == nil {
		previous = staging + ".previous"
		if err := os.Rename(out, previous); err != nil {
			return "", &PackagingError{Op: "swap", Path: out, Err: err}
		}
	}
	if err := os.Rename(staging, out); err != nil {
		if previous != "" {
			_ = os.Rename(previous, out)
		}
		return "", &PackagingError{Op: "swap", Path: out, Err: err}
	}
	return previous, nil
}

// rollback removes a freshly swapped output and puts the previous one back.
func rollback(out, previous string) {
	_ = os.RemoveAll(out)
	if previous != "" {
		_ = os.Rename(previous, out)
	}
}

func discard(previous string) {
	if previous == "" {
		return
	}
	if err := os.RemoveAll(previous); err != nil {
		logger.Warn("Could not remove previous bundle", logger.String("path", previous), logger.Err(err))
	}
}

// removeStale deletes staging trees left by an interrupted run.
func removeStale(parent, base string) {
	stale, _ := filepath.Glob(filepath.Join(parent, "."+base+".staging-*"))
	for _, dir := range stale {
		logger.Debug("Removing stale staging directory", logger.String("path", dir))
		_ = os.RemoveAll(dir)
	}
}

// buildArchive writes the archive of dir to a temp file next to the final
// archive path and returns its name. The caller renames it into place.
func (p *Packager) buildArchive(dir string, names []string) (string, error) {
	target := p.opts.ArchivePath
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", &PackagingError{Op: "archive", Path: target, Err: err}
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return "", &PackagingError{Op: "archive", Path: target, Err: err}
	}
	tmpName := tmp.Name()
	fail := func(err error) (string, error) {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", &PackagingError{Op: "archive", Path: target, Err: err}
	}

	members := archiveMembers(dir, names)
	switch p.opts.Archive {
	case ArchiveZip:
		err = writeZip(tmp, members)
	case ArchiveTarZst:
		err = writeTarZst(tmp, members)
	}
	if err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", &PackagingError{Op: "archive", Path: target, Err: err}
	}
	if err := os.Chmod(tmpName, fileMode); err != nil {
		_ = os.Remove(tmpName)
		return "", &PackagingError{Op: "archive", Path: target, Err: err}
	}
	return tmpName, nil
}

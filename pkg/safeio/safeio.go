package safeio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrTraversal is returned when a path escapes its base directory.
var ErrTraversal = errors.New("path traversal detected")

// CleanUserPath cleans a user-provided path and rejects traversal attempts.
// Returns paths with forward slashes for cross-platform consistency.
func CleanUserPath(p string) (string, error) {
	c := filepath.ToSlash(filepath.Clean(p))
	for _, seg := range strings.Split(c, "/") {
		if seg == ".." {
			return "", ErrTraversal
		}
	}
	return c, nil
}

// CleanRelPath is CleanUserPath that also rejects absolute paths.
func CleanRelPath(p string) (string, error) {
	if filepath.IsAbs(p) || strings.HasPrefix(filepath.ToSlash(p), "/") {
		return "", fmt.Errorf("absolute path not allowed: %s", p)
	}
	return CleanUserPath(p)
}

// JoinContained joins rel onto baseDir and verifies the result stays inside baseDir.
func JoinContained(baseDir, rel string) (string, error) {
	baseAbs, err := filepath.Abs(baseDir)
	if err != nil {
		return "", errors.New("failed to resolve base directory")
	}
	full := filepath.Join(baseAbs, filepath.FromSlash(rel))
	r, err := filepath.Rel(baseAbs, full)
	if err != nil {
		return "", errors.New("failed to compute relative path")
	}
	if r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", ErrTraversal
	}
	return full, nil
}

// Contains reports whether p equals dir or lies below it. Symlinks are
// resolved for paths that exist.
func Contains(dir, p string) (bool, error) {
	rd, err := realPath(dir)
	if err != nil {
		return false, err
	}
	rp, err := realPath(p)
	if err != nil {
		return false, err
	}
	r, err := filepath.Rel(rd, rp)
	if err != nil {
		return false, nil
	}
	return r == "." || (r != ".." && !strings.HasPrefix(r, ".."+string(filepath.Separator))), nil
}

func realPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}

// WriteFileAtomic writes data to a temp file next to path and renames it into place,
// so readers never observe a half-written file.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fulmenhq/contentpack/pkg/safeio"
)

// Expand fills the {id}, {domain} and {kind} placeholders of a template.
func Expand(template string, id Identifier, kind string) string {
	return strings.NewReplacer("{id}", id.Key, "{domain}", id.Domain, "{kind}", kind).Replace(template)
}

// Locate finds the file a tier template names for id/kind under the content
// root. A template containing glob syntax selects the lexically first
// regular file it matches that the root's ignore files do not exclude.
// ok is false when nothing exists there.
func (r *Registry) Locate(template string, id Identifier, kind string) (path string, ok bool, err error) {
	rel := Expand(template, id, kind)
	if !strings.ContainsAny(rel, "*?[{") {
		full, err := safeio.JoinContained(r.Root, rel)
		if err != nil {
			return "", false, fmt.Errorf("locate %s: %w", rel, err)
		}
		info, err := os.Stat(full)
		if err != nil || !info.Mode().IsRegular() {
			return "", false, nil
		}
		return full, true, nil
	}

	pattern := filepath.ToSlash(rel)
	if !doublestar.ValidatePattern(pattern) {
		return "", false, fmt.Errorf("locate %s: invalid glob pattern", rel)
	}
	if _, err := safeio.CleanRelPath(pattern); err != nil {
		return "", false, fmt.Errorf("locate %s: %w", rel, err)
	}
	matches, err := doublestar.Glob(os.DirFS(r.Root), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return "", false, fmt.Errorf("locate %s: %w", rel, err)
	}
	sort.Strings(matches)
	for _, m := range matches {
		if r.ignore.IsIgnored(m) {
			continue
		}
		full := filepath.Join(r.Root, filepath.FromSlash(m))
		info, err := os.Stat(full)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		return full, true, nil
	}
	return "", false, nil
}

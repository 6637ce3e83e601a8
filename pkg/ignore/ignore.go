// Package ignore provides gitignore-based file filtering using go-git
package ignore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	gitignore "github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// FileName is the content-root ignore file layered over .gitignore.
const FileName = ".contentpackignore"

// defaultPatterns are always ignored under a content root.
var defaultPatterns = []string{".git/**", "*.swp", "*~", ".DS_Store"}

// Matcher filters paths relative to one content root.
type Matcher struct {
	matcher gitignore.Matcher
}

// NewMatcher creates a matcher for root with layered ignore files:
// 1. built-in editor and VCS debris patterns
// 2. .gitignore files and .git/info/exclude under root
// 3. .contentpackignore at root (last, so it can re-include with "!")
func NewMatcher(root string) *Matcher {
	var all []gitignore.Pattern
	for _, p := range defaultPatterns {
		all = append(all, gitignore.ParsePattern(p, nil))
	}

	// ReadPatterns with nil reads .gitignore recursively and .git/info/exclude
	if gitPatterns, err := gitignore.ReadPatterns(osfs.New(root), nil); err == nil {
		all = append(all, gitPatterns...)
	}

	if own, err := readIgnoreFile(filepath.Join(root, FileName)); err == nil {
		for _, p := range own {
			all = append(all, gitignore.ParsePattern(p, nil))
		}
	}

	return &Matcher{matcher: gitignore.NewMatcher(all)}
}

// readIgnoreFile reads patterns from a text file, skipping blanks and comments.
func readIgnoreFile(path string) ([]string, error) {
	cleaned := filepath.Clean(path)
	if filepath.Base(cleaned) != FileName {
		return nil, fmt.Errorf("disallowed ignore file path: %s", cleaned)
	}
	content, err := os.ReadFile(cleaned) // #nosec G304 -- fixed file name under the content root
	if err != nil {
		return nil, err
	}

	var patterns []string
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, nil
}

// IsIgnored reports whether rel, a slash-separated path relative to the
// matcher's root, should be skipped.
func (m *Matcher) IsIgnored(rel string) bool {
	if m == nil {
		return false
	}
	parts := splitPath(rel)
	if len(parts) == 0 {
		return false
	}
	return m.matcher.Match(parts, false)
}

// splitPath converts a slash-separated path into components for go-git matching
func splitPath(path string) []string {
	if path == "" || path == "." {
		return []string{}
	}
	path = strings.TrimPrefix(path, "/")
	parts := strings.Split(path, "/")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" && part != "." {
			result = append(result, part)
		}
	}
	return result
}

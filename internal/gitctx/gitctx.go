package gitctx

import (
	"path/filepath"
	"sort"
	"strings"

	git "github.com/go-git/go-git/v5"
)

// SourceContext describes the git state of a content root.
type SourceContext struct {
	GitSHA        string   `json:"git_sha"`
	Branch        string   `json:"branch,omitempty"`
	Dirty         bool     `json:"dirty"`
	ModifiedFiles []string `json:"modified_files,omitempty"`
}

// Revision is the SHA, suffixed with "-dirty" when the content root has
// uncommitted changes.
func (c *SourceContext) Revision() string {
	if c == nil {
		return ""
	}
	if c.Dirty {
		return c.GitSHA + "-dirty"
	}
	return c.GitSHA
}

// Collect inspects the repository containing target. Returns nil when target
// is not inside a git repository or HEAD has no commit yet.
func Collect(target string) (*SourceContext, error) {
	repo, err := git.PlainOpenWithOptions(target, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, nil
	}
	head, err := repo.Head()
	if err != nil {
		return nil, nil
	}
	ctx := &SourceContext{GitSHA: head.Hash().String()}
	if head.Name().IsBranch() {
		ctx.Branch = head.Name().Short()
	}

	wt, err := repo.Worktree()
	if err != nil {
		return ctx, nil
	}
	st, err := wt.Status()
	if err != nil {
		return nil, err
	}

	prefix := ""
	if absTarget, err := filepath.Abs(target); err == nil {
		if rel, err := filepath.Rel(wt.Filesystem.Root(), absTarget); err == nil && rel != "." {
			prefix = filepath.ToSlash(rel) + "/"
		}
	}
	for path, s := range st {
		if s.Staging == git.Unmodified && s.Worktree == git.Unmodified {
			continue
		}
		p := filepath.ToSlash(path)
		if prefix != "" && !strings.HasPrefix(p, prefix) {
			continue
		}
		ctx.ModifiedFiles = append(ctx.ModifiedFiles, p)
	}
	sort.Strings(ctx.ModifiedFiles)
	ctx.Dirty = len(ctx.ModifiedFiles) > 0
	return ctx, nil
}

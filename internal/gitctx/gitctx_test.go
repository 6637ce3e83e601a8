package gitctx

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commitRepo(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "content"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "content", "1.json"), []byte(`{}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("readme"), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(".")
	require.NoError(t, err)
	hash, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Unix(1700000000, 0)},
	})
	require.NoError(t, err)
	return dir, hash.String()
}

func TestCollectClean(t *testing.T) {
	dir, sha := commitRepo(t)

	ctx, err := Collect(filepath.Join(dir, "content"))
	require.NoError(t, err)
	require.NotNil(t, ctx)
	assert.Equal(t, sha, ctx.GitSHA)
	assert.False(t, ctx.Dirty)
	assert.Equal(t, sha, ctx.Revision())
}

func TestCollectDirtyScopedToTarget(t *testing.T) {
	dir, sha := commitRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("edited"), 0o644))

	ctx, err := Collect(filepath.Join(dir, "content"))
	require.NoError(t, err)
	assert.False(t, ctx.Dirty, "changes outside the content root are ignored")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "content", "1.json"), []byte(`{"x":1}`), 0o644))
	ctx, err = Collect(filepath.Join(dir, "content"))
	require.NoError(t, err)
	assert.True(t, ctx.Dirty)
	assert.Equal(t, []string{"content/1.json"}, ctx.ModifiedFiles)
	assert.Equal(t, sha+"-dirty", ctx.Revision())

	whole, err := Collect(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"README", "content/1.json"}, whole.ModifiedFiles)
}

func TestCollectOutsideRepo(t *testing.T) {
	ctx, err := Collect(t.TempDir())
	assert.NoError(t, err)
	assert.Nil(t, ctx)
	assert.Equal(t, "", ctx.Revision())
}

package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fulmenhq/contentpack/pkg/resolve"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func materialize(t *testing.T, entries []resolve.Entry, out string) {
	t.Helper()
	for _, e := range entries {
		data, err := e.ReadAll()
		require.NoError(t, err)
		dst := filepath.Join(out, filepath.FromSlash(e.Path))
		require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0o755))
		require.NoError(t, os.WriteFile(dst, data, 0o644))
	}
}

func TestVerify(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	entries := []resolve.Entry{entry(t, src, "1", `{"a":1}`), entry(t, src, "2", `{"b":2}`)}
	routing := []byte(`{"domains":[]}`)
	m := build(t, Options{Routing: routing}, entries)
	materialize(t, entries, out)
	require.NoError(t, os.WriteFile(filepath.Join(out, RoutingFileName), routing, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(out, FileName), []byte("{}"), 0o644))

	r, err := Verify(out, m)
	require.NoError(t, err)
	assert.True(t, r.OK)
	assert.Equal(t, 2, r.Present)

	require.NoError(t, os.WriteFile(filepath.Join(out, "numbers/profile/1.json"), []byte(`{"a":2}`), 0o644))
	require.NoError(t, os.Remove(filepath.Join(out, "numbers/profile/2.json")))
	require.NoError(t, os.WriteFile(filepath.Join(out, "numbers/profile/stray.json"), []byte(`{}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(out, RoutingFileName), []byte(`{}`), 0o644))

	r, err = Verify(out, m)
	require.NoError(t, err)
	assert.False(t, r.OK)
	assert.Equal(t, []string{"numbers/profile/1.json"}, r.Changed)
	assert.Equal(t, []string{"numbers/profile/2.json"}, r.Missing)
	assert.Equal(t, []string{"numbers/profile/stray.json"}, r.Extra)
	assert.True(t, r.RoutingMismatch)
	assert.False(t, r.AggregateMismatch)
}

func TestVerifyDetectsEditedManifest(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	entries := []resolve.Entry{entry(t, src, "1", `{"a":1}`)}
	m := build(t, Options{}, entries)
	materialize(t, entries, out)

	m.Files[0].Path = "numbers/profile/renamed.json"
	r, err := Verify(out, m)
	require.NoError(t, err)
	assert.True(t, r.AggregateMismatch)
	assert.False(t, r.OK)
}

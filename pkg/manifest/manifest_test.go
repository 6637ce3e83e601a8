package manifest

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fulmenhq/contentpack/pkg/registry"
	"github.com/fulmenhq/contentpack/pkg/resolve"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func entry(t *testing.T, dir, key, body string) resolve.Entry {
	t.Helper()
	src := filepath.Join(dir, key+".json")
	require.NoError(t, os.WriteFile(src, []byte(body), 0o644))
	require.NoError(t, os.Chtimes(src, fixedTime, fixedTime))
	return resolve.Entry{
		ID:         registry.Identifier{Domain: "numbers", Key: key},
		Kind:       "profile",
		Tier:       "curated",
		Provenance: registry.Authentic,
		SourcePath: src,
		Path:       resolve.BundlePath(registry.Identifier{Domain: "numbers", Key: key}, "profile", ".json"),
		ModTime:    fixedTime.Add(250 * time.Millisecond),
	}
}

func build(t *testing.T, opts Options, entries []resolve.Entry) *Manifest {
	t.Helper()
	b, err := NewBuilder(opts)
	require.NoError(t, err)
	m, err := b.Build(context.Background(), entries)
	require.NoError(t, err)
	return m
}

func TestBuildDeterministic(t *testing.T) {
	dir := t.TempDir()
	a := entry(t, dir, "1", `{"title":"One"}`)
	b := entry(t, dir, "2", `{"title":"Two"}`)
	opts := Options{Dataset: Dataset{Name: "n", Version: "1.0.0"}, Workers: 4}

	first := build(t, opts, []resolve.Entry{a, b})
	second := build(t, opts, []resolve.Entry{b, a})

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("manifest depends on input order (-first +second):\n%s", diff)
	}
	assert.Len(t, first.AggregateFingerprint, 64)
	assert.Equal(t, "numbers/profile/1.json", first.Files[0].Path)
	assert.Equal(t, 2, first.TotalFiles)
	assert.Equal(t, int64(len(`{"title":"One"}`)+len(`{"title":"Two"}`)), first.TotalBytes)
	assert.Equal(t, fixedTime, first.Files[0].Modified, "modification time is truncated to seconds")
	assert.Equal(t, fixedTime, first.GeneratedAt, "generated_at defaults to newest entry")

	m1, err := first.Marshal()
	require.NoError(t, err)
	m2, err := second.Marshal()
	require.NoError(t, err)
	assert.True(t, bytes.Equal(m1, m2))
}

func TestAggregatePathSensitivity(t *testing.T) {
	dir := t.TempDir()
	a := entry(t, dir, "1", `{"title":"One"}`)
	base := build(t, Options{}, []resolve.Entry{a})

	renamed := a
	renamed.Path = "numbers/profile/01.json"
	moved := build(t, Options{}, []resolve.Entry{renamed})

	assert.Equal(t, base.Files[0].Fingerprint, moved.Files[0].Fingerprint)
	assert.NotEqual(t, base.AggregateFingerprint, moved.AggregateFingerprint)
}

func TestAggregateContentSensitivity(t *testing.T) {
	dir := t.TempDir()
	a := entry(t, dir, "1", `{"title":"One"}`)
	before := build(t, Options{}, []resolve.Entry{a})

	require.NoError(t, os.WriteFile(a.SourcePath, []byte(`{"title":"one"}`), 0o644))
	after := build(t, Options{}, []resolve.Entry{a})

	assert.NotEqual(t, before.Files[0].Fingerprint, after.Files[0].Fingerprint)
	assert.NotEqual(t, before.AggregateFingerprint, after.AggregateFingerprint)
}

func TestBlake3Algorithm(t *testing.T) {
	dir := t.TempDir()
	a := entry(t, dir, "1", `{"title":"One"}`)
	sha := build(t, Options{Algorithm: SHA256}, []resolve.Entry{a})
	b3 := build(t, Options{Algorithm: BLAKE3}, []resolve.Entry{a})

	assert.Equal(t, BLAKE3, b3.HashAlgorithm)
	assert.Len(t, b3.Files[0].Fingerprint, 64)
	assert.NotEqual(t, sha.Files[0].Fingerprint, b3.Files[0].Fingerprint)

	_, err := NewBuilder(Options{Algorithm: "md5"})
	assert.Error(t, err)
}

func TestHashReaderStreamsLargeInput(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789abcdef"), ChunkSize/4)
	fp, n, err := HashReader(SHA256, bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.Equal(t, HashBytes(SHA256, data), fp)
}

func TestMissingAndExcludedEntries(t *testing.T) {
	dir := t.TempDir()
	a := entry(t, dir, "1", `{}`)
	missing := resolve.Entry{
		ID:         registry.Identifier{Domain: "numbers", Key: "11"},
		Kind:       "profile",
		Rank:       -1,
		Provenance: registry.Missing,
		Path:       "numbers/profile/11.json",
	}
	optional := resolve.Entry{
		ID:         registry.Identifier{Domain: "numbers", Key: "11"},
		Kind:       "notes",
		Optional:   true,
		Provenance: registry.Missing,
	}
	reserved := a
	reserved.Path = FileName

	m := build(t, Options{}, []resolve.Entry{a, missing, optional, reserved})
	assert.Equal(t, 1, m.TotalFiles)
	assert.Equal(t, []string{"11"}, m.MissingKeys())
	assert.Equal(t, []MissingUnit{{Domain: "numbers", Identifier: "11", Kinds: []string{"profile"}}}, m.Summary.Missing)
	assert.Equal(t, map[string]int{"curated": 1}, m.Summary.Tiers, "reserved paths are not counted")
	assert.Equal(t, 1, m.Summary.Provenance["authentic"])
	assert.Equal(t, 2, m.Summary.Provenance["missing"])
}

func TestModifiedClampedToGeneratedAt(t *testing.T) {
	dir := t.TempDir()
	a := entry(t, dir, "1", `{"title":"One"}`)
	epoch := fixedTime.Add(-48 * time.Hour)

	checkout := a
	checkout.ModTime = time.Now()
	first := build(t, Options{GeneratedAt: &epoch}, []resolve.Entry{a})
	second := build(t, Options{GeneratedAt: &epoch}, []resolve.Entry{checkout})
	assert.Equal(t, epoch, first.Files[0].Modified)

	m1, err := first.Marshal()
	require.NoError(t, err)
	m2, err := second.Marshal()
	require.NoError(t, err)
	assert.True(t, bytes.Equal(m1, m2), "mtimes after the pinned epoch do not change the manifest")

	later := fixedTime.Add(time.Hour)
	kept := build(t, Options{GeneratedAt: &later}, []resolve.Entry{a})
	assert.Equal(t, fixedTime, kept.Files[0].Modified, "older mtimes are kept")
}

func TestDuplicatePathRejected(t *testing.T) {
	dir := t.TempDir()
	a := entry(t, dir, "1", `{}`)
	b := a
	b.Path = "./numbers/profile/1.json"

	builder, err := NewBuilder(Options{})
	require.NoError(t, err)
	_, err = builder.Build(context.Background(), []resolve.Entry{a, b})
	assert.Error(t, err)
}

func TestIntegrityErrorOnUnreadableSource(t *testing.T) {
	dir := t.TempDir()
	a := entry(t, dir, "1", `{}`)
	require.NoError(t, os.Remove(a.SourcePath))

	builder, err := NewBuilder(Options{})
	require.NoError(t, err)
	_, err = builder.Build(context.Background(), []resolve.Entry{a})
	var ierr *IntegrityError
	require.True(t, errors.As(err, &ierr))
	assert.Equal(t, "numbers/profile/1.json", ierr.Path)
}

func TestGeneratedAtAndRouting(t *testing.T) {
	dir := t.TempDir()
	a := entry(t, dir, "1", `{}`)
	pinned := time.Unix(1700000000, 999).UTC()
	routing := []byte(`{"domains":[]}`)

	m := build(t, Options{GeneratedAt: &pinned, Routing: routing}, []resolve.Entry{a})
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), m.GeneratedAt)
	assert.Equal(t, HashBytes(SHA256, routing), m.RoutingFingerprint)

	empty := build(t, Options{}, nil)
	assert.Equal(t, time.Unix(0, 0).UTC(), empty.GeneratedAt)
	assert.Equal(t, HashBytes(SHA256, nil), empty.AggregateFingerprint)
	assert.NotNil(t, empty.Files)
}

func TestSourceDateEpoch(t *testing.T) {
	t.Setenv("SOURCE_DATE_EPOCH", "")
	ts, err := SourceDateEpoch()
	require.NoError(t, err)
	assert.Nil(t, ts)

	t.Setenv("SOURCE_DATE_EPOCH", "1700000000")
	ts, err = SourceDateEpoch()
	require.NoError(t, err)
	require.NotNil(t, ts)
	assert.Equal(t, int64(1700000000), ts.Unix())

	t.Setenv("SOURCE_DATE_EPOCH", "yesterday")
	_, err = SourceDateEpoch()
	assert.Error(t, err)
}

func TestNormalizePath(t *testing.T) {
	decomposed := "numbers/cafe\u0301.json"
	assert.Equal(t, "numbers/caf\u00e9.json", NormalizePath(decomposed))
	assert.Equal(t, "a/b/c.json", NormalizePath(`a\b\c.json`))
	assert.Equal(t, "a/c.json", NormalizePath("./a/b/../c.json"))
}

func TestReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	a := entry(t, dir, "1", `{"title":"One"}`)
	m := build(t, Options{Dataset: Dataset{Name: "n", Version: "1.0.0"}}, []resolve.Entry{a})

	data, err := m.Marshal()
	require.NoError(t, err)
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	back, err := Read(path)
	require.NoError(t, err)
	if diff := cmp.Diff(m, back); diff != "" {
		t.Fatalf("manifest changed on read (-want +got):\n%s", diff)
	}

	e, ok := back.Lookup("numbers/profile/1.json")
	require.True(t, ok)
	assert.Equal(t, m.Files[0], e)

	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(string(data), m.AggregateFingerprint, "xyz", 1)), 0o644))
	_, err = Read(path)
	assert.Error(t, err)
}

func TestReadRejectsOtherMajorVersion(t *testing.T) {
	dir := t.TempDir()
	a := entry(t, dir, "1", `{"title":"One"}`)
	m := build(t, Options{Dataset: Dataset{Name: "n", Version: "1.0.0"}}, []resolve.Entry{a})
	path := filepath.Join(dir, FileName)

	m.ManifestVersion = "1.4.0"
	data, err := m.Marshal()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	_, err = Read(path)
	require.NoError(t, err)

	m.ManifestVersion = "2.0.0"
	data, err = m.Marshal()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	_, err = Read(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported manifest_version")
}

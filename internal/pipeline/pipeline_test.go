package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"testing"
	"time"

	"github.com/fulmenhq/contentpack/internal/gates"
	"github.com/fulmenhq/contentpack/pkg/bundle"
	"github.com/fulmenhq/contentpack/pkg/manifest"
	"github.com/fulmenhq/contentpack/pkg/registry"
	"github.com/fulmenhq/contentpack/pkg/resolve"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const abRegistry = `
domains:
  - name: letters
    identifiers: ["A", "B"]
    kinds:
      - name: profile
        required_fields: [title]
        tiers:
          - name: curated
            strategy: {kind: exact, locate: "curated/{id}.json"}
          - name: draft
            strategy: {kind: exact, locate: "drafts/{id}.json"}
`

const numbersRegistry = `
domains:
  - name: numbers
    identifiers: ["1", "2", "3", "4", "5", "6", "7", "8", "9", "11", "22", "33", "44"]
    kinds:
      - name: profile
        tiers:
          - name: curated
            strategy: {kind: exact, locate: "curated/{id}.json"}
`

var hex64 = regexp.MustCompile(`^[0-9a-f]{64}$`)

func put(t *testing.T, root, rel, body string) string {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(body), 0o644))
	return full
}

func abConfig(t *testing.T) Config {
	t.Helper()
	root := t.TempDir()
	reg := put(t, root, "registry.yaml", abRegistry)
	put(t, root, "curated/A.json", `{"title":"Alpha"}`)
	put(t, root, "drafts/A.json", `{"title":"Alpha draft"}`)
	put(t, root, "drafts/B.json", `{"title":"Beta draft"}`)
	pol := put(t, root, "policy.yaml", "gates: {schema: hard}\n")

	pinned := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	return Config{
		RegistryPath:  reg,
		PolicyPath:    pol,
		Dataset:       manifest.Dataset{Name: "letters", Version: "1.0.0"},
		HashAlgorithm: manifest.SHA256,
		GeneratedAt:   &pinned,
		OutputDir:     filepath.Join(t.TempDir(), "bundle"),
		Workers:       2,
	}
}

func TestRunEndToEnd(t *testing.T) {
	cfg := abConfig(t)
	res, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	require.NotNil(t, res.Outcome)
	assert.Equal(t, gates.StatePassed, res.Outcome.State)
	assert.Empty(t, res.Outcome.Issues)

	m := res.Manifest
	require.NotNil(t, m)
	assert.Equal(t, 2, m.TotalFiles)
	assert.Regexp(t, hex64, m.AggregateFingerprint)
	assert.Regexp(t, hex64, m.RoutingFingerprint)

	a, ok := m.Lookup("letters/profile/A.json")
	require.True(t, ok)
	assert.Equal(t, string(registry.Authentic), a.Provenance)
	b, ok := m.Lookup("letters/profile/B.json")
	require.True(t, ok)
	assert.Equal(t, string(registry.Fallback), b.Provenance)
	assert.Equal(t, "draft", b.Source)

	require.NotNil(t, res.Artifact)
	onDisk, err := manifest.Read(filepath.Join(res.Artifact.Dir, manifest.FileName))
	require.NoError(t, err)
	assert.Equal(t, m.AggregateFingerprint, onDisk.AggregateFingerprint)

	report, err := manifest.Verify(res.Artifact.Dir, onDisk)
	require.NoError(t, err)
	assert.True(t, report.OK)
}

func TestRunIsReproducible(t *testing.T) {
	cfg := abConfig(t)
	first, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	firstBytes, err := os.ReadFile(filepath.Join(first.Artifact.Dir, manifest.FileName))
	require.NoError(t, err)

	second, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	secondBytes, err := os.ReadFile(filepath.Join(second.Artifact.Dir, manifest.FileName))
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, string(firstBytes), string(secondBytes))
	assert.Equal(t, listFiles(t, first.Artifact.Dir), listFiles(t, second.Artifact.Dir))
}

func TestRunWithArchive(t *testing.T) {
	cfg := abConfig(t)
	cfg.Archive = bundle.ArchiveZip
	res, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	require.NotEmpty(t, res.Artifact.Archive)
	assert.FileExists(t, res.Artifact.Archive)
}

func TestRunBlocksOnHardFallback(t *testing.T) {
	cfg := abConfig(t)
	cfg.PolicyPath = put(t, t.TempDir(), "strict.yaml", "gates: {fallback: hard}\n")

	res, err := Run(context.Background(), cfg)
	require.ErrorIs(t, err, ErrBlocked)
	require.NotNil(t, res.Outcome)
	assert.Equal(t, gates.StateFailedHard, res.Outcome.State)
	assert.Nil(t, res.Manifest)
	assert.Nil(t, res.Artifact)
	assert.NoDirExists(t, cfg.OutputDir)
}

func TestRunRefusesOutputOverContent(t *testing.T) {
	for name, target := range map[string]func(root string) string{
		"content root":    func(root string) string { return root },
		"parent of root":  func(root string) string { return filepath.Dir(root) },
		"source tier dir": func(root string) string { return filepath.Join(root, "drafts") },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := abConfig(t)
			root := filepath.Dir(cfg.RegistryPath)
			notes := put(t, root, "precious/notes.txt", "keep me")
			cfg.OutputDir = target(root)

			res, err := Run(context.Background(), cfg)
			var perr *bundle.PackagingError
			require.ErrorAs(t, err, &perr)
			assert.ErrorIs(t, err, bundle.ErrOverlap)
			assert.Nil(t, res.Artifact)

			assert.FileExists(t, cfg.RegistryPath)
			assert.FileExists(t, notes)
			assert.FileExists(t, filepath.Join(root, "drafts", "B.json"))
		})
	}
}

func TestRunRefusesUnrelatedOutputDir(t *testing.T) {
	cfg := abConfig(t)
	cfg.OutputDir = t.TempDir()
	docs := put(t, cfg.OutputDir, "README.md", "# docs")

	_, err := Run(context.Background(), cfg)
	require.ErrorIs(t, err, bundle.ErrNotBundle)
	assert.FileExists(t, docs)
}

func TestRunOutputBesideRegistry(t *testing.T) {
	cfg := abConfig(t)
	cfg.OutputDir = filepath.Join(filepath.Dir(cfg.RegistryPath), "dist")

	res, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(res.Artifact.Dir, manifest.FileName))
	assert.FileExists(t, cfg.RegistryPath)
}

func numbersConfig(t *testing.T) Config {
	t.Helper()
	root := t.TempDir()
	reg := put(t, root, "registry.yaml", numbersRegistry)
	for _, id := range []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "22", "33", "44"} {
		put(t, root, "curated/"+id+".json", `{"number":"`+id+`"}`)
	}
	return Config{
		RegistryPath:  reg,
		HashAlgorithm: manifest.SHA256,
		Dataset:       manifest.Dataset{Name: "numbers", Version: "0.1.0"},
		OutputDir:     filepath.Join(t.TempDir(), "out"),
		Workers:       4,
	}
}

func TestRunReportsMissingIdentifier(t *testing.T) {
	cfg := numbersConfig(t)

	res, err := Run(context.Background(), cfg)
	require.ErrorIs(t, err, ErrBlocked)

	s := Summarize(res, err, DefaultMaxExamples)
	assert.Equal(t, []string{"11"}, s.Missing)
	assert.Equal(t, "failed", s.Status)
	assert.Equal(t, 1, s.Gates["completeness"].Blocking)

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, s, false))
	assert.Contains(t, buf.String(), `missing = ["11"]`)
	assert.Contains(t, buf.String(), "completeness")
}

func TestRunSoftModeDowngradesCompleteness(t *testing.T) {
	cfg := numbersConfig(t)
	cfg.Soft = true

	res, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, res.SoftMode)
	assert.Equal(t, gates.StateFailedSoft, res.Outcome.State)
	assert.Equal(t, 12, res.Manifest.TotalFiles)
	assert.Equal(t, []string{"11"}, res.Manifest.MissingKeys())

	s := Summarize(res, nil, 0)
	assert.Equal(t, "ok-with-warnings", s.Status)
	assert.Equal(t, 1, s.Gates["completeness"].Warnings)
	assert.Empty(t, s.Gates["completeness"].Examples)
}

func TestStopAfterValidation(t *testing.T) {
	cfg := abConfig(t)
	cfg.StopAfterValidation = true

	res, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, gates.StatePassed, res.Outcome.State)
	assert.Nil(t, res.Manifest)
	assert.NoDirExists(t, cfg.OutputDir)
}

func TestResolveOnly(t *testing.T) {
	cfg := abConfig(t)
	res, err := Resolve(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, registry.Authentic, res.Entries[0].Provenance)
	assert.Equal(t, registry.Fallback, res.Entries[1].Provenance)
	assert.EqualValues(t, 2, res.Resolved)
}

func TestRunRejectsBrokenPolicyUnlessSoft(t *testing.T) {
	cfg := abConfig(t)
	cfg.PolicyPath = put(t, t.TempDir(), "broken.yaml", "gates: [not, a, map]\n")

	_, err := Run(context.Background(), cfg)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrBlocked))

	cfg.Soft = true
	res, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, res.Policy.Fallback)
}

func TestSummaryJSON(t *testing.T) {
	cfg := abConfig(t)
	res, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, Summarize(res, nil, DefaultMaxExamples), true))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "ok", decoded["status"])
	assert.Equal(t, res.RunID, decoded["run_id"])
	assert.Equal(t, res.Manifest.AggregateFingerprint, decoded["aggregate_fingerprint"])
}

func TestSummarizeNilResult(t *testing.T) {
	s := Summarize(nil, errors.New("registry: no such file"), DefaultMaxExamples)
	assert.Equal(t, "failed", s.Status)
	assert.Equal(t, []string{}, s.Missing)

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, s, false))
	assert.Contains(t, buf.String(), "registry: no such file")
}

func TestSummaryQualifiesMissingAcrossDomains(t *testing.T) {
	one := registry.Identifier{Domain: "numbers", Key: "1"}
	other := registry.Identifier{Domain: "letters", Key: "1"}
	res := &Result{Missing: []resolve.MissingItem{
		{ID: one, Kind: "profile"},
		{ID: one, Kind: "notes"},
		{ID: other, Kind: "profile"},
	}}
	assert.Equal(t, []string{"numbers/1", "letters/1"}, Summarize(res, nil, 0).Missing)

	single := &Result{Missing: []resolve.MissingItem{{ID: one, Kind: "profile"}, {ID: one, Kind: "notes"}}}
	assert.Equal(t, []string{"1"}, Summarize(single, nil, 0).Missing)
}

func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	var out []string
	require.NoError(t, filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			rel, _ := filepath.Rel(dir, p)
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	}))
	sort.Strings(out)
	return out
}

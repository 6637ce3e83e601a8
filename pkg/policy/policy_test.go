package policy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	p, err := Default(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "v1", p.Version())
	assert.False(t, p.SoftMode())
	assert.Equal(t, Hard, p.Level(GateSchema))
	assert.Equal(t, Hard, p.Level(GateCompleteness))
	assert.Equal(t, Hard, p.Level(GateRanges))
	assert.Equal(t, Soft, p.Level(GateFallback))
	assert.True(t, p.Downgradeable(GateCompleteness))
	assert.True(t, p.Downgradeable(GateRanges))
	assert.False(t, p.Downgradeable(GateSchema))
	assert.Empty(t, p.Rules())

	assert.Equal(t, SeverityBlocking, p.Severity(GateCompleteness))
	soft := p.WithSoftMode(true)
	assert.Equal(t, SeverityWarning, soft.Severity(GateCompleteness))
	assert.Equal(t, SeverityBlocking, soft.Severity(GateSchema), "soft mode leaves non-downgradeable gates hard")
	assert.Equal(t, SeverityBlocking, p.Severity(GateCompleteness), "WithSoftMode must not mutate the original")
}

func TestUnknownGateIsHard(t *testing.T) {
	p, err := Parse(context.Background(), "p.yaml", []byte("gates: {}\n"))
	require.NoError(t, err)
	assert.Equal(t, Hard, p.Level("custom"))
	assert.Equal(t, SeverityBlocking, p.Severity("custom"))
}

func TestUnnamedBuiltinGatesTakeDefaultLevels(t *testing.T) {
	p, err := Parse(context.Background(), "p.yaml", []byte("gates: {schema: hard}\n"))
	require.NoError(t, err)

	assert.Equal(t, Soft, p.Level(GateFallback))
	assert.Equal(t, SeverityWarning, p.Severity(GateFallback))
	assert.Equal(t, Hard, p.Level(GateCompleteness))
	assert.Equal(t, Hard, p.Level(GateRanges))

	strict, err := Parse(context.Background(), "p.yaml", []byte("gates: {fallback: hard}\n"))
	require.NoError(t, err)
	assert.Equal(t, Hard, strict.Level(GateFallback), "a named level wins over the default")
	assert.True(t, strict.Names(GateFallback))
	assert.False(t, p.Names(GateFallback))
	assert.NotContains(t, p.Gates(), GateFallback, "defaults are not written back into the document")
}

func TestSnapshotAccessorsReturnCopies(t *testing.T) {
	p, err := Default(context.Background())
	require.NoError(t, err)

	gates := p.Gates()
	gates[GateSchema] = Soft
	assert.Equal(t, Hard, p.Level(GateSchema))

	doc := p.Document()
	doc.Downgradeable = append(doc.Downgradeable, GateSchema)
	assert.False(t, p.Downgradeable(GateSchema))
	assert.Equal(t, []string{GateCompleteness, GateRanges}, p.Document().Downgradeable)
}

func TestAcceptsFallback(t *testing.T) {
	body := "gates: {fallback: hard}\naccepted_fallbacks: [\"numbers/11\", \"22\"]\n"
	p, err := Parse(context.Background(), "p.yaml", []byte(body))
	require.NoError(t, err)

	assert.True(t, p.AcceptsFallback("numbers", "11"))
	assert.False(t, p.AcceptsFallback("letters", "11"))
	assert.True(t, p.AcceptsFallback("letters", "22"))
	assert.False(t, p.AcceptsFallback("numbers", "33"))
}

func TestLoadEmbeddedWhenNoPath(t *testing.T) {
	res, err := Load(context.Background(), LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, SourceEmbedded, res.Source)
	assert.False(t, res.Fallback)
}

func TestLoadExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.toml")
	require.NoError(t, os.WriteFile(path, []byte("soft_mode = true\n[gates]\nschema = \"soft\"\n"), 0o644))

	res, err := Load(context.Background(), LoadOptions{Path: path})
	require.NoError(t, err)
	assert.Equal(t, path, res.Source)
	assert.True(t, res.Policy.SoftMode())
	assert.Equal(t, Soft, res.Policy.Level(GateSchema))
}

func TestLoadMalformedIsFatalUnlessSoft(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gates:\n  schema: maybe\n"), 0o644))

	_, err := Load(context.Background(), LoadOptions{Path: path})
	require.Error(t, err)
	var lerr *LoadError
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, path, lerr.Path)

	res, err := Load(context.Background(), LoadOptions{Path: path, Soft: true})
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, SourceEmbedded, res.Source)
	assert.Contains(t, res.Warning, "embedded default")
	assert.Equal(t, Hard, res.Policy.Level(GateSchema))
}

func TestLoadMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.yaml")

	_, err := Load(context.Background(), LoadOptions{Path: path})
	assert.Error(t, err)

	res, err := Load(context.Background(), LoadOptions{Path: path, Optional: true})
	require.NoError(t, err)
	assert.False(t, res.Fallback)
	assert.Equal(t, SourceEmbedded, res.Source)
}

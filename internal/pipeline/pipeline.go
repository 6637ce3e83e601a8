// Package pipeline runs the stages of a content release in strict sequence:
// registry, resolution, validation gates, manifest, packaging.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fulmenhq/contentpack/internal/gates"
	"github.com/fulmenhq/contentpack/internal/gitctx"
	"github.com/fulmenhq/contentpack/pkg/bundle"
	"github.com/fulmenhq/contentpack/pkg/logger"
	"github.com/fulmenhq/contentpack/pkg/manifest"
	"github.com/fulmenhq/contentpack/pkg/policy"
	"github.com/fulmenhq/contentpack/pkg/registry"
	"github.com/fulmenhq/contentpack/pkg/resolve"
	"github.com/google/uuid"
)

// ErrBlocked is returned when validation ends FailedHard.
var ErrBlocked = errors.New("blocking validation issues")

// Result collects what each stage produced. Fields for stages that did not
// run are zero.
type Result struct {
	RunID    string
	Registry *registry.Registry
	Policy   policy.LoadResult
	SoftMode bool

	Entries  []resolve.Entry
	Missing  []resolve.MissingItem
	Resolved int64
	Bytes    int64

	Outcome  *gates.Outcome
	Revision string
	Manifest *manifest.Manifest
	Routing  []byte
	Artifact *bundle.Artifact
}

// Resolve loads the registry and resolves every request, without validating.
func Resolve(ctx context.Context, cfg Config) (*Result, error) {
	res := &Result{RunID: uuid.NewString()}
	log := []logger.Field{logger.String("run_id", res.RunID)}

	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		return res, err
	}
	if cfg.Root != "" {
		root := cfg.Root
		if !filepath.IsAbs(root) {
			root = filepath.Join(filepath.Dir(reg.Path()), root)
		}
		if reg, err = reg.WithRoot(root); err != nil {
			return res, err
		}
	}
	res.Registry = reg
	logger.Info("Loaded registry", append(log,
		logger.String("path", reg.Path()),
		logger.String("root", reg.Root),
		logger.Int("identifiers", len(reg.Identifiers())))...)

	r := resolve.New(reg, cfg.Workers)
	entries, err := r.ResolveAll(ctx, reg.Requests())
	if err != nil {
		return res, err
	}
	res.Entries = entries
	res.Missing = r.Missing()
	res.Resolved, res.Bytes = r.Totals()
	logger.Info("Resolved content", append(log,
		logger.Int64("resolved", res.Resolved),
		logger.Int64("bytes", res.Bytes),
		logger.Int("missing", len(res.Missing)))...)
	if len(res.Missing) > 0 {
		ids := make([]string, 0, len(res.Missing))
		for _, m := range res.Missing {
			ids = append(ids, m.ID.String()+":"+m.Kind)
		}
		logger.Warn("Required content missing from every tier", append(log, logger.Strings("missing", ids))...)
	}
	return res, nil
}

// Run executes the pipeline. A run that ends FailedHard returns the partial
// Result together with ErrBlocked; packaging is not attempted.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	res, err := Resolve(ctx, cfg)
	if err != nil {
		return res, err
	}

	loaded, err := policy.Load(ctx, policy.LoadOptions{Path: cfg.PolicyPath, Optional: cfg.PolicyOptional, Soft: cfg.Soft})
	if err != nil {
		return res, err
	}
	if loaded.Fallback {
		logger.Warn("Policy unusable, using embedded default", logger.String("warning", loaded.Warning))
	}
	p := loaded.Policy
	if cfg.Soft && !p.SoftMode() {
		p = p.WithSoftMode(true)
	}
	loaded.Policy = p
	res.Policy = loaded
	res.SoftMode = p.SoftMode()
	logger.Info("Gate policy in effect",
		logger.String("run_id", res.RunID),
		logger.String("source", loaded.Source),
		logger.Bool("soft_mode", res.SoftMode))

	outcome, err := gates.NewEngine(cfg.Workers).Validate(ctx, gates.Corpus{Registry: res.Registry, Entries: res.Entries}, p)
	if err != nil {
		return res, err
	}
	res.Outcome = &outcome
	if outcome.State == gates.StateFailedHard {
		return res, ErrBlocked
	}
	if cfg.StopAfterValidation {
		return res, nil
	}

	packager, err := bundle.NewPackager(bundle.Options{
		OutputDir:   cfg.OutputDir,
		Archive:     cfg.Archive,
		ArchivePath: cfg.ArchivePath,
		Workers:     cfg.Workers,
		Protected:   []string{res.Registry.Root, filepath.Dir(res.Registry.Path())},
	})
	if err != nil {
		return res, err
	}

	if cfg.RecordRevision {
		src, err := gitctx.Collect(res.Registry.Root)
		if err != nil {
			logger.Warn("Cannot read git state of content root", logger.Err(err))
		}
		res.Revision = src.Revision()
	}

	routing, err := bundle.BuildRouting(res.Registry, res.Entries).Marshal()
	if err != nil {
		return res, fmt.Errorf("encode routing: %w", err)
	}
	res.Routing = routing

	dataset := cfg.Dataset
	dataset.SourceRevision = res.Revision
	builder, err := manifest.NewBuilder(manifest.Options{
		Algorithm:   cfg.HashAlgorithm,
		Dataset:     dataset,
		GeneratedAt: cfg.GeneratedAt,
		Routing:     routing,
		Workers:     cfg.Workers,
	})
	if err != nil {
		return res, err
	}
	m, err := builder.Build(ctx, res.Entries)
	if err != nil {
		return res, err
	}
	res.Manifest = m

	art, err := packager.Package(ctx, res.Entries, m, routing)
	if err != nil {
		return res, err
	}
	res.Artifact = art
	return res, nil
}

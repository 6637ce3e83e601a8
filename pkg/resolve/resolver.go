// Package resolve routes each content request across the registry's
// priority-ordered source tiers. The first tier whose content exists wins;
// requests no tier satisfies are recorded as missing, never returned as errors.
package resolve

import (
	"context"
	"os"
	"sync"
	"sync/atomic"

	"github.com/fulmenhq/contentpack/pkg/logger"
	"github.com/fulmenhq/contentpack/pkg/registry"
	"github.com/fulmenhq/contentpack/pkg/work"
)

// MissingItem is a required identifier/kind no tier could resolve.
type MissingItem struct {
	ID   registry.Identifier
	Kind string
}

// Resolver resolves requests against a registry.
type Resolver struct {
	reg     *registry.Registry
	workers int

	mu      sync.Mutex
	missing []MissingItem

	count atomic.Int64
	bytes atomic.Int64
}

// New creates a Resolver. workers bounds ResolveAll's parallelism.
func New(reg *registry.Registry, workers int) *Resolver {
	if workers < 1 {
		workers = 1
	}
	return &Resolver{reg: reg, workers: workers}
}

// Resolve resolves one request and records it in the running totals.
func (r *Resolver) Resolve(id registry.Identifier, kind string) Entry {
	e := r.resolve(id, kind)
	r.record(e)
	return e
}

// ResolveAll resolves requests in parallel and returns entries in request
// order. Totals and the missing list are recorded in that same order. The
// only error is context cancellation.
func (r *Resolver) ResolveAll(ctx context.Context, reqs []registry.Request) ([]Entry, error) {
	entries, err := work.Map(ctx, reqs, r.workers, func(_ context.Context, _ int, req registry.Request) (Entry, error) {
		return r.resolve(req.ID, req.Kind), nil
	})
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		r.record(e)
	}
	return entries, nil
}

// Missing returns the required requests left unresolved so far.
func (r *Resolver) Missing() []MissingItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]MissingItem, len(r.missing))
	copy(out, r.missing)
	return out
}

// Totals returns the number of resolved entries and their cumulative bytes.
func (r *Resolver) Totals() (count, bytes int64) {
	return r.count.Load(), r.bytes.Load()
}

func (r *Resolver) record(e Entry) {
	if e.Missing() {
		if !e.Optional {
			r.mu.Lock()
			r.missing = append(r.missing, MissingItem{ID: e.ID, Kind: e.Kind})
			r.mu.Unlock()
		}
		return
	}
	r.count.Add(1)
	r.bytes.Add(e.Size)
}

func (r *Resolver) resolve(id registry.Identifier, kind string) Entry {
	missing := Entry{ID: id, Kind: kind, Rank: -1, Provenance: registry.Missing}

	k, ok := r.reg.Kind(id.Domain, kind)
	if !ok {
		logger.Warn("Unknown domain or kind", logger.String("id", id.String()), logger.String("kind", kind))
		return missing
	}
	missing.Format = k.Format
	missing.Optional = k.Optional
	missing.Path = BundlePath(id, kind, k.Extension)

	for _, tier := range k.Tiers {
		e, ok := r.tryTier(id, k, tier)
		if ok {
			logger.Debug("Resolved content",
				logger.String("id", id.String()),
				logger.String("kind", kind),
				logger.String("tier", tier.Name),
				logger.String("provenance", string(e.Provenance)))
			return e
		}
	}
	logger.Debug("No tier resolved content", logger.String("id", id.String()), logger.String("kind", kind))
	return missing
}

// tryTier interprets one tier strategy; ok is false when its content is absent.
func (r *Resolver) tryTier(id registry.Identifier, k *registry.Kind, tier registry.Tier) (Entry, bool) {
	e := Entry{
		ID:         id,
		Kind:       k.Name,
		Format:     k.Format,
		Optional:   k.Optional,
		Tier:       tier.Name,
		Rank:       tier.Rank,
		Provenance: tier.Provenance,
		Path:       BundlePath(id, k.Name, k.Extension),
	}

	source := id
	if tier.Borrowed() {
		base, ok := tier.Strategy.Transform.BaseKey(id.Key)
		if !ok {
			return Entry{}, false
		}
		source = registry.Identifier{Domain: id.Domain, Key: base}
	}

	path, found, err := r.reg.Locate(tier.Strategy.Locate, source, k.Name)
	if err != nil {
		logger.Warn("Skipping tier", logger.String("tier", tier.Name), logger.Err(err))
		return Entry{}, false
	}
	if !found {
		logger.Trace("Tier has no content", logger.String("tier", tier.Name), logger.String("id", source.String()))
		return Entry{}, false
	}
	info, err := os.Stat(path)
	if err != nil {
		return Entry{}, false
	}
	e.SourcePath = path
	e.ModTime = info.ModTime()
	e.Size = info.Size()

	if !tier.Borrowed() {
		return e, true
	}

	content, err := os.ReadFile(path) // #nosec G304 -- located inside the content root
	if err != nil {
		logger.Warn("Cannot read borrowed content", logger.String("path", path), logger.Err(err))
		return Entry{}, false
	}
	e.BaseKey = source.Key
	e.Reason = tier.Strategy.Transform.ReasonFor(id.Key, source.Key)
	body, err := Wrap(FallbackInfo{For: id.Key, Base: source.Key, Reason: e.Reason, Tier: tier.Name}, content, k.JSON())
	if err != nil {
		logger.Warn("Cannot wrap borrowed content", logger.String("path", path), logger.Err(err))
		return Entry{}, false
	}
	e.body = body
	e.Size = int64(len(body))
	return e, true
}

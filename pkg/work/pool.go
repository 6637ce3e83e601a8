package work

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Workers resolves a worker count the way assess does: an explicit
// concurrency wins, otherwise a percentage of CPU cores (default 50%).
func Workers(concurrency, percent int) int {
	if concurrency > 0 {
		return concurrency
	}
	if percent <= 0 || percent > 100 {
		percent = 50
	}
	n := (runtime.NumCPU() * percent) / 100
	if n < 1 {
		n = 1
	}
	return n
}

// Map applies fn to every item using at most workers goroutines. Results are
// written into index-addressed slots, so the returned slice is in input order
// no matter how the work was scheduled. The first error cancels the group.
func Map[T, R any](ctx context.Context, items []T, workers int, fn func(ctx context.Context, i int, item T) (R, error)) ([]R, error) {
	out := make([]R, len(items))
	if len(items) == 0 {
		return out, nil
	}
	if workers <= 0 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := fn(gctx, i, item)
			if err != nil {
				return err
			}
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Each is Map for functions without a result.
func Each[T any](ctx context.Context, items []T, workers int, fn func(ctx context.Context, i int, item T) error) error {
	_, err := Map(ctx, items, workers, func(ctx context.Context, i int, item T) (struct{}, error) {
		return struct{}{}, fn(ctx, i, item)
	})
	return err
}

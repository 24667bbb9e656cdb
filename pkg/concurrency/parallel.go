package concurrency

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ForEachChunk splits [0, n) into contiguous chunks of at least minChunk
// items and calls fn for each. Chunks beyond the first run on extra
// goroutines only while the limiter has free slots; otherwise they run on
// the calling goroutine. It returns after every chunk has finished, with the
// first error.
func ForEachChunk(ctx context.Context, l *Limiter, n, minChunk int, fn func(ctx context.Context, lo, hi int) error) error {
	if n <= 0 {
		return nil
	}
	if minChunk < 1 {
		minChunk = 1
	}

	chunks := 1
	if l != nil {
		chunks = min(l.Capacity(), (n+minChunk-1)/minChunk)
	}
	if chunks <= 1 {
		return fn(ctx, 0, n)
	}

	g, gctx := errgroup.WithContext(ctx)
	size := (n + chunks - 1) / chunks
	for lo := 0; lo < n; lo += size {
		lo, hi := lo, min(lo+size, n)
		if gctx.Err() != nil {
			break
		}
		if l.TryAcquire() {
			g.Go(func() error {
				defer l.Release()
				return fn(gctx, lo, hi)
			})
			continue
		}
		if err := fn(gctx, lo, hi); err != nil {
			_ = g.Wait()
			return err
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

package blob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
)

// Adapter drives chunked uploads and downloads against a Transport.
type Adapter struct {
	t    Transport
	opts Options

	newBackOff func() backoff.BackOff
	sleep      func(ctx context.Context, d time.Duration) error
}

// New wraps t.
func New(t Transport, opts Options) *Adapter {
	opts = opts.withDefaults()
	a := &Adapter{t: t, opts: opts, sleep: sleepCtx}
	a.newBackOff = func() backoff.BackOff { return newExponential(opts.InitialBackoff, opts.MaxBackoff) }
	return a
}

// ChunkSize reports the configured chunk size.
func (a *Adapter) ChunkSize() int { return a.opts.ChunkSize }

// ChunkCount returns how many chunks an object of n bytes occupies.
// Empty objects still occupy one chunk.
func ChunkCount(n, chunkSize int) int {
	if n <= 0 {
		return 1
	}
	return (n + chunkSize - 1) / chunkSize
}

// Put uploads data and returns its locator. Chunks are uploaded in
// order. If any chunk fails, chunks already stored are deleted on a
// best-effort basis and no locator is returned.
func (a *Adapter) Put(ctx context.Context, data []byte) (Locator, error) {
	size := a.opts.ChunkSize
	n := ChunkCount(len(data), size)
	handles := make([]Handle, 0, n)

	for i := 0; i < n; i++ {
		start := i * size
		end := min(start+size, len(data))
		part := data[start:end]

		var h Handle
		err := a.retry(ctx, "upload", func(ctx context.Context) error {
			var err error
			h, err = a.t.UploadChunk(ctx, part)
			return err
		})
		if err != nil {
			a.discard(ctx, handles)
			return Locator{}, fmt.Errorf("upload chunk %d/%d: %w", i+1, n, err)
		}
		handles = append(handles, h)
	}

	return Locator{Chunks: handles, Length: int64(len(data))}, nil
}

// Get downloads every chunk of loc, at most FetchConcurrency at a time,
// and returns them concatenated in locator order.
func (a *Adapter) Get(ctx context.Context, loc Locator) ([]byte, error) {
	parts := make([][]byte, len(loc.Chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.FetchConcurrency)
	for i, h := range loc.Chunks {
		g.Go(func() error {
			return a.retry(gctx, "download", func(ctx context.Context) error {
				b, err := a.t.DownloadChunk(ctx, h)
				if err != nil {
					return err
				}
				parts[i] = b
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total int64
	for _, p := range parts {
		total += int64(len(p))
	}
	if total != loc.Length {
		return nil, &TruncatedError{Want: loc.Length, Got: total}
	}

	out := make([]byte, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out, nil
}

// Delete removes every chunk of loc. Chunks already gone are ignored.
func (a *Adapter) Delete(ctx context.Context, loc Locator) error {
	var errs []error
	for i, h := range loc.Chunks {
		err := a.retry(ctx, "delete", func(ctx context.Context) error {
			return a.t.DeleteChunk(ctx, h)
		})
		if err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, fmt.Errorf("delete chunk %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// discard deletes orphaned chunks after a failed Put. It runs detached
// from ctx so a cancelled request still cleans up.
func (a *Adapter) discard(ctx context.Context, handles []Handle) {
	if len(handles) == 0 {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.opts.CleanupTimeout)
	defer cancel()
	for _, h := range handles {
		_ = a.t.DeleteChunk(cctx, h)
	}
}

// Package blob stores opaque byte strings on a remote that only accepts
// bounded uploads and fails intermittently.
//
// Objects are split into fixed-size chunks, each uploaded as its own
// remote item. Transient failures are retried per chunk with
// exponential backoff. A Locator lists the chunk handles in order and
// is the only way to find the object again.
package blob

import (
	"context"
	"time"
)

// Handle identifies one stored chunk. ID is the backend's identifier;
// Msg is an auxiliary numeric id some backends need for deletion.
type Handle struct {
	ID  string
	Msg int64
}

// Locator addresses a stored object: its chunks in order and the total
// number of bytes they hold.
type Locator struct {
	Chunks []Handle
	Length int64
}

// Transport is implemented by storage backends. Implementations
// classify their failures with Transient, Permanent and NotFound so the
// adapter knows what to retry.
type Transport interface {
	UploadChunk(ctx context.Context, data []byte) (Handle, error)
	DownloadChunk(ctx context.Context, h Handle) ([]byte, error)
	DeleteChunk(ctx context.Context, h Handle) error
}

const (
	DefaultChunkSize        = 19 << 20
	DefaultMaxAttempts      = 4
	DefaultInitialBackoff   = 500 * time.Millisecond
	DefaultMaxBackoff       = 10 * time.Second
	DefaultFetchConcurrency = 4
	DefaultCleanupTimeout   = 30 * time.Second
)

// Options tunes an Adapter. Zero values select the defaults above.
type Options struct {
	ChunkSize        int
	MaxAttempts      int
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	FetchConcurrency int
	CleanupTimeout   time.Duration

	// OnRetry, if set, is called before each retry sleep.
	OnRetry func(op string, attempt int, err error)
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = DefaultInitialBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = DefaultMaxBackoff
	}
	if o.MaxBackoff < o.InitialBackoff {
		o.MaxBackoff = o.InitialBackoff
	}
	if o.FetchConcurrency <= 0 {
		o.FetchConcurrency = DefaultFetchConcurrency
	}
	if o.CleanupTimeout <= 0 {
		o.CleanupTimeout = DefaultCleanupTimeout
	}
	return o
}

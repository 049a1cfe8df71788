// Package ratelimit enforces per-client request budgets with token
// buckets.
//
// Each client key owns a bucket of at most Capacity tokens refilled at
// RefillRate tokens per second. Buckets are created on first use,
// refilled lazily on access, and evicted once idle for StaleAfter. The
// bucket table is split into shards, each with its own lock, so
// requests for different keys rarely contend.
package ratelimit

import (
	"errors"
	"fmt"
	"hash/maphash"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// ErrRateLimited reports a request rejected for lack of tokens.
var ErrRateLimited = errors.New("rate limited")

// LimitedError carries how long the client should wait.
type LimitedError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *LimitedError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited, e.RetryAfter)
}

func (e *LimitedError) Is(target error) bool { return target == ErrRateLimited }

const (
	DefaultShards     = 32
	DefaultStaleAfter = 5 * time.Minute
	DefaultSweepEvery = time.Minute
)

type Config struct {
	// Capacity is the bucket size, i.e. the largest burst a client may send.
	Capacity float64
	// RefillRate is tokens added per second.
	RefillRate float64
	// StaleAfter is how long a bucket may sit untouched before eviction.
	// Values below the full-refill time Capacity/RefillRate are raised to
	// it, since an evicted bucket is recreated full.
	StaleAfter time.Duration
	// SweepEvery bounds how often an access triggers an eviction sweep.
	SweepEvery time.Duration
	Shards     int
}

// PerMinute returns a config admitting n requests per minute with a
// burst of n.
func PerMinute(n int) Config {
	return Config{Capacity: float64(n), RefillRate: float64(n) / 60}
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Remaining  float64
	RetryAfter time.Duration
}

type bucket struct {
	tokens float64
	last   time.Time
}

type shard struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// Limiter is safe for concurrent use.
type Limiter struct {
	cfg    Config
	now    func() time.Time
	seed   maphash.Seed
	shards []shard

	lastSweep atomic.Int64
}

// New builds a limiter. A nil now uses time.Now.
func New(cfg Config, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	if cfg.Shards <= 0 {
		cfg.Shards = DefaultShards
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = DefaultSweepEvery
	}
	if cfg.RefillRate > 0 {
		full := time.Duration(math.MaxInt64)
		if ns := math.Ceil(cfg.Capacity / cfg.RefillRate * float64(time.Second)); ns < float64(math.MaxInt64) {
			full = time.Duration(ns)
		}
		if cfg.StaleAfter < full {
			cfg.StaleAfter = full
		}
	}

	l := &Limiter{
		cfg:    cfg,
		now:    now,
		seed:   maphash.MakeSeed(),
		shards: make([]shard, cfg.Shards),
	}
	for i := range l.shards {
		l.shards[i].buckets = make(map[string]*bucket)
	}
	l.lastSweep.Store(now().UnixNano())
	return l
}

// Config returns the effective configuration.
func (l *Limiter) Config() Config { return l.cfg }

// Allow consumes one token for key if one is available.
func (l *Limiter) Allow(key string) bool {
	return l.Check(key).Allowed
}

// Admit is Allow returning a *LimitedError on rejection.
func (l *Limiter) Admit(key string) error {
	d := l.Check(key)
	if d.Allowed {
		return nil
	}
	return &LimitedError{Key: key, RetryAfter: d.RetryAfter}
}

// Check refills key's bucket and consumes one token if possible. A
// rejected request consumes nothing.
func (l *Limiter) Check(key string) Decision {
	if l.cfg.Capacity <= 0 {
		return Decision{Allowed: false, RetryAfter: time.Duration(math.MaxInt64)}
	}

	now := l.now()
	l.maybeSweep(now)

	s := l.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{tokens: l.cfg.Capacity, last: now}
		s.buckets[key] = b
	}

	if elapsed := now.Sub(b.last); elapsed > 0 {
		b.tokens = math.Min(l.cfg.Capacity, b.tokens+elapsed.Seconds()*l.cfg.RefillRate)
		b.last = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return Decision{Allowed: true, Remaining: b.tokens}
	}

	return Decision{Allowed: false, Remaining: b.tokens, RetryAfter: l.waitFor(b.tokens)}
}

func (l *Limiter) waitFor(tokens float64) time.Duration {
	if l.cfg.RefillRate <= 0 {
		return time.Duration(math.MaxInt64)
	}
	wait := (1 - tokens) / l.cfg.RefillRate
	return time.Duration(math.Ceil(wait*1000)) * time.Millisecond
}

// Sweep removes buckets idle for longer than StaleAfter and returns how
// many were removed.
func (l *Limiter) Sweep() int {
	return l.sweep(l.now())
}

// Len reports the number of live buckets.
func (l *Limiter) Len() int {
	n := 0
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.Lock()
		n += len(s.buckets)
		s.mu.Unlock()
	}
	return n
}

func (l *Limiter) maybeSweep(now time.Time) {
	last := l.lastSweep.Load()
	if now.UnixNano()-last < int64(l.cfg.SweepEvery) {
		return
	}
	// Only the caller that wins the swap sweeps.
	if !l.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	l.sweep(now)
}

func (l *Limiter) sweep(now time.Time) int {
	removed := 0
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.Lock()
		for key, b := range s.buckets {
			if now.Sub(b.last) > l.cfg.StaleAfter {
				delete(s.buckets, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

func (l *Limiter) shardFor(key string) *shard {
	h := maphash.String(l.seed, key)
	return &l.shards[h%uint64(len(l.shards))]
}

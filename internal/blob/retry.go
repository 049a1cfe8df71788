package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
)

func newExponential(initial, maxInterval time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = maxInterval
	// Attempts are bounded by retry, not elapsed time.
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// retry runs fn until it succeeds, fails with a non-retryable error, or
// MaxAttempts is reached. A RetryAfter hint longer than the computed
// backoff replaces it.
func (a *Adapter) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	bo := backoff.WithMaxRetries(a.newBackOff(), uint64(a.opts.MaxAttempts-1))

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !Retryable(err) {
			return err
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return exhausted(op, attempt, err)
		}
		if hint := retryAfter(err); hint > wait {
			wait = hint
		}

		if a.opts.OnRetry != nil {
			a.opts.OnRetry(op, attempt, err)
		}
		if err := a.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Retryable reports whether err is worth another attempt: errors the
// backend marked transient, network timeouts and dropped connections.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	if errors.Is(err, ErrPermanent) || errors.Is(err, ErrNotFound) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE)
}

func retryAfter(err error) time.Duration {
	var te *TransportError
	if errors.As(err, &te) {
		return te.RetryAfter
	}
	return 0
}

func exhausted(op string, attempts int, err error) error {
	if !errors.Is(err, ErrTransient) {
		err = Transient(op, err, 0)
	}
	return fmt.Errorf("%s: gave up after %d attempts: %w", op, attempts, err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

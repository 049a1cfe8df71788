package blob

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTransient marks a remote failure worth retrying.
	ErrTransient = errors.New("transient transport failure")
	// ErrPermanent marks a remote failure that will not succeed on retry.
	ErrPermanent = errors.New("permanent transport failure")
	// ErrNotFound reports a chunk the remote does not have.
	ErrNotFound = errors.New("chunk not found")
	// ErrTruncated reports a reassembled object whose length does not
	// match its locator.
	ErrTruncated = errors.New("object truncated")
)

// TransportError is returned by backends. Kind is one of ErrTransient,
// ErrPermanent or ErrNotFound.
type TransportError struct {
	Op         string
	Kind       error
	RetryAfter time.Duration
	Err        error
}

func (e *TransportError) Error() string {
	msg := e.Op + ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %s)", e.RetryAfter)
	}
	return msg
}

func (e *TransportError) Is(target error) bool { return target == e.Kind }

func (e *TransportError) Unwrap() error { return e.Err }

// Transient wraps err as retryable. retryAfter is the remote's hint, or 0.
func Transient(op string, err error, retryAfter time.Duration) error {
	return &TransportError{Op: op, Kind: ErrTransient, RetryAfter: retryAfter, Err: err}
}

// Permanent wraps err as not retryable.
func Permanent(op string, err error) error {
	return &TransportError{Op: op, Kind: ErrPermanent, Err: err}
}

// NotFound reports a missing chunk.
func NotFound(op string, err error) error {
	return &TransportError{Op: op, Kind: ErrNotFound, Err: err}
}

// TruncatedError carries the expected and observed lengths.
type TruncatedError struct {
	Want int64
	Got  int64
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("%s: want %d bytes, got %d", ErrTruncated, e.Want, e.Got)
}

func (e *TruncatedError) Is(target error) bool { return target == ErrTruncated }

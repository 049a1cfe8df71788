package publicid

import (
	"errors"
	"fmt"
)

// ErrMalformedID reports an identifier that cannot be decoded. Callers
// see it before any remote call is attempted.
var ErrMalformedID = errors.New("malformed public id")

// MalformedError names what was wrong with a rejected identifier.
type MalformedError struct {
	Reason string
	Err    error
}

func (e *MalformedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrMalformedID, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrMalformedID, e.Reason)
}

func (e *MalformedError) Is(target error) bool { return target == ErrMalformedID }

func (e *MalformedError) Unwrap() error { return e.Err }

func malformed(reason string, err error) error {
	return &MalformedError{Reason: reason, Err: err}
}

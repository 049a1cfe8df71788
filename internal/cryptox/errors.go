package cryptox

import (
	"errors"
	"fmt"
)

var (
	// ErrIntegrity reports that a payload failed authentication. No
	// plaintext is ever returned alongside it.
	ErrIntegrity = errors.New("payload failed integrity check")

	// ErrUnsupportedVersion reports a cipher version tag this process
	// does not implement.
	ErrUnsupportedVersion = errors.New("unsupported cipher version")

	// ErrInvalidKey reports a key of the wrong length.
	ErrInvalidKey = errors.New("invalid encryption key")
)

// VersionError carries the offending version tag.
type VersionError struct {
	Version Version
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("cipher version %d: %s", e.Version, ErrUnsupportedVersion)
}

func (e *VersionError) Is(target error) bool { return target == ErrUnsupportedVersion }

package images

import "errors"

// ErrInvalidInput reports an upload the service refuses to store.
var ErrInvalidInput = errors.New("invalid input")

// ErrTooLarge reports an object that needs more chunks than one public
// id can name.
var ErrTooLarge = errors.New("object too large")

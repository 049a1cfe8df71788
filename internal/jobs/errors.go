package jobs

import "errors"

var (
	ErrNotFound  = errors.New("job not found")
	ErrQueueFull = errors.New("upload queue full")
	// ErrShuttingDown fails jobs still queued when the workers stop.
	ErrShuttingDown = errors.New("server shutting down")
)

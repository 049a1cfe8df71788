package images

import "time"

// Info is the metadata recoverable from a public id without fetching
// the object.
type Info struct {
	ID          string
	ContentType string
	Size        int64
	Chunks      int
	CreatedAt   time.Time
}

// Object is a decrypted object with its metadata.
type Object struct {
	Info
	Data []byte
}

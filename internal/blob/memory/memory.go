// Package memory is an in-process chunk backend for tests and local
// development.
package memory

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"image-vault/internal/blob"
)

// Store keeps chunks in a map. Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	chunks map[string][]byte
	seq    int64
}

func New() *Store {
	return &Store{chunks: make(map[string][]byte)}
}

func (s *Store) UploadChunk(ctx context.Context, data []byte) (blob.Handle, error) {
	if err := ctx.Err(); err != nil {
		return blob.Handle{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	id := "mem-" + strconv.FormatInt(s.seq, 10)
	s.chunks[id] = append([]byte(nil), data...)
	return blob.Handle{ID: id, Msg: s.seq}, nil
}

func (s *Store) DownloadChunk(ctx context.Context, h blob.Handle) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.chunks[h.ID]
	if !ok {
		return nil, blob.NotFound("download", errors.New(h.ID))
	}
	return append([]byte(nil), data...), nil
}

func (s *Store) DeleteChunk(ctx context.Context, h blob.Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chunks[h.ID]; !ok {
		return blob.NotFound("delete", errors.New(h.ID))
	}
	delete(s.chunks, h.ID)
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Len reports the number of stored chunks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Package local stores chunks as files under a base directory.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"image-vault/internal/blob"
)

// Store implements blob.Transport on the local filesystem.
type Store struct {
	baseDir string
}

func New(baseDir string) (*Store, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("local store dir is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

func (s *Store) UploadChunk(ctx context.Context, data []byte) (blob.Handle, error) {
	if err := ctx.Err(); err != nil {
		return blob.Handle{}, err
	}

	id := uuid.NewString()
	key := filepath.Join(id[:2], id+".bin")
	fullPath := filepath.Join(s.baseDir, key)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return blob.Handle{}, blob.Permanent("upload", fmt.Errorf("mkdir: %w", err))
	}

	// Write to a temp name first so readers never see a partial chunk.
	tmp := fullPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		_ = os.Remove(tmp)
		return blob.Handle{}, blob.Permanent("upload", fmt.Errorf("write chunk: %w", err))
	}
	if err := os.Rename(tmp, fullPath); err != nil {
		_ = os.Remove(tmp)
		return blob.Handle{}, blob.Permanent("upload", fmt.Errorf("rename chunk: %w", err))
	}
	return blob.Handle{ID: filepath.ToSlash(key)}, nil
}

func (s *Store) DownloadChunk(ctx context.Context, h blob.Handle) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := s.resolve(h.ID)
	if err != nil {
		return nil, blob.NotFound("download", err)
	}
	data, err := os.ReadFile(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, blob.NotFound("download", err)
	}
	if err != nil {
		return nil, blob.Permanent("download", err)
	}
	return data, nil
}

func (s *Store) DeleteChunk(ctx context.Context, h blob.Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := s.resolve(h.ID)
	if err != nil {
		return blob.NotFound("delete", err)
	}
	err = os.Remove(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return blob.NotFound("delete", err)
	}
	if err != nil {
		return blob.Permanent("delete", err)
	}
	return nil
}

// Ping checks that the base directory is still there.
func (s *Store) Ping(context.Context) error {
	info, err := os.Stat(s.baseDir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.baseDir)
	}
	return nil
}

func (s *Store) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid storage key")
	}
	return filepath.Join(s.baseDir, clean), nil
}

var _ blob.Transport = (*Store)(nil)

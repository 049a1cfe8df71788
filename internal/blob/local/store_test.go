package local

import (
	"context"
	"errors"
	"testing"

	"image-vault/internal/blob"
)

func TestStoreRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	h, err := s.UploadChunk(ctx, []byte("sealed bytes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	got, err := s.DownloadChunk(ctx, h)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if string(got) != "sealed bytes" {
		t.Fatalf("got %q", got)
	}

	if err := s.DeleteChunk(ctx, h); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.DownloadChunk(ctx, h); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := s.DeleteChunk(ctx, h); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestStoreRejectsTraversal(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	for _, key := range []string{"", "../etc/passwd", "/etc/passwd", "a/../../b"} {
		if _, err := s.DownloadChunk(context.Background(), blob.Handle{ID: key}); !errors.Is(err, blob.ErrNotFound) {
			t.Fatalf("key %q: expected not found, got %v", key, err)
		}
	}
}

func TestPing(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

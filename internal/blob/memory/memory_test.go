package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"image-vault/internal/blob"
)

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	h, err := s.UploadChunk(ctx, []byte("chunk"))
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())

	got, err := s.DownloadChunk(ctx, h)
	require.NoError(t, err)
	require.Equal(t, []byte("chunk"), got)

	require.NoError(t, s.DeleteChunk(ctx, h))
	require.Zero(t, s.Len())

	_, err = s.DownloadChunk(ctx, h)
	require.ErrorIs(t, err, blob.ErrNotFound)
	require.ErrorIs(t, s.DeleteChunk(ctx, h), blob.ErrNotFound)
}

func TestUploadCopiesInput(t *testing.T) {
	ctx := context.Background()
	s := New()

	buf := []byte("abc")
	h, err := s.UploadChunk(ctx, buf)
	require.NoError(t, err)
	buf[0] = 'z'

	got, err := s.DownloadChunk(ctx, h)
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), got)
}

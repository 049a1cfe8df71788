package images

import (
	"context"
	"fmt"
	"strings"
	"time"

	"image-vault/internal/blob"
	"image-vault/internal/cryptox"
	"image-vault/internal/publicid"
	"image-vault/internal/shared/codec"
)

// Cipher is implemented by *cryptox.Codec.
type Cipher interface {
	Encrypt(plaintext, aad []byte) (cryptox.Payload, error)
	Decrypt(p cryptox.Payload, aad []byte) ([]byte, error)
	Supports(v cryptox.Version) bool
}

// BlobStore is implemented by *blob.Adapter.
type BlobStore interface {
	Put(ctx context.Context, data []byte) (blob.Locator, error)
	Get(ctx context.Context, loc blob.Locator) ([]byte, error)
	Delete(ctx context.Context, loc blob.Locator) error
	ChunkSize() int
}

// Service encrypts objects, stores them remotely and hands out public
// ids. It keeps no state of its own; the id is the only record of an
// object.
//
// Content type, size and creation time travel inside the id in the
// clear and are bound to the ciphertext as associated data, so GetInfo
// needs no remote call while any edit to them fails decryption.
type Service struct {
	Cipher Cipher
	Blobs  BlobStore
	Now    func() time.Time
}

// PutObject stores payload and returns its public id. No id is returned
// unless the object is fully stored.
func (s *Service) PutObject(ctx context.Context, payload []byte, contentType string) (string, error) {
	if contentType == "" || len(contentType) > publicid.MaxContentTypeLen {
		return "", fmt.Errorf("%w: content type must be 1-%d bytes", ErrInvalidInput, publicid.MaxContentTypeLen)
	}
	if strings.TrimSpace(contentType) != contentType {
		return "", fmt.Errorf("%w: content type has surrounding whitespace", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	created := s.now().Truncate(time.Second)
	size := int64(len(payload))

	aad, err := associatedData(contentType, size, created)
	if err != nil {
		return "", err
	}
	sealed, err := s.Cipher.Encrypt(payload, aad)
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}
	if n := blob.ChunkCount(len(sealed.Ciphertext), s.Blobs.ChunkSize()); n > publicid.MaxChunks {
		return "", fmt.Errorf("%w: %d bytes need %d chunks, at most %d allowed", ErrTooLarge, size, n, publicid.MaxChunks)
	}

	loc, err := s.Blobs.Put(ctx, sealed.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("store: %w", err)
	}

	id, err := publicid.Encode(publicid.Reference{
		Cipher:      sealed.Version,
		Nonce:       sealed.Nonce,
		Locator:     loc,
		ContentType: contentType,
		Size:        size,
		CreatedAt:   created,
	})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.discard(ctx, loc)
		return "", err
	}
	return id, nil
}

// GetObject fetches and decrypts the object named by id.
func (s *Service) GetObject(ctx context.Context, id string) (Object, error) {
	ref, err := publicid.Decode(id)
	if err != nil {
		return Object{}, err
	}
	if !s.Cipher.Supports(ref.Cipher) {
		return Object{}, &cryptox.VersionError{Version: ref.Cipher}
	}

	ciphertext, err := s.Blobs.Get(ctx, ref.Locator)
	if err != nil {
		return Object{}, fmt.Errorf("fetch: %w", err)
	}

	aad, err := associatedData(ref.ContentType, ref.Size, ref.CreatedAt)
	if err != nil {
		return Object{}, err
	}
	plaintext, err := s.Cipher.Decrypt(cryptox.Payload{
		Version:    ref.Cipher,
		Nonce:      ref.Nonce,
		Ciphertext: ciphertext,
	}, aad)
	if err != nil {
		return Object{}, err
	}
	if int64(len(plaintext)) != ref.Size {
		return Object{}, fmt.Errorf("%w: decrypted %d bytes, id says %d", cryptox.ErrIntegrity, len(plaintext), ref.Size)
	}

	return Object{Info: infoFor(id, ref), Data: plaintext}, nil
}

// GetInfo returns the metadata carried by id without any remote call.
func (s *Service) GetInfo(_ context.Context, id string) (Info, error) {
	ref, err := publicid.Decode(id)
	if err != nil {
		return Info{}, err
	}
	return infoFor(id, ref), nil
}

// DeleteObject removes the remote chunks of id. Later reads fail with
// blob.ErrNotFound.
func (s *Service) DeleteObject(ctx context.Context, id string) error {
	ref, err := publicid.Decode(id)
	if err != nil {
		return err
	}
	return s.Blobs.Delete(ctx, ref.Locator)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// discard removes chunks that were stored for an upload that will not
// return an id.
func (s *Service) discard(ctx context.Context, loc blob.Locator) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), blob.DefaultCleanupTimeout)
	defer cancel()
	_ = s.Blobs.Delete(cctx, loc)
}

type aadFields struct {
	_           struct{} `cbor:",toarray"`
	ContentType string
	Size        int64
	Created     int64
}

func associatedData(contentType string, size int64, created time.Time) ([]byte, error) {
	aad, err := codec.Marshal(aadFields{ContentType: contentType, Size: size, Created: created.Unix()})
	if err != nil {
		return nil, fmt.Errorf("encode associated data: %w", err)
	}
	return aad, nil
}

func infoFor(id string, ref publicid.Reference) Info {
	return Info{
		ID:          id,
		ContentType: ref.ContentType,
		Size:        ref.Size,
		Chunks:      len(ref.Locator.Chunks),
		CreatedAt:   ref.CreatedAt,
	}
}

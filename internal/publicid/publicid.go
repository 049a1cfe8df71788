// Package publicid converts object references to and from the opaque
// identifiers handed to clients.
//
// An identifier is self-contained: it carries everything needed to
// fetch and decrypt the object, so no lookup table exists anywhere.
//
//	id = base64url( 0x01 || CBOR([cipher, nonce, size, type, created, length, chunks]) )
//
// The CBOR body uses Core Deterministic Encoding, so equal references
// always produce equal identifiers.
package publicid

import (
	"encoding/base64"
	"fmt"
	"time"

	"image-vault/internal/blob"
	"image-vault/internal/cryptox"
	"image-vault/internal/shared/codec"
)

const (
	formatV1 byte = 0x01

	// MaxLength bounds the identifier string before any decoding work.
	MaxLength = 8192
	// MaxChunks bounds the number of remote handles one identifier may name.
	MaxChunks = 64
	// MaxContentTypeLen bounds the stored content type.
	MaxContentTypeLen = 255
)

// Reference is the decoded form of a public identifier.
type Reference struct {
	Cipher      cryptox.Version
	Nonce       []byte
	Locator     blob.Locator
	ContentType string
	Size        int64
	CreatedAt   time.Time
}

type wireHandle struct {
	_   struct{} `cbor:",toarray"`
	ID  string
	Msg int64
}

type wireRef struct {
	_           struct{} `cbor:",toarray"`
	Cipher      uint8
	Nonce       []byte
	Size        int64
	ContentType string
	Created     int64
	Length      int64
	Chunks      []wireHandle
}

// Encode serializes ref. CreatedAt is kept at second precision.
func Encode(ref Reference) (string, error) {
	if err := validate(ref); err != nil {
		return "", err
	}

	w := wireRef{
		Cipher:      uint8(ref.Cipher),
		Nonce:       ref.Nonce,
		Size:        ref.Size,
		ContentType: ref.ContentType,
		Created:     ref.CreatedAt.Unix(),
		Length:      ref.Locator.Length,
		Chunks:      make([]wireHandle, len(ref.Locator.Chunks)),
	}
	for i, h := range ref.Locator.Chunks {
		w.Chunks[i] = wireHandle{ID: h.ID, Msg: h.Msg}
	}

	body, err := codec.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("encode public id: %w", err)
	}

	raw := make([]byte, 0, 1+len(body))
	raw = append(raw, formatV1)
	raw = append(raw, body...)

	id := base64.RawURLEncoding.EncodeToString(raw)
	if len(id) > MaxLength {
		return "", malformed(fmt.Sprintf("encoded length %d exceeds %d", len(id), MaxLength), nil)
	}
	return id, nil
}

// Decode parses id. Every failure matches ErrMalformedID.
func Decode(id string) (Reference, error) {
	if id == "" {
		return Reference{}, malformed("empty", nil)
	}
	if len(id) > MaxLength {
		return Reference{}, malformed("too long", nil)
	}

	raw, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil {
		return Reference{}, malformed("invalid base64url", err)
	}
	if len(raw) < 2 {
		return Reference{}, malformed("truncated header", nil)
	}
	if raw[0] != formatV1 {
		return Reference{}, malformed(fmt.Sprintf("unknown format 0x%02x", raw[0]), nil)
	}

	var w wireRef
	if err := codec.Unmarshal(raw[1:], &w); err != nil {
		return Reference{}, malformed("invalid body", err)
	}

	ref := Reference{
		Cipher:      cryptox.Version(w.Cipher),
		Nonce:       w.Nonce,
		ContentType: w.ContentType,
		Size:        w.Size,
		CreatedAt:   time.Unix(w.Created, 0).UTC(),
		Locator: blob.Locator{
			Length: w.Length,
			Chunks: make([]blob.Handle, len(w.Chunks)),
		},
	}
	for i, h := range w.Chunks {
		ref.Locator.Chunks[i] = blob.Handle{ID: h.ID, Msg: h.Msg}
	}

	if err := validate(ref); err != nil {
		return Reference{}, err
	}
	return ref, nil
}

func validate(ref Reference) error {
	switch n := len(ref.Locator.Chunks); {
	case n == 0:
		return malformed("no chunks", nil)
	case n > MaxChunks:
		return malformed(fmt.Sprintf("%d chunks exceeds %d", n, MaxChunks), nil)
	}
	for i, h := range ref.Locator.Chunks {
		if h.ID == "" {
			return malformed(fmt.Sprintf("chunk %d has empty handle", i), nil)
		}
		if h.Msg < 0 {
			return malformed(fmt.Sprintf("chunk %d has negative message id", i), nil)
		}
	}
	if ref.Size < 0 || ref.Locator.Length < 0 {
		return malformed("negative size", nil)
	}
	want := ref.Cipher.NonceSize()
	if want == 0 {
		return malformed(fmt.Sprintf("unknown cipher version %d", ref.Cipher), nil)
	}
	if n := len(ref.Nonce); n != want {
		return malformed(fmt.Sprintf("nonce length %d, %s needs %d", n, ref.Cipher, want), nil)
	}
	if ref.ContentType == "" || len(ref.ContentType) > MaxContentTypeLen {
		return malformed("content type length", nil)
	}
	return nil
}

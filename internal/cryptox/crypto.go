// Package cryptox implements authenticated encryption of object payloads.
//
// Every payload carries the version tag of the scheme that sealed it, so
// new schemes can be introduced while older payloads stay readable:
//
//	V1  AES-256-GCM,          12-byte random nonce
//	V2  XChaCha20-Poly1305,   24-byte random nonce
//
// Each scheme uses its own subkey, derived from the process key with
// HKDF-SHA256 and a scheme-specific info string.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of the process key and of every derived subkey.
const KeySize = 32

// Overhead is the number of bytes every scheme adds to a plaintext.
const Overhead = 16

// Version tags a cipher scheme. Values are persisted inside public
// identifiers and must never be renumbered.
type Version byte

const (
	V1 Version = 1
	V2 Version = 2
)

// DefaultVersion is used by Encrypt unless WithVersion says otherwise.
const DefaultVersion = V1

var hkdfInfo = map[Version][]byte{
	V1: []byte("image-vault.payload.aes256gcm.v1"),
	V2: []byte("image-vault.payload.xchacha20poly1305.v2"),
}

// Payload is a sealed object. Ciphertext includes the authentication tag.
type Payload struct {
	Version    Version
	Nonce      []byte
	Ciphertext []byte
}

// Codec seals and opens payloads under a single process key. It holds
// no mutable state and is safe for concurrent use.
type Codec struct {
	current Version
	aeads   map[Version]cipher.AEAD
}

// Option configures a Codec.
type Option func(*Codec)

// WithVersion selects the scheme used by Encrypt.
func WithVersion(v Version) Option {
	return func(c *Codec) { c.current = v }
}

// New builds a codec from a 32-byte key.
func New(key []byte, opts ...Option) (*Codec, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKey, len(key), KeySize)
	}

	c := &Codec{current: DefaultVersion, aeads: make(map[Version]cipher.AEAD, len(hkdfInfo))}
	for _, opt := range opts {
		opt(c)
	}

	for v, info := range hkdfInfo {
		subkey, err := deriveKey(key, info)
		if err != nil {
			return nil, err
		}
		aead, err := newAEAD(v, subkey)
		if err != nil {
			return nil, err
		}
		c.aeads[v] = aead
	}

	if !c.Supports(c.current) {
		return nil, &VersionError{Version: c.current}
	}
	return c, nil
}

// Version reports the scheme used by Encrypt.
func (c *Codec) Version() Version { return c.current }

// Supports reports whether payloads tagged v can be decrypted.
func (c *Codec) Supports(v Version) bool {
	_, ok := c.aeads[v]
	return ok
}

// NonceSize returns the nonce length of scheme v, or 0 if v is unknown.
func (c *Codec) NonceSize(v Version) int {
	aead, ok := c.aeads[v]
	if !ok {
		return 0
	}
	return aead.NonceSize()
}

// Encrypt seals plaintext with a fresh random nonce. aad is
// authenticated but not encrypted; the same aad must be supplied to
// Decrypt.
func (c *Codec) Encrypt(plaintext, aad []byte) (Payload, error) {
	aead := c.aeads[c.current]

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return Payload{}, fmt.Errorf("generate nonce: %w", err)
	}

	return Payload{
		Version:    c.current,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, plaintext, versionedAAD(c.current, aad)),
	}, nil
}

// Decrypt opens p. It fails with ErrUnsupportedVersion for unknown
// version tags and with ErrIntegrity for anything that does not
// authenticate, including a nonce of the wrong length.
func (c *Codec) Decrypt(p Payload, aad []byte) ([]byte, error) {
	aead, ok := c.aeads[p.Version]
	if !ok {
		return nil, &VersionError{Version: p.Version}
	}
	if len(p.Nonce) != aead.NonceSize() || len(p.Ciphertext) < aead.Overhead() {
		return nil, ErrIntegrity
	}

	plaintext, err := aead.Open(nil, p.Nonce, p.Ciphertext, versionedAAD(p.Version, aad))
	if err != nil {
		return nil, ErrIntegrity
	}
	return plaintext, nil
}

// GenerateKey returns a new random process key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

func deriveKey(master, info []byte) ([]byte, error) {
	out := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, info), out); err != nil {
		return nil, fmt.Errorf("derive subkey: %w", err)
	}
	return out, nil
}

func newAEAD(v Version, key []byte) (cipher.AEAD, error) {
	switch v {
	case V1:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("aes cipher: %w", err)
		}
		return cipher.NewGCM(block)
	case V2:
		return chacha20poly1305.NewX(key)
	default:
		return nil, &VersionError{Version: v}
	}
}

// The version tag is authenticated so a payload cannot be replayed
// under a different scheme.
func versionedAAD(v Version, aad []byte) []byte {
	out := make([]byte, 0, 1+len(aad))
	out = append(out, byte(v))
	return append(out, aad...)
}

// NonceSize returns the nonce length scheme v requires, or 0 if v is
// not a known scheme.
func (v Version) NonceSize() int {
	switch v {
	case V1:
		return 12
	case V2:
		return chacha20poly1305.NonceSizeX
	default:
		return 0
	}
}

func (v Version) String() string {
	switch v {
	case V1:
		return "aes256gcm-v1"
	case V2:
		return "xchacha20poly1305-v2"
	default:
		return fmt.Sprintf("unknown-v%d", byte(v))
	}
}

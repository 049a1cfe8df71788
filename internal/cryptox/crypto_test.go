package cryptox

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	return bytes.Repeat([]byte{0x42}, KeySize)
}

func TestNewRejectsShortKey(t *testing.T) {
	_, err := New([]byte("short"))
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestNewRejectsUnknownVersion(t *testing.T) {
	_, err := New(testKey(t), WithVersion(9))
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestRoundTripAllVersions(t *testing.T) {
	t.Parallel()

	for _, v := range []Version{V1, V2} {
		v := v
		t.Run(v.String(), func(t *testing.T) {
			t.Parallel()

			c, err := New(testKey(t), WithVersion(v))
			require.NoError(t, err)

			plaintext := []byte("hello world")
			aad := []byte("image/png")

			p, err := c.Encrypt(plaintext, aad)
			require.NoError(t, err)
			require.Equal(t, v, p.Version)
			require.Len(t, p.Nonce, c.NonceSize(v))
			require.NotContains(t, string(p.Ciphertext), "hello")

			got, err := c.Decrypt(p, aad)
			require.NoError(t, err)
			require.Equal(t, plaintext, got)
		})
	}
}

func TestEmptyPlaintext(t *testing.T) {
	c, err := New(testKey(t))
	require.NoError(t, err)

	p, err := c.Encrypt(nil, nil)
	require.NoError(t, err)

	got, err := c.Decrypt(p, nil)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestNonceIsFreshPerCall(t *testing.T) {
	c, err := New(testKey(t))
	require.NoError(t, err)

	a, err := c.Encrypt([]byte("same"), nil)
	require.NoError(t, err)
	b, err := c.Encrypt([]byte("same"), nil)
	require.NoError(t, err)

	require.NotEqual(t, a.Nonce, b.Nonce)
	require.NotEqual(t, a.Ciphertext, b.Ciphertext)
}

func TestTamperDetection(t *testing.T) {
	t.Parallel()

	c, err := New(testKey(t))
	require.NoError(t, err)

	p, err := c.Encrypt([]byte("attack at dawn"), []byte("meta"))
	require.NoError(t, err)

	cases := map[string]func() (Payload, []byte){
		"flipped ciphertext bit": func() (Payload, []byte) {
			q := clonePayload(p)
			q.Ciphertext[0] ^= 0x01
			return q, []byte("meta")
		},
		"flipped tag bit": func() (Payload, []byte) {
			q := clonePayload(p)
			q.Ciphertext[len(q.Ciphertext)-1] ^= 0x80
			return q, []byte("meta")
		},
		"flipped nonce bit": func() (Payload, []byte) {
			q := clonePayload(p)
			q.Nonce[3] ^= 0x10
			return q, []byte("meta")
		},
		"short nonce": func() (Payload, []byte) {
			q := clonePayload(p)
			q.Nonce = q.Nonce[:4]
			return q, []byte("meta")
		},
		"truncated ciphertext": func() (Payload, []byte) {
			q := clonePayload(p)
			q.Ciphertext = q.Ciphertext[:3]
			return q, []byte("meta")
		},
		"different aad": func() (Payload, []byte) {
			return clonePayload(p), []byte("other")
		},
	}

	for name, build := range cases {
		build := build
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			q, aad := build()
			got, err := c.Decrypt(q, aad)
			require.ErrorIs(t, err, ErrIntegrity)
			require.Nil(t, got)
		})
	}
}

func TestWrongKeyFailsIntegrity(t *testing.T) {
	a, err := New(testKey(t))
	require.NoError(t, err)
	b, err := New(bytes.Repeat([]byte{0x43}, KeySize))
	require.NoError(t, err)

	p, err := a.Encrypt([]byte("secret"), nil)
	require.NoError(t, err)

	_, err = b.Decrypt(p, nil)
	require.ErrorIs(t, err, ErrIntegrity)
}

func TestVersionIsAuthenticated(t *testing.T) {
	c, err := New(testKey(t), WithVersion(V2))
	require.NoError(t, err)

	p, err := c.Encrypt([]byte("secret"), nil)
	require.NoError(t, err)

	p.Version = V1
	_, err = c.Decrypt(p, nil)
	require.ErrorIs(t, err, ErrIntegrity)
}

func TestUnknownVersion(t *testing.T) {
	c, err := New(testKey(t))
	require.NoError(t, err)
	require.False(t, c.Supports(7))

	_, err = c.Decrypt(Payload{Version: 7, Nonce: make([]byte, 12), Ciphertext: make([]byte, 32)}, nil)
	require.ErrorIs(t, err, ErrUnsupportedVersion)

	var verr *VersionError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, Version(7), verr.Version)
}

func TestVersionNonceSizeMatchesCodec(t *testing.T) {
	c, err := New(testKey(t))
	require.NoError(t, err)

	for _, v := range []Version{V1, V2} {
		require.Equal(t, c.NonceSize(v), v.NonceSize(), v.String())
	}
	require.Zero(t, Version(7).NonceSize())
}

func TestGenerateKey(t *testing.T) {
	a, err := GenerateKey()
	require.NoError(t, err)
	require.Len(t, a, KeySize)

	b, err := GenerateKey()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func clonePayload(p Payload) Payload {
	return Payload{
		Version:    p.Version,
		Nonce:      append([]byte(nil), p.Nonce...),
		Ciphertext: append([]byte(nil), p.Ciphertext...),
	}
}

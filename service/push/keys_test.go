package push

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func p256TestKey(t *testing.T) ([]byte, string) {
	t.Helper()
	raw := make([]byte, 65)
	raw[0] = 0x04
	for i := 1; i < len(raw); i++ {
		raw[i] = byte(i * 7)
	}
	return raw, base64.RawURLEncoding.EncodeToString(raw)
}

func TestDecodeApplicationServerKey(t *testing.T) {
	raw, encoded := p256TestKey(t)

	decoded, err := DecodeApplicationServerKey(encoded)
	require.NoError(t, err)
	assert.Equal(t, raw, decoded)
}

func TestDecodeApplicationServerKey_PaddingIdempotent(t *testing.T) {
	// Decoding already-padded input must match decoding the unpadded form.
	raw := []byte{0xfb, 0xef, 0xff, 0x01, 0x02}
	unpadded := base64.RawURLEncoding.EncodeToString(raw)
	padded := base64.URLEncoding.EncodeToString(raw)

	fromUnpadded, err := DecodeApplicationServerKey(unpadded)
	require.NoError(t, err)
	fromPadded, err := DecodeApplicationServerKey(padded)
	require.NoError(t, err)

	assert.Equal(t, raw, fromUnpadded)
	assert.Equal(t, fromUnpadded, fromPadded)
}

func TestDecodeApplicationServerKey_URLSafeAlphabet(t *testing.T) {
	// Bytes chosen so the encoding contains both '-' and '_'.
	raw := []byte{0xfa, 0xff, 0xbf, 0x3e, 0xd7, 0xff}
	encoded := base64.RawURLEncoding.EncodeToString(raw)
	require.True(t, strings.ContainsAny(encoded, "-_"), "fixture should exercise the URL-safe alphabet, got %q", encoded)

	decoded, err := DecodeApplicationServerKey(encoded)
	require.NoError(t, err)
	assert.Equal(t, raw, decoded)
}

func TestDecodeApplicationServerKey_Malformed(t *testing.T) {
	_, err := DecodeApplicationServerKey("not!!valid@@base64")
	require.Error(t, err)

	var decodeErr *KeyDecodeError
	assert.True(t, errors.As(err, &decodeErr), "expected a KeyDecodeError, got %T", err)
}

func TestValidateApplicationServerKey(t *testing.T) {
	raw, encoded := p256TestKey(t)

	decoded, err := ValidateApplicationServerKey(encoded)
	require.NoError(t, err)
	assert.Len(t, decoded, 65)
	assert.Equal(t, raw, decoded)
}

func TestValidateApplicationServerKey_WrongLength(t *testing.T) {
	short := base64.RawURLEncoding.EncodeToString(make([]byte, 32))

	_, err := ValidateApplicationServerKey(short)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "65 bytes")
}

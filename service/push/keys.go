package push

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// An uncompressed P-256 public key point: 0x04 prefix plus two 32-byte
// coordinates.
const applicationServerKeyLength = 65

// KeyDecodeError means the configured application server key is not valid
// URL-safe base64. This is a configuration defect: the registration attempt
// must be aborted, not retried.
type KeyDecodeError struct {
	Err error
}

func (e *KeyDecodeError) Error() string {
	return fmt.Sprintf("invalid application server key: %v", e.Err)
}

func (e *KeyDecodeError) Unwrap() error {
	return e.Err
}

// DecodeApplicationServerKey decodes a URL-safe base64 key string into its
// raw bytes. Input padding is normalized first, so already-padded input
// decodes identically.
func DecodeApplicationServerKey(key string) ([]byte, error) {
	padding := (4 - len(key)%4) % 4
	padded := key + strings.Repeat("=", padding)
	padded = strings.ReplaceAll(padded, "-", "+")
	padded = strings.ReplaceAll(padded, "_", "/")

	raw, err := base64.StdEncoding.DecodeString(padded)
	if err != nil {
		return nil, &KeyDecodeError{Err: err}
	}
	return raw, nil
}

// ValidateApplicationServerKey decodes the key and requires the exact length
// of an uncompressed P-256 point. Anything else is a misconfigured key, not
// a usable one.
func ValidateApplicationServerKey(key string) ([]byte, error) {
	raw, err := DecodeApplicationServerKey(key)
	if err != nil {
		return nil, err
	}
	if len(raw) != applicationServerKeyLength {
		return nil, fmt.Errorf("application server key must decode to %d bytes, got %d", applicationServerKeyLength, len(raw))
	}
	return raw, nil
}

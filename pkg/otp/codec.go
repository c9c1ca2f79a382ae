package otp

import (
	"encoding/base32"
	"errors"
	"strings"
)

// unpadded is the RFC 4648 base32 alphabet (A-Z2-7) without padding.
// Authenticator seeds travel URL-encoded, so padding characters are never
// emitted and silently stripped on decode.
var unpadded = base32.StdEncoding.WithPadding(base32.NoPadding)

// EncodeSecret encodes raw secret bytes into an unpadded base32 string
// suitable for authenticator provisioning.
func EncodeSecret(secret []byte) string {
	return unpadded.EncodeToString(secret)
}

// DecodeSecret decodes a base32 secret. Input is case-insensitive and may
// carry trailing padding; any character outside the A-Z2-7 alphabet fails
// with ErrInvalidEncoding.
func DecodeSecret(encoded string) ([]byte, error) {
	normalized := strings.ToUpper(strings.TrimSpace(encoded))
	normalized = strings.TrimRight(normalized, "=")
	if normalized == "" {
		return nil, ErrInvalidEncoding
	}

	raw, err := unpadded.DecodeString(normalized)
	if err != nil {
		return nil, errors.Join(ErrInvalidEncoding, err)
	}
	return raw, nil
}

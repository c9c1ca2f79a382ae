package secrets

import (
	"encoding/base64"
	"strings"
)

// Payload is the structured at-rest form of an encrypted secret. The GCM
// ciphertext and its authentication tag are kept as separate fields so the
// storage layout is explicit rather than an opaque concatenation.
type Payload struct {
	Ciphertext []byte
	IV         []byte
	AuthTag    []byte
}

// Encode serializes the payload as three base64url parts joined by dots,
// suitable for a single text column.
func (p Payload) Encode() string {
	enc := base64.RawURLEncoding
	return enc.EncodeToString(p.Ciphertext) + "." + enc.EncodeToString(p.IV) + "." + enc.EncodeToString(p.AuthTag)
}

// ParsePayload decodes the string form produced by Encode. Malformed input
// fails with ErrInvalidPayload; the caller learns nothing about which part
// was wrong.
func ParsePayload(s string) (Payload, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Payload{}, ErrInvalidPayload
	}

	enc := base64.RawURLEncoding
	ciphertext, err := enc.DecodeString(parts[0])
	if err != nil {
		return Payload{}, ErrInvalidPayload
	}
	iv, err := enc.DecodeString(parts[1])
	if err != nil {
		return Payload{}, ErrInvalidPayload
	}
	tag, err := enc.DecodeString(parts[2])
	if err != nil {
		return Payload{}, ErrInvalidPayload
	}

	return Payload{Ciphertext: ciphertext, IV: iv, AuthTag: tag}, nil
}

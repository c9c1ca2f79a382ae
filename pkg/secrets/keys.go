package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

// GenerateKey creates a new random 32-byte master key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, errors.Join(ErrFailedToGenerateKey, err)
	}
	return key, nil
}

// GenerateEncodedKey creates a new master key as a base64 string ready to be
// placed in the TWOFA_MASTER_KEY environment variable.
func GenerateEncodedKey() (string, error) {
	key, err := GenerateKey()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// DecodeKey decodes a base64 master key and validates its length.
func DecodeKey(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, ErrKeyNotConfigured
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Join(ErrKeyNotConfigured, err)
	}
	if len(key) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	return key, nil
}

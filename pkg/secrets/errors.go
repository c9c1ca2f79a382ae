package secrets

import "errors"

var (
	ErrKeyNotConfigured    = errors.New("master key not configured")
	ErrInvalidKeyLength    = errors.New("invalid master key length, must be 32 bytes")
	ErrEncryptionFailed    = errors.New("failed to encrypt secret")
	ErrDecryptionFailed    = errors.New("failed to decrypt secret")
	ErrInvalidPayload      = errors.New("invalid encrypted payload")
	ErrKeyDerivationFailed = errors.New("failed to derive encryption key")
	ErrFailedToGenerateKey = errors.New("failed to generate master key")
)

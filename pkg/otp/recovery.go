package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
)

// GenerateRecoveryCodes creates cryptographically secure backup codes.
// Each code is a 16-character hexadecimal string (64 bits of entropy).
func GenerateRecoveryCodes(count int) ([]string, error) {
	if count < 1 {
		return nil, ErrInvalidRecoveryCodeCount
	}

	codes := make([]string, count)
	for i := range count {
		raw := make([]byte, 8)
		if _, err := rand.Read(raw); err != nil {
			return nil, errors.Join(ErrFailedToGenerateRecoveryCode, err)
		}
		codes[i] = fmt.Sprintf("%X", raw)
	}
	return codes, nil
}

// HashRecoveryCode returns the SHA-256 hash of a recovery code for storage.
// Only the hash is ever persisted.
func HashRecoveryCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// VerifyRecoveryCode checks a candidate code against a stored hash using a
// constant-time comparison.
func VerifyRecoveryCode(code, hashedCode string) bool {
	return subtle.ConstantTimeCompare(
		[]byte(HashRecoveryCode(code)),
		[]byte(hashedCode),
	) == 1
}

package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the required master key size for AES-256.
	KeySize = 32

	gcmTagSize = 16

	// derivationInfo provides domain separation so the same master key can
	// never be reused verbatim by another subsystem.
	derivationInfo = "twofa-secret-cipher-v1"
)

// Cipher performs authenticated encryption of secrets at rest. The AES-256
// key is derived once from the process-wide master key via HKDF-SHA256.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from the 32-byte master key. A missing or
// wrong-size key is a configuration error; callers must treat it as fatal at
// startup rather than proceeding without encryption.
func NewCipher(masterKey []byte) (*Cipher, error) {
	if len(masterKey) == 0 {
		return nil, ErrKeyNotConfigured
	}
	if len(masterKey) != KeySize {
		return nil, ErrInvalidKeyLength
	}

	derived := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, []byte(derivationInfo)), derived); err != nil {
		return nil, errors.Join(ErrKeyDerivationFailed, err)
	}

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, errors.Join(ErrKeyDerivationFailed, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Join(ErrKeyDerivationFailed, err)
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext under a freshly generated IV.
func (c *Cipher) Encrypt(plaintext []byte) (Payload, error) {
	iv := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return Payload{}, errors.Join(ErrEncryptionFailed, err)
	}

	sealed := c.aead.Seal(nil, iv, plaintext, nil)
	tagStart := len(sealed) - gcmTagSize

	return Payload{
		Ciphertext: sealed[:tagStart],
		IV:         iv,
		AuthTag:    sealed[tagStart:],
	}, nil
}

// Decrypt opens a payload. Any failure, whether a tampered ciphertext, a
// wrong key or a corrupted payload, yields the same ErrDecryptionFailed so
// callers cannot distinguish which cryptographic check failed.
func (c *Cipher) Decrypt(p Payload) ([]byte, error) {
	if len(p.IV) != c.aead.NonceSize() || len(p.AuthTag) != gcmTagSize {
		return nil, ErrDecryptionFailed
	}

	sealed := make([]byte, 0, len(p.Ciphertext)+gcmTagSize)
	sealed = append(sealed, p.Ciphertext...)
	sealed = append(sealed, p.AuthTag...)

	plaintext, err := c.aead.Open(nil, p.IV, sealed, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

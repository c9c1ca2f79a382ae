package otp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	DefaultDigits = 6  // Code length applied uniformly across generation and verification
	DefaultPeriod = 30 // Seconds per time step (RFC 6238 standard)
	DefaultSkew   = 1  // Adjacent steps tolerated on each side during verification

	secretSize = 20 // 160-bit secret (RFC 4226 recommendation)
)

// Config controls code derivation and verification. The zero value is usable;
// zero-valued fields fall back to the RFC defaults.
type Config struct {
	Digits int // Code length; the same count is used everywhere, never a range
	Period int // Time step in seconds
	Skew   int // Steps accepted on each side of the current one
}

func (c Config) withDefaults() Config {
	if c.Digits == 0 {
		c.Digits = DefaultDigits
	}
	if c.Period == 0 {
		c.Period = DefaultPeriod
	}
	if c.Skew == 0 {
		c.Skew = DefaultSkew
	}
	return c
}

// GenerateSecret creates a fresh random secret and returns both the raw bytes
// and their base32 encoding.
func GenerateSecret() ([]byte, string, error) {
	secret := make([]byte, secretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, "", errors.Join(ErrFailedToGenerateSecret, err)
	}
	return secret, EncodeSecret(secret), nil
}

// HOTP implements the RFC 4226 HMAC-based one-time password algorithm:
// HMAC-SHA1 over the 8-byte big-endian counter, dynamic truncation, then
// reduction modulo 10^digits. The result is zero-padded to digits characters.
func HOTP(secret []byte, counter uint64, digits int) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, secret)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	// Dynamic truncation: last nibble of the digest selects the offset,
	// the top bit of the extracted word is masked off.
	offset := sum[len(sum)-1] & 0x0f
	code := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		int(sum[offset+3]&0xff)

	code %= int(math.Pow10(digits))
	return fmt.Sprintf("%0*d", digits, code)
}

// TOTP derives the code for the time step containing t.
func TOTP(secret []byte, t time.Time, cfg Config) string {
	cfg = cfg.withDefaults()
	counter := uint64(t.Unix() / int64(cfg.Period))
	return HOTP(secret, counter, cfg.Digits)
}

// Verify reports whether candidate matches the code for the step containing t
// or any step within the configured skew window. The candidate must be
// exactly cfg.Digits decimal characters; comparison against each derived code
// is constant-time.
func Verify(secret []byte, candidate string, t time.Time, cfg Config) bool {
	cfg = cfg.withDefaults()

	if len(candidate) != cfg.Digits || !isDigits(candidate) {
		return false
	}

	base := t.Unix() / int64(cfg.Period)
	for step := -cfg.Skew; step <= cfg.Skew; step++ {
		counter := base + int64(step)
		if counter < 0 {
			continue
		}
		derived := HOTP(secret, uint64(counter), cfg.Digits)
		if subtle.ConstantTimeCompare([]byte(derived), []byte(candidate)) == 1 {
			return true
		}
	}
	return false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

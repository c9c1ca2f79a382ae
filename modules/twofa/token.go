package twofa

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"
)

// Status is the lifecycle state of an enrollment token. A token starts
// pending and moves exactly once into completed, rejected or expired;
// terminal states are never left. Expiry is lazy: nothing ever writes the
// expired status to storage, it is derived from ExpiresAt at read time.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
	StatusExpired   Status = "expired"
)

// DefaultTokenTTL is the fixed lifetime of an enrollment token.
const DefaultTokenTTL = 24 * time.Hour

// Token is one enrollment attempt. The token string is the capability that
// authorizes completing or rejecting this specific enrollment; the calling
// browser often has no authenticated session at enrollment time, so the
// token, not a cookie, is what the callback chain carries.
type Token struct {
	Token       string
	UserID      string
	Email       string
	ServiceName string
	CallbackURL string // Optional external redirect target for third-party-initiated flows

	Status    Status
	CreatedAt time.Time
	ExpiresAt time.Time

	// Set only on completion.
	CompletedAt             *time.Time
	ExternalSeedID          string
	EncryptedSecretSnapshot string

	// Set only on rejection.
	RejectReason string
}

// ExpiredAt reports whether the token's TTL has elapsed at the given time.
func (t *Token) ExpiredAt(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// EffectiveStatus is the status as observed at the given time: a stored
// pending token past its TTL reads as expired even though nothing wrote that.
func (t *Token) EffectiveStatus(now time.Time) Status {
	if t.Status == StatusPending && t.ExpiredAt(now) {
		return StatusExpired
	}
	return t.Status
}

// CreateTokenParams is the identity context captured at issuance.
type CreateTokenParams struct {
	UserID      string
	Email       string
	ServiceName string
	CallbackURL string
}

// TokenRepository persists enrollment tokens. CompletePending and
// RejectPending must be atomic transition-if-still-pending operations: when
// two callers race on the same token, exactly one wins and the other gets
// ErrTokenAlreadyUsed with the stored snapshot untouched.
type TokenRepository interface {
	// Create generates a fresh high-entropy token string and persists a
	// pending record expiring at now+ttl.
	Create(ctx context.Context, params CreateTokenParams, now time.Time, ttl time.Duration) (*Token, error)

	// Get loads a token by its string, or ErrTokenNotFound.
	Get(ctx context.Context, token string) (*Token, error)

	// CompletePending transitions pending → completed, stamping CompletedAt
	// and the completion fields. Any non-pending state fails with
	// ErrTokenAlreadyUsed.
	CompletePending(ctx context.Context, token, externalSeedID, encryptedSecretSnapshot string, now time.Time) (*Token, error)

	// RejectPending transitions pending → rejected. Any non-pending state
	// fails with ErrTokenAlreadyUsed.
	RejectPending(ctx context.Context, token, reason string, now time.Time) (*Token, error)
}

// newTokenString returns 32 bytes of CSPRNG output as unpadded base64url.
// Possession of the string is the enrollment capability, so it carries the
// same entropy budget as a session secret.
func newTokenString() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", errors.Join(ErrFailedToGenerateToken, err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

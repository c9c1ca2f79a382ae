package twofa

import (
	"context"
	"errors"
	"time"
)

// ErrRecordNotFound is returned when a user has no security record yet.
var ErrRecordNotFound = errors.New("security record not found")

// SecurityRecord is the per-user two-factor state, owned by the surrounding
// identity system but written only by this subsystem.
//
// Invariant: Enabled is true if and only if EncryptedSecret is set. The two
// fields travel together through Upsert and Disable and are never written
// independently.
type SecurityRecord struct {
	UserID          string
	EncryptedSecret string // secrets.Payload in its Encode form; never plaintext
	Enabled         bool
	ExternalSeedID  string // Opaque provider identifier, informational
	EnrolledAt      time.Time
}

// SecurityRecordRepository persists security records keyed by user id.
type SecurityRecordRepository interface {
	// Get loads the record for a user, or ErrRecordNotFound.
	Get(ctx context.Context, userID string) (*SecurityRecord, error)

	// Upsert writes the record atomically, replacing any previous state for
	// the user. Callers must set Enabled and EncryptedSecret together.
	Upsert(ctx context.Context, record SecurityRecord) error

	// Disable clears the encrypted secret and the enabled flag together.
	Disable(ctx context.Context, userID string) error
}

// UserDirectory resolves emails to user ids for the session-less verification
// path and the legacy email callback. It is implemented by the surrounding
// identity system.
type UserDirectory interface {
	// UserIDByEmail returns the user id for an email, or ErrUserNotFound.
	UserIDByEmail(ctx context.Context, email string) (string, error)
}

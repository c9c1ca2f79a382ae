// Package twofa implements two-factor authentication enrollment and login
// verification backed by an external authenticator application.
//
// The package covers the full lifecycle of a TOTP enrollment: issuing a
// single-use enrollment token, building the deep link (and QR code) that
// hands the token to the authenticator app, receiving the callback that
// carries the generated seed, and persisting the seed encrypted per user.
// Once a user is enrolled, VerificationService checks login codes against
// the stored seed with rate limiting applied before any cryptographic work.
//
// # Architecture
//
// Two entry points share the persistence layer.
//
//   - Coordinator drives enrollment: Initiate creates a pending token and
//     returns the deep link, HandleCallback and Finalize consume the
//     authenticator's response and complete or reject the token exactly
//     once, snapshotting the encrypted seed on the token and upserting the
//     user's security record.
//
//   - VerificationService validates login codes: it resolves the caller to
//     a user, loads and decrypts the stored seed, and verifies the code
//     within the configured time-step window. Every verification attempt
//     counts against the per-user rate limit, whether or not it succeeds.
//
// Storage is defined by small repository interfaces (TokenRepository,
// SecurityRecordRepository, UserDirectory) with in-memory implementations
// for tests and PostgreSQL implementations for production. State
// transitions on enrollment tokens are guarded at the storage layer so
// that concurrent callbacks for the same token resolve to a single winner.
//
// Configuration is loaded from TWOFA_* environment variables via
// LoadConfig; see Config for the full surface. HTTP handlers for the
// callback, finalize, and verify endpoints are wired by Router.
package twofa

// Package secrets encrypts TOTP secrets at rest with AES-256-GCM.
//
// The process-wide master key is supplied once, at startup, through the
// TWOFA_MASTER_KEY environment variable (base64, 32 bytes). LoadCipher fails
// fast when the key is missing or malformed; there is no insecure fallback.
// The actual AES key is derived from the master key with HKDF-SHA256 under a
// fixed domain-separation label.
//
// Encrypted secrets are stored as a structured Payload of ciphertext, IV and
// authentication tag, serialized by Encode into a dot-joined base64url string
// that fits a single text column. Decrypt collapses every failure mode into
// one generic error so callers never learn which cryptographic check failed.
package secrets

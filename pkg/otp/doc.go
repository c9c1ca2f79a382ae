// Package otp implements the one-time-password primitives of the two-factor
// subsystem: secret generation, base32 encoding, RFC 4226 HOTP derivation and
// the RFC 6238 time-based wrapper with configurable digit count, time step
// and skew tolerance.
//
// The package deliberately has no third-party dependencies so the code
// derivation that login security rests on stays auditable in one file.
// Verification compares derived and candidate codes in constant time.
//
// The digit count is a single configuration value applied uniformly to
// generation, format validation and verification. It defaults to 6.
//
// Typical verification path:
//
//	secret, encoded, _ := otp.GenerateSecret()
//	code := otp.TOTP(secret, time.Now(), otp.Config{})
//	ok := otp.Verify(secret, code, time.Now(), otp.Config{})
//
// DecodeSecret accepts what authenticators actually send: mixed case and
// optional trailing padding. Recovery-code helpers cover the hashing
// primitives only; presenting and redeeming the codes is up to the caller.
package otp

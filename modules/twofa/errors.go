package twofa

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Validation and identity errors.
	ErrValidation   = errors.New("invalid request")
	ErrAuthRequired = errors.New("authentication required")
	ErrUserNotFound = errors.New("user not found")

	// Enrollment token state errors.
	ErrTokenNotFound         = errors.New("enrollment token not found")
	ErrTokenAlreadyUsed      = errors.New("enrollment token already used")
	ErrTokenExpired          = errors.New("enrollment token expired")
	ErrFailedToGenerateToken = errors.New("failed to generate enrollment token")

	// Callback protocol errors.
	ErrStaleCallback      = errors.New("callback timestamp outside freshness window")
	ErrAuthenticatorError = errors.New("authenticator reported failure")

	// Verification errors.
	ErrNotEnrolled        = errors.New("two-factor authentication not enabled")
	ErrInvalidCode        = errors.New("invalid verification code")
	ErrRateLimited        = errors.New("too many verification attempts")
	ErrVerificationFailed = errors.New("verification failed")
)

// RateLimitError carries the suggested retry delay alongside the rate-limit
// sentinel, so the HTTP layer can emit a Retry-After header.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s, retry after %s", ErrRateLimited, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

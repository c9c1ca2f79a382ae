package otp

import "errors"

var (
	ErrInvalidEncoding              = errors.New("invalid base32 encoding")
	ErrFailedToGenerateSecret       = errors.New("failed to generate secret")
	ErrInvalidCodeFormat            = errors.New("invalid code format")
	ErrMissingSecret                = errors.New("missing secret")
	ErrMissingAccountName           = errors.New("missing account name")
	ErrMissingIssuer                = errors.New("missing issuer")
	ErrInvalidRecoveryCodeCount     = errors.New("invalid recovery code count, must be greater than 0")
	ErrFailedToGenerateRecoveryCode = errors.New("failed to generate recovery code")
)

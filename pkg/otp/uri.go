package otp

import (
	"fmt"
	"net/url"
	"strconv"
)

// URIParams contains the parameters for provisioning URI generation.
type URIParams struct {
	Secret      string // Base32-encoded secret (required)
	AccountName string // User identifier like email (required)
	Issuer      string // Service name displayed in authenticator apps (required)
	Digits      int    // Optional, defaults to 6
	Period      int    // Optional, defaults to 30
}

// ProvisioningURI builds an otpauth:// URI per the Key Uri Format so the
// secret can be imported into Google Authenticator, 1Password and compatible
// apps as a fallback to the hosted authenticator flow.
func ProvisioningURI(params URIParams) (string, error) {
	if params.Secret == "" {
		return "", ErrMissingSecret
	}
	if _, err := DecodeSecret(params.Secret); err != nil {
		return "", err
	}
	if params.AccountName == "" {
		return "", ErrMissingAccountName
	}
	if params.Issuer == "" {
		return "", ErrMissingIssuer
	}
	if params.Digits == 0 {
		params.Digits = DefaultDigits
	}
	if params.Period == 0 {
		params.Period = DefaultPeriod
	}

	label := fmt.Sprintf("%s:%s",
		url.PathEscape(params.Issuer),
		url.PathEscape(params.AccountName),
	)

	query := url.Values{}
	query.Set("secret", params.Secret)
	query.Set("issuer", params.Issuer)
	query.Set("algorithm", "SHA1")
	query.Set("digits", strconv.Itoa(params.Digits))
	query.Set("period", strconv.Itoa(params.Period))

	return fmt.Sprintf("otpauth://totp/%s?%s", label, query.Encode()), nil
}

package twofa

import (
	"net/url"
	"strconv"
	"time"
)

// CallbackParams is the raw parameter bag the authenticator sends back,
// covering both the current shape (seed/regToken) and the legacy one
// (secret/account). The bag is resolved exactly once, into a tagged flow,
// before any handler logic branches on it.
type CallbackParams struct {
	Success   bool
	Seed      string // Base32 secret
	SeedID    string
	Code      string
	RegToken  string
	Timestamp int64 // Epoch milliseconds
	Error     string

	// Legacy variant fields.
	LegacySecret  string // "secret" in place of "seed"
	LegacyAccount string // "account" in place of "regToken"
}

// ParseCallbackQuery extracts callback parameters from a redirect query
// string.
func ParseCallbackQuery(values url.Values) CallbackParams {
	timestamp, _ := strconv.ParseInt(values.Get("timestamp"), 10, 64)
	return CallbackParams{
		Success:       values.Get("success") == "true",
		Seed:          values.Get("seed"),
		SeedID:        values.Get("seedId"),
		Code:          values.Get("code"),
		RegToken:      values.Get("regToken"),
		Timestamp:     timestamp,
		Error:         values.Get("error"),
		LegacySecret:  values.Get("secret"),
		LegacyAccount: values.Get("account"),
	}
}

// seed returns the secret regardless of which parameter name carried it.
func (p CallbackParams) seed() string {
	if p.Seed != "" {
		return p.Seed
	}
	return p.LegacySecret
}

// callbackFlow is the tagged union the parameter bag resolves into.
type callbackFlow interface {
	flowName() string
}

// registrationTokenFlow correlates the callback through the issued
// enrollment token.
type registrationTokenFlow struct {
	regToken string
}

func (registrationTokenFlow) flowName() string { return "registration_token" }

// legacyEmailFlow correlates the callback by the raw account email, resolved
// through direct user lookup. Supported for older authenticator builds that
// predate registration tokens.
type legacyEmailFlow struct {
	email string
}

func (legacyEmailFlow) flowName() string { return "legacy_email" }

// resolveCallbackFlow decides once which protocol variant the callback is.
func resolveCallbackFlow(p CallbackParams) (callbackFlow, error) {
	switch {
	case p.RegToken != "":
		return registrationTokenFlow{regToken: p.RegToken}, nil
	case p.LegacyAccount != "":
		return legacyEmailFlow{email: p.LegacyAccount}, nil
	default:
		return nil, ErrValidation
	}
}

// fresh reports whether the callback timestamp is within the freshness
// window around now. Callback URLs travel through a browser and may be
// logged, cached or revisited; the timestamp bound is the primary replay
// defense.
func (p CallbackParams) fresh(now time.Time, window time.Duration) bool {
	if p.Timestamp <= 0 {
		return false
	}
	issued := time.UnixMilli(p.Timestamp)
	age := now.Sub(issued)
	if age < 0 {
		age = -age
	}
	return age <= window
}

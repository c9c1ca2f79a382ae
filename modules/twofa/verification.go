package twofa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/twofa/pkg/otp"
	"github.com/dmitrymomot/twofa/pkg/ratelimit"
	"github.com/dmitrymomot/twofa/pkg/secrets"
)

// Identity addresses the account being verified: a user id when the caller
// has an authenticated session, or an email for the session-less login-time
// check.
type Identity struct {
	UserID string
	Email  string
}

func (i Identity) empty() bool {
	return i.UserID == "" && i.Email == ""
}

// limiterKey is identity-scoped so one account's attempts never throttle
// another's.
func (i Identity) limiterKey() string {
	if i.UserID != "" {
		return "totp:" + i.UserID
	}
	return "totp:" + i.Email
}

// VerificationService is the login-time code check: rate-limit, load the
// encrypted secret, decrypt, verify.
type VerificationService struct {
	cfg     Config
	records SecurityRecordRepository
	users   UserDirectory
	cipher  *secrets.Cipher
	limiter *ratelimit.SlidingWindow
	log     *slog.Logger
	now     func() time.Time
}

// VerificationOption configures a VerificationService.
type VerificationOption func(*VerificationService)

// WithVerificationLogger sets the logger; defaults to slog.Default.
func WithVerificationLogger(log *slog.Logger) VerificationOption {
	return func(s *VerificationService) {
		if log != nil {
			s.log = log
		}
	}
}

// WithVerificationClock overrides the time source, for tests.
func WithVerificationClock(now func() time.Time) VerificationOption {
	return func(s *VerificationService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewVerificationService wires the verification path together. When limiter
// is nil an in-memory sliding window is built from the config, which is only
// appropriate for single-instance deployments.
func NewVerificationService(
	cfg Config,
	records SecurityRecordRepository,
	users UserDirectory,
	cipher *secrets.Cipher,
	limiter *ratelimit.SlidingWindow,
	opts ...VerificationOption,
) (*VerificationService, error) {
	if records == nil || users == nil {
		return nil, fmt.Errorf("%w: missing repository", ErrValidation)
	}
	if cipher == nil {
		return nil, secrets.ErrKeyNotConfigured
	}

	cfg = cfg.withDefaults()
	if limiter == nil {
		var err error
		limiter, err = ratelimit.NewSlidingWindow(ratelimit.NewMemoryStore(), cfg.RateLimit, cfg.RateWindow)
		if err != nil {
			return nil, err
		}
	}

	s := &VerificationService{
		cfg:     cfg,
		records: records,
		users:   users,
		cipher:  cipher,
		limiter: limiter,
		log:     slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// VerifyLoginCode checks a candidate code for the given identity.
//
// The limiter is consulted before anything else and every call counts as an
// attempt against the window, correct code or not. A correct code submitted
// as the sixth call in the window is still rejected; this
// call-counts-not-failures-count semantic is part of the contract.
func (s *VerificationService) VerifyLoginCode(ctx context.Context, identity Identity, code string) error {
	if identity.empty() || code == "" {
		return fmt.Errorf("%w: identity and code are required", ErrValidation)
	}

	res, err := s.limiter.Check(ctx, identity.limiterKey())
	if err != nil {
		s.log.ErrorContext(ctx, "rate limiter unavailable", slog.Any("error", err))
		return ErrVerificationFailed
	}
	if !res.Allowed {
		return &RateLimitError{RetryAfter: res.RetryAfter()}
	}

	userID := identity.UserID
	if userID == "" {
		userID, err = s.users.UserIDByEmail(ctx, identity.Email)
		if err != nil {
			return err
		}
	}

	record, err := s.records.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return ErrNotEnrolled
		}
		return err
	}
	if !record.Enabled || record.EncryptedSecret == "" {
		return ErrNotEnrolled
	}

	payload, err := secrets.ParsePayload(record.EncryptedSecret)
	if err != nil {
		s.log.ErrorContext(ctx, "malformed encrypted secret",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
		return ErrVerificationFailed
	}

	secret, err := s.cipher.Decrypt(payload)
	if err != nil {
		// Which cryptographic check failed stays internal.
		s.log.ErrorContext(ctx, "failed to decrypt stored secret",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
		return ErrVerificationFailed
	}

	if !otp.Verify(secret, code, s.now(), s.cfg.otpConfig()) {
		return ErrInvalidCode
	}
	return nil
}

// AttemptsStatus reports the current rate-limit window for an identity
// without consuming an attempt.
func (s *VerificationService) AttemptsStatus(ctx context.Context, identity Identity) (*ratelimit.Result, error) {
	if identity.empty() {
		return nil, fmt.Errorf("%w: identity is required", ErrValidation)
	}
	return s.limiter.Status(ctx, identity.limiterKey())
}

// ResetAttempts clears the rate-limit window for an identity, for support
// tooling.
func (s *VerificationService) ResetAttempts(ctx context.Context, identity Identity) error {
	if identity.empty() {
		return fmt.Errorf("%w: identity is required", ErrValidation)
	}
	return s.limiter.Reset(ctx, identity.limiterKey())
}

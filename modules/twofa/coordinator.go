package twofa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/dmitrymomot/twofa/pkg/otp"
	"github.com/dmitrymomot/twofa/pkg/secrets"
)

// Coordinator orchestrates the enrollment protocol: it issues enrollment
// tokens, builds the deep link into the external authenticator, and processes
// both callback shapes against the token state machine. The enrollment is
// request-decoupled: initiate and completion run in separate request
// lifetimes, correlated only through the durable token row.
type Coordinator struct {
	cfg     Config
	tokens  TokenRepository
	records SecurityRecordRepository
	users   UserDirectory
	cipher  *secrets.Cipher
	log     *slog.Logger
	now     func() time.Time
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithLogger sets the logger; defaults to slog.Default.
func WithLogger(log *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if log != nil {
			c.log = log
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCoordinator wires the enrollment protocol together. The cipher is
// mandatory: enrollment cannot proceed without encryption at rest.
func NewCoordinator(
	cfg Config,
	tokens TokenRepository,
	records SecurityRecordRepository,
	users UserDirectory,
	cipher *secrets.Cipher,
	opts ...CoordinatorOption,
) (*Coordinator, error) {
	if tokens == nil || records == nil || users == nil {
		return nil, fmt.Errorf("%w: missing repository", ErrValidation)
	}
	if cipher == nil {
		return nil, secrets.ErrKeyNotConfigured
	}

	c := &Coordinator{
		cfg:     cfg.withDefaults(),
		tokens:  tokens,
		records: records,
		users:   users,
		cipher:  cipher,
		log:     slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Enrollment is the result of Initiate: the pending token and the deep link
// the caller presents to the user. How the link is shown (new tab, QR on a
// settings page) is up to the caller.
type Enrollment struct {
	Token    *Token
	DeepLink string
}

// Initiate creates a pending enrollment token and builds the deep link into
// the external authenticator. The callback URL embedded in the link carries
// the registration token, which is the sole capability for completing the
// enrollment; no session is required on the way back.
func (c *Coordinator) Initiate(ctx context.Context, userID, email, serviceName, callbackURL string) (*Enrollment, error) {
	if userID == "" || email == "" {
		return nil, fmt.Errorf("%w: user id and email are required", ErrValidation)
	}
	if serviceName == "" {
		serviceName = c.cfg.ServiceName
	}

	token, err := c.tokens.Create(ctx, CreateTokenParams{
		UserID:      userID,
		Email:       email,
		ServiceName: serviceName,
		CallbackURL: callbackURL,
	}, c.now(), c.cfg.TokenTTL)
	if err != nil {
		return nil, err
	}

	callback, err := url.Parse(c.cfg.CallbackURL)
	if err != nil {
		return nil, fmt.Errorf("%w: callback url: %w", ErrValidation, err)
	}
	cq := callback.Query()
	cq.Set("regToken", token.Token)
	callback.RawQuery = cq.Encode()

	deepLink, err := url.Parse(c.cfg.AuthenticatorURL)
	if err != nil {
		return nil, fmt.Errorf("%w: authenticator url: %w", ErrValidation, err)
	}
	q := deepLink.Query()
	q.Set("action", "add")
	q.Set("service", serviceName)
	q.Set("account", email)
	q.Set("callback", callback.String())
	deepLink.RawQuery = q.Encode()

	c.log.InfoContext(ctx, "enrollment initiated",
		slog.String("user_id", userID),
		slog.Time("expires_at", token.ExpiresAt),
	)

	return &Enrollment{Token: token, DeepLink: deepLink.String()}, nil
}

// DeepLinkQR renders the deep link as a PNG QR code of the given size, for
// callers that show the link on a screen the user scans with their phone.
func (c *Coordinator) DeepLinkQR(enrollment *Enrollment, size int) ([]byte, error) {
	if enrollment == nil || enrollment.DeepLink == "" {
		return nil, fmt.Errorf("%w: empty deep link", ErrValidation)
	}
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(enrollment.DeepLink, qrcode.Medium, size)
}

// ValidateToken loads a token and checks it is still actionable. It returns
// ErrTokenNotFound for unknown tokens, ErrTokenAlreadyUsed for terminal ones
// and ErrTokenExpired when the TTL elapsed; expiry is computed here, at read
// time, never written back.
func (c *Coordinator) ValidateToken(ctx context.Context, tokenString string) (*Token, error) {
	if tokenString == "" {
		return nil, ErrTokenNotFound
	}

	token, err := c.tokens.Get(ctx, tokenString)
	if err != nil {
		return nil, err
	}

	switch token.EffectiveStatus(c.now()) {
	case StatusPending:
		return token, nil
	case StatusExpired:
		return nil, ErrTokenExpired
	default:
		return nil, ErrTokenAlreadyUsed
	}
}

// CallbackResult tells the HTTP layer where to send the browser after a
// redirect callback. Protocol failures surface as a failure redirect, not an
// error: the caller is a browser mid-redirect and must land somewhere
// renderable.
type CallbackResult struct {
	RedirectURL string
	Completed   bool
	Err         error // The protocol failure behind a failure redirect, for logging
}

// HandleCallback processes the redirect callback (shape one of the
// protocol). On success it performs the persist-and-complete step and sends
// the browser on to the confirmation page with the same payload, so the page
// can render a result without this endpoint producing UI.
func (c *Coordinator) HandleCallback(ctx context.Context, params CallbackParams) *CallbackResult {
	flow, err := resolveCallbackFlow(params)
	if err != nil {
		return c.failureRedirect(ctx, params, "invalid_callback", err)
	}

	if !params.Success || params.Error != "" {
		// Authenticator-reported failure: reject the token if one is
		// attached, then let the confirmation page show the error.
		if tf, ok := flow.(registrationTokenFlow); ok {
			if _, err := c.rejectEnrollment(ctx, tf.regToken, params.Error); err != nil && !errors.Is(err, ErrTokenAlreadyUsed) {
				c.log.WarnContext(ctx, "failed to reject enrollment", slog.Any("error", err))
			}
		}
		return c.failureRedirect(ctx, params, "authenticator_error", ErrAuthenticatorError)
	}

	if !params.fresh(c.now(), c.cfg.FreshnessWindow) {
		return c.failureRedirect(ctx, params, "stale_callback", ErrStaleCallback)
	}

	switch f := flow.(type) {
	case registrationTokenFlow:
		token, err := c.ValidateToken(ctx, f.regToken)
		if err != nil {
			return c.failureRedirect(ctx, params, callbackErrorCode(err), err)
		}
		if _, err := c.completeEnrollment(ctx, token, params.seed(), params.SeedID); err != nil {
			return c.failureRedirect(ctx, params, callbackErrorCode(err), err)
		}
	case legacyEmailFlow:
		if err := c.completeLegacyEnrollment(ctx, f.email, params.seed(), params.SeedID); err != nil {
			return c.failureRedirect(ctx, params, callbackErrorCode(err), err)
		}
	}

	return &CallbackResult{
		RedirectURL: c.confirmationURL(params, ""),
		Completed:   true,
	}
}

// FinalizeRequest is the confirmation-page payload (shape two of the
// protocol). The page posts back the same parameters it received so this
// endpoint can re-validate them independently instead of trusting the second
// URL hop.
type FinalizeRequest struct {
	RegToken  string `json:"regToken"`
	Success   bool   `json:"success"`
	Seed      string `json:"seed"`
	SeedID    string `json:"seedId"`
	Code      string `json:"code"`
	Timestamp int64  `json:"timestamp"`
}

// Finalize re-validates the token, which must still be pending, and performs
// the identical persist-and-complete step as the redirect callback. Whichever
// entry point reaches the token first wins; the other observes
// ErrTokenAlreadyUsed.
func (c *Coordinator) Finalize(ctx context.Context, req FinalizeRequest) (*Token, error) {
	if req.RegToken == "" {
		return nil, fmt.Errorf("%w: regToken is required", ErrValidation)
	}
	if !req.Success {
		return c.rejectEnrollment(ctx, req.RegToken, "rejected via confirmation")
	}

	params := CallbackParams{Timestamp: req.Timestamp}
	if !params.fresh(c.now(), c.cfg.FreshnessWindow) {
		return nil, ErrStaleCallback
	}

	token, err := c.ValidateToken(ctx, req.RegToken)
	if err != nil {
		return nil, err
	}
	return c.completeEnrollment(ctx, token, req.Seed, req.SeedID)
}

// completeEnrollment is the single persist-and-complete step both protocol
// entry points funnel into: encrypt the seed, win the atomic pending →
// completed transition, then write the security record with both fields set
// together.
func (c *Coordinator) completeEnrollment(ctx context.Context, token *Token, seed, seedID string) (*Token, error) {
	raw, err := otp.DecodeSecret(seed)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed seed", ErrValidation)
	}

	payload, err := c.cipher.Encrypt(raw)
	if err != nil {
		// Crypto detail stays in the logs; callers get a generic failure.
		c.log.ErrorContext(ctx, "failed to encrypt enrollment seed", slog.Any("error", err))
		return nil, ErrVerificationFailed
	}
	encoded := payload.Encode()

	now := c.now()
	completed, err := c.tokens.CompletePending(ctx, token.Token, seedID, encoded, now)
	if err != nil {
		return nil, err
	}

	if err := c.records.Upsert(ctx, SecurityRecord{
		UserID:          token.UserID,
		EncryptedSecret: encoded,
		Enabled:         true,
		ExternalSeedID:  seedID,
		EnrolledAt:      now,
	}); err != nil {
		return nil, err
	}

	c.log.InfoContext(ctx, "enrollment completed", slog.String("user_id", token.UserID))
	return completed, nil
}

// completeLegacyEnrollment handles the token-less legacy variant: the user is
// resolved by email and the record written directly, with no token row to
// transition.
func (c *Coordinator) completeLegacyEnrollment(ctx context.Context, email, seed, seedID string) error {
	userID, err := c.users.UserIDByEmail(ctx, email)
	if err != nil {
		return err
	}

	raw, err := otp.DecodeSecret(seed)
	if err != nil {
		return fmt.Errorf("%w: malformed seed", ErrValidation)
	}

	payload, err := c.cipher.Encrypt(raw)
	if err != nil {
		c.log.ErrorContext(ctx, "failed to encrypt enrollment seed", slog.Any("error", err))
		return ErrVerificationFailed
	}

	if err := c.records.Upsert(ctx, SecurityRecord{
		UserID:          userID,
		EncryptedSecret: payload.Encode(),
		Enabled:         true,
		ExternalSeedID:  seedID,
		EnrolledAt:      c.now(),
	}); err != nil {
		return err
	}

	c.log.InfoContext(ctx, "legacy enrollment completed", slog.String("user_id", userID))
	return nil
}

// rejectEnrollment transitions the token to rejected under the same
// atomicity guard as completion.
func (c *Coordinator) rejectEnrollment(ctx context.Context, tokenString, reason string) (*Token, error) {
	token, err := c.ValidateToken(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	return c.tokens.RejectPending(ctx, token.Token, reason, c.now())
}

// confirmationURL builds the redirect to the client-rendered confirmation
// page, carrying the callback payload so the page can render the outcome.
func (c *Coordinator) confirmationURL(params CallbackParams, errorCode string) string {
	u, err := url.Parse(c.cfg.ConfirmationURL)
	if err != nil {
		// Config was validated at startup; a parse failure here means the
		// confirmation page is unusable, so fall back to the raw value.
		return c.cfg.ConfirmationURL
	}

	q := u.Query()
	if errorCode != "" {
		q.Set("success", "false")
		q.Set("error", errorCode)
	} else {
		q.Set("success", "true")
		q.Set("seed", params.seed())
		q.Set("seedId", params.SeedID)
		q.Set("code", params.Code)
		q.Set("regToken", params.RegToken)
		q.Set("timestamp", strconv.FormatInt(params.Timestamp, 10))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Coordinator) failureRedirect(ctx context.Context, params CallbackParams, code string, cause error) *CallbackResult {
	c.log.WarnContext(ctx, "enrollment callback failed",
		slog.String("reason", code),
		slog.Any("error", cause),
	)
	return &CallbackResult{
		RedirectURL: c.confirmationURL(params, code),
		Err:         cause,
	}
}

// callbackErrorCode maps protocol errors onto the short codes the
// confirmation page understands.
func callbackErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrTokenNotFound):
		return "token_not_found"
	case errors.Is(err, ErrTokenAlreadyUsed):
		return "token_already_used"
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, ErrValidation):
		return "invalid_callback"
	default:
		return "enrollment_failed"
	}
}

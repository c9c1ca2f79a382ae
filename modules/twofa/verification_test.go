package twofa_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/twofa/modules/twofa"
	"github.com/dmitrymomot/twofa/pkg/otp"
	"github.com/dmitrymomot/twofa/pkg/secrets"
)

type verificationEnv struct {
	verifier *twofa.VerificationService
	records  *twofa.MemorySecurityRecordStore
	cipher   *secrets.Cipher
	seed     []byte
	now      time.Time
}

func newVerificationEnv(t *testing.T) *verificationEnv {
	t.Helper()

	seed, err := otp.DecodeSecret(testSeed)
	require.NoError(t, err)

	env := &verificationEnv{
		records: twofa.NewMemorySecurityRecordStore(),
		cipher:  newTestCipher(t),
		seed:    seed,
		now:     time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC),
	}

	payload, err := env.cipher.Encrypt(seed)
	require.NoError(t, err)
	require.NoError(t, env.records.Upsert(context.Background(), twofa.SecurityRecord{
		UserID:          "u1",
		EncryptedSecret: payload.Encode(),
		Enabled:         true,
		EnrolledAt:      env.now.Add(-24 * time.Hour),
	}))

	verifier, err := twofa.NewVerificationService(
		testConfig(),
		env.records,
		twofa.NewMemoryUserDirectory(map[string]string{"a@b.com": "u1"}),
		env.cipher,
		nil,
		twofa.WithVerificationClock(func() time.Time { return env.now }),
	)
	require.NoError(t, err)
	env.verifier = verifier
	return env
}

// code derives the value the user's authenticator would show at the env's
// current time.
func (e *verificationEnv) code() string {
	return otp.TOTP(e.seed, e.now, otp.Config{})
}

func (e *verificationEnv) wrongCode() string {
	return wrongCodeFor(e.seed, e.now)
}

// wrongCodeFor returns a well-formed code that matches no step within the
// skew window at the given time.
func wrongCodeFor(seed []byte, now time.Time) string {
	valid := map[string]bool{}
	for step := -1; step <= 1; step++ {
		valid[otp.TOTP(seed, now.Add(time.Duration(step)*30*time.Second), otp.Config{})] = true
	}
	for _, candidate := range []string{"000000", "111111", "222222", "333333"} {
		if !valid[candidate] {
			return candidate
		}
	}
	return "999999" // Unreachable: at most three codes are valid at once
}

func TestVerifyLoginCode(t *testing.T) {
	t.Parallel()

	t.Run("valid code by user id", func(t *testing.T) {
		t.Parallel()
		env := newVerificationEnv(t)
		err := env.verifier.VerifyLoginCode(context.Background(), twofa.Identity{UserID: "u1"}, env.code())
		assert.NoError(t, err)
	})

	t.Run("valid code by email", func(t *testing.T) {
		t.Parallel()
		env := newVerificationEnv(t)
		err := env.verifier.VerifyLoginCode(context.Background(), twofa.Identity{Email: "a@b.com"}, env.code())
		assert.NoError(t, err)
	})

	t.Run("adjacent step accepted within skew", func(t *testing.T) {
		t.Parallel()
		env := newVerificationEnv(t)
		previous := otp.TOTP(env.seed, env.now.Add(-30*time.Second), otp.Config{})
		err := env.verifier.VerifyLoginCode(context.Background(), twofa.Identity{UserID: "u1"}, previous)
		assert.NoError(t, err)
	})

	t.Run("wrong code", func(t *testing.T) {
		t.Parallel()
		env := newVerificationEnv(t)
		err := env.verifier.VerifyLoginCode(context.Background(), twofa.Identity{UserID: "u1"}, env.wrongCode())
		assert.ErrorIs(t, err, twofa.ErrInvalidCode)
	})

	t.Run("unknown email", func(t *testing.T) {
		t.Parallel()
		env := newVerificationEnv(t)
		err := env.verifier.VerifyLoginCode(context.Background(), twofa.Identity{Email: "nobody@b.com"}, env.code())
		assert.ErrorIs(t, err, twofa.ErrUserNotFound)
	})

	t.Run("not enrolled", func(t *testing.T) {
		t.Parallel()
		env := newVerificationEnv(t)
		err := env.verifier.VerifyLoginCode(context.Background(), twofa.Identity{UserID: "u2"}, env.code())
		assert.ErrorIs(t, err, twofa.ErrNotEnrolled)
	})

	t.Run("disabled record", func(t *testing.T) {
		t.Parallel()
		env := newVerificationEnv(t)
		require.NoError(t, env.records.Disable(context.Background(), "u1"))
		err := env.verifier.VerifyLoginCode(context.Background(), twofa.Identity{UserID: "u1"}, env.code())
		assert.ErrorIs(t, err, twofa.ErrNotEnrolled)
	})

	t.Run("missing identity or code", func(t *testing.T) {
		t.Parallel()
		env := newVerificationEnv(t)
		err := env.verifier.VerifyLoginCode(context.Background(), twofa.Identity{}, env.code())
		assert.ErrorIs(t, err, twofa.ErrValidation)
		err = env.verifier.VerifyLoginCode(context.Background(), twofa.Identity{UserID: "u1"}, "")
		assert.ErrorIs(t, err, twofa.ErrValidation)
	})
}

func TestVerifyLoginCode_TamperedSecret(t *testing.T) {
	t.Parallel()

	env := newVerificationEnv(t)
	ctx := context.Background()

	record, err := env.records.Get(ctx, "u1")
	require.NoError(t, err)

	// Flip the payload's last character so authentication fails during
	// decryption. The caller must see only the generic failure.
	tampered := []byte(record.EncryptedSecret)
	if tampered[len(tampered)-1] == 'A' {
		tampered[len(tampered)-1] = 'B'
	} else {
		tampered[len(tampered)-1] = 'A'
	}
	record.EncryptedSecret = string(tampered)
	require.NoError(t, env.records.Upsert(ctx, *record))

	err = env.verifier.VerifyLoginCode(ctx, twofa.Identity{UserID: "u1"}, env.code())
	assert.ErrorIs(t, err, twofa.ErrVerificationFailed)

	// Same behavior for a payload that does not even parse.
	record.EncryptedSecret = "garbage"
	require.NoError(t, env.records.Upsert(ctx, *record))
	err = env.verifier.VerifyLoginCode(ctx, twofa.Identity{UserID: "u1"}, env.code())
	assert.ErrorIs(t, err, twofa.ErrVerificationFailed)
}

func TestVerifyLoginCode_RateLimit(t *testing.T) {
	t.Parallel()

	env := newVerificationEnv(t)
	ctx := context.Background()
	identity := twofa.Identity{UserID: "u1"}

	// Burn the window on wrong codes; the limiter counts them all.
	for i := 0; i < 5; i++ {
		err := env.verifier.VerifyLoginCode(ctx, identity, env.wrongCode())
		assert.ErrorIs(t, err, twofa.ErrInvalidCode)
	}

	// The sixth call is rejected before verification, even with the right
	// code in hand.
	err := env.verifier.VerifyLoginCode(ctx, identity, env.code())
	assert.ErrorIs(t, err, twofa.ErrRateLimited)

	var rateErr *twofa.RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Greater(t, rateErr.RetryAfter, time.Duration(0))

	// Another identity is unaffected.
	err = env.verifier.VerifyLoginCode(ctx, twofa.Identity{Email: "a@b.com"}, env.code())
	assert.NoError(t, err)
}

func TestVerificationService_AttemptsStatus(t *testing.T) {
	t.Parallel()

	env := newVerificationEnv(t)
	ctx := context.Background()
	identity := twofa.Identity{UserID: "u1"}

	status, err := env.verifier.AttemptsStatus(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, 5, status.Limit)
	assert.Equal(t, 5, status.Remaining)

	require.ErrorIs(t, env.verifier.VerifyLoginCode(ctx, identity, env.wrongCode()), twofa.ErrInvalidCode)

	// Status reads do not consume attempts.
	for i := 0; i < 3; i++ {
		status, err = env.verifier.AttemptsStatus(ctx, identity)
		require.NoError(t, err)
		assert.Equal(t, 4, status.Remaining)
	}

	_, err = env.verifier.AttemptsStatus(ctx, twofa.Identity{})
	assert.ErrorIs(t, err, twofa.ErrValidation)
}

func TestVerificationService_ResetAttempts(t *testing.T) {
	t.Parallel()

	env := newVerificationEnv(t)
	ctx := context.Background()
	identity := twofa.Identity{UserID: "u1"}

	for i := 0; i < 5; i++ {
		require.ErrorIs(t, env.verifier.VerifyLoginCode(ctx, identity, env.wrongCode()), twofa.ErrInvalidCode)
	}
	require.ErrorIs(t, env.verifier.VerifyLoginCode(ctx, identity, env.code()), twofa.ErrRateLimited)

	require.NoError(t, env.verifier.ResetAttempts(ctx, identity))

	err := env.verifier.VerifyLoginCode(ctx, identity, env.code())
	assert.NoError(t, err)
}

func TestNewVerificationService_Validation(t *testing.T) {
	t.Parallel()

	records := twofa.NewMemorySecurityRecordStore()
	users := twofa.NewMemoryUserDirectory(nil)
	cipher := newTestCipher(t)

	_, err := twofa.NewVerificationService(testConfig(), nil, users, cipher, nil)
	assert.ErrorIs(t, err, twofa.ErrValidation)

	_, err = twofa.NewVerificationService(testConfig(), records, nil, cipher, nil)
	assert.ErrorIs(t, err, twofa.ErrValidation)

	_, err = twofa.NewVerificationService(testConfig(), records, users, nil, nil)
	assert.ErrorIs(t, err, secrets.ErrKeyNotConfigured)
}

package twofa_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/twofa/modules/twofa"
)

func TestMemoryTokenStore_Create(t *testing.T) {
	t.Parallel()

	store := twofa.NewMemoryTokenStore()
	now := time.Now()

	token, err := store.Create(context.Background(), twofa.CreateTokenParams{
		UserID:      "u1",
		Email:       "a@b.com",
		ServiceName: "ExampleApp",
	}, now, twofa.DefaultTokenTTL)
	require.NoError(t, err)

	assert.NotEmpty(t, token.Token)
	assert.GreaterOrEqual(t, len(token.Token), 40) // 32 random bytes, base64url
	assert.Equal(t, twofa.StatusPending, token.Status)
	assert.Equal(t, "u1", token.UserID)
	assert.Equal(t, "a@b.com", token.Email)
	assert.Equal(t, now.Add(twofa.DefaultTokenTTL), token.ExpiresAt)
	assert.Nil(t, token.CompletedAt)

	// Token strings are unique per enrollment.
	other, err := store.Create(context.Background(), twofa.CreateTokenParams{
		UserID: "u1",
		Email:  "a@b.com",
	}, now, twofa.DefaultTokenTTL)
	require.NoError(t, err)
	assert.NotEqual(t, token.Token, other.Token)
}

func TestMemoryTokenStore_Get(t *testing.T) {
	t.Parallel()

	store := twofa.NewMemoryTokenStore()
	now := time.Now()

	created, err := store.Create(context.Background(), twofa.CreateTokenParams{
		UserID: "u1",
		Email:  "a@b.com",
	}, now, time.Hour)
	require.NoError(t, err)

	got, err := store.Get(context.Background(), created.Token)
	require.NoError(t, err)
	assert.Equal(t, created.Token, got.Token)
	assert.Equal(t, twofa.StatusPending, got.Status)

	// Mutating the returned copy must not leak into the store.
	got.Status = twofa.StatusCompleted
	again, err := store.Get(context.Background(), created.Token)
	require.NoError(t, err)
	assert.Equal(t, twofa.StatusPending, again.Status)

	_, err = store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, twofa.ErrTokenNotFound)
}

func TestMemoryTokenStore_CompletePending(t *testing.T) {
	t.Parallel()

	store := twofa.NewMemoryTokenStore()
	now := time.Now()

	created, err := store.Create(context.Background(), twofa.CreateTokenParams{
		UserID: "u1",
		Email:  "a@b.com",
	}, now, time.Hour)
	require.NoError(t, err)

	completedAt := now.Add(time.Minute)
	completed, err := store.CompletePending(context.Background(), created.Token, "seed-1", "enc-snapshot", completedAt)
	require.NoError(t, err)
	assert.Equal(t, twofa.StatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)
	assert.Equal(t, completedAt, *completed.CompletedAt)
	assert.Equal(t, "seed-1", completed.ExternalSeedID)
	assert.Equal(t, "enc-snapshot", completed.EncryptedSecretSnapshot)

	// A second completion must lose and leave the stored snapshot intact.
	_, err = store.CompletePending(context.Background(), created.Token, "seed-2", "other-snapshot", completedAt.Add(time.Minute))
	assert.ErrorIs(t, err, twofa.ErrTokenAlreadyUsed)

	stored, err := store.Get(context.Background(), created.Token)
	require.NoError(t, err)
	assert.Equal(t, "seed-1", stored.ExternalSeedID)
	assert.Equal(t, "enc-snapshot", stored.EncryptedSecretSnapshot)
	assert.Equal(t, completedAt, *stored.CompletedAt)
}

func TestMemoryTokenStore_RejectPending(t *testing.T) {
	t.Parallel()

	store := twofa.NewMemoryTokenStore()
	now := time.Now()

	created, err := store.Create(context.Background(), twofa.CreateTokenParams{
		UserID: "u1",
		Email:  "a@b.com",
	}, now, time.Hour)
	require.NoError(t, err)

	rejected, err := store.RejectPending(context.Background(), created.Token, "user declined", now)
	require.NoError(t, err)
	assert.Equal(t, twofa.StatusRejected, rejected.Status)
	assert.Equal(t, "user declined", rejected.RejectReason)

	// Rejected is terminal: neither completion nor a second rejection land.
	_, err = store.CompletePending(context.Background(), created.Token, "seed", "snap", now)
	assert.ErrorIs(t, err, twofa.ErrTokenAlreadyUsed)
	_, err = store.RejectPending(context.Background(), created.Token, "again", now)
	assert.ErrorIs(t, err, twofa.ErrTokenAlreadyUsed)
}

func TestToken_EffectiveStatus(t *testing.T) {
	t.Parallel()

	now := time.Now()
	token := &twofa.Token{
		Status:    twofa.StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}

	assert.Equal(t, twofa.StatusPending, token.EffectiveStatus(now))
	assert.Equal(t, twofa.StatusPending, token.EffectiveStatus(now.Add(time.Hour)))
	assert.Equal(t, twofa.StatusExpired, token.EffectiveStatus(now.Add(time.Hour+time.Second)))

	// Terminal states never flip to expired, however old they get.
	completedAt := now.Add(time.Minute)
	token.Status = twofa.StatusCompleted
	token.CompletedAt = &completedAt
	assert.Equal(t, twofa.StatusCompleted, token.EffectiveStatus(now.Add(48*time.Hour)))
}

func TestMemoryTokenStore_ConcurrentCompletion(t *testing.T) {
	t.Parallel()

	store := twofa.NewMemoryTokenStore()
	now := time.Now()

	created, err := store.Create(context.Background(), twofa.CreateTokenParams{
		UserID: "u1",
		Email:  "a@b.com",
	}, now, time.Hour)
	require.NoError(t, err)

	const racers = 32

	var wg sync.WaitGroup
	var mu sync.Mutex
	var wins, losses int

	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func() {
			defer wg.Done()
			_, err := store.CompletePending(context.Background(), created.Token, "seed", "snap", now)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			default:
				losses++
				assert.ErrorIs(t, err, twofa.ErrTokenAlreadyUsed)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, racers-1, losses)
}

func TestMemorySecurityRecordStore(t *testing.T) {
	t.Parallel()

	store := twofa.NewMemorySecurityRecordStore()
	ctx := context.Background()

	_, err := store.Get(ctx, "u1")
	assert.ErrorIs(t, err, twofa.ErrRecordNotFound)

	record := twofa.SecurityRecord{
		UserID:          "u1",
		EncryptedSecret: "payload",
		Enabled:         true,
		ExternalSeedID:  "seed-1",
		EnrolledAt:      time.Now(),
	}
	require.NoError(t, store.Upsert(ctx, record))

	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	assert.Equal(t, "payload", got.EncryptedSecret)

	// Re-enrollment replaces the previous record wholesale.
	record.EncryptedSecret = "payload-2"
	record.ExternalSeedID = "seed-2"
	require.NoError(t, store.Upsert(ctx, record))

	got, err = store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "payload-2", got.EncryptedSecret)
	assert.Equal(t, "seed-2", got.ExternalSeedID)

	// Disable clears the secret and the flag together.
	require.NoError(t, store.Disable(ctx, "u1"))
	got, err = store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.Empty(t, got.EncryptedSecret)

	assert.ErrorIs(t, store.Disable(ctx, "missing"), twofa.ErrRecordNotFound)
}

package twofa

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresTokenStore is the pgx-backed TokenRepository. The
// transition-if-pending guarantee comes from guarded UPDATE statements
// (WHERE status = 'pending'), so racing callers resolve inside the database
// and exactly one wins.
type PostgresTokenStore struct {
	pool *pgxpool.Pool
}

// NewPostgresTokenStore creates a token store over the given pool.
func NewPostgresTokenStore(pool *pgxpool.Pool) *PostgresTokenStore {
	return &PostgresTokenStore{pool: pool}
}

const tokenColumns = `token, user_id, email, service_name, callback_url, status,
	created_at, expires_at, completed_at, external_seed_id, encrypted_secret_snapshot, reject_reason`

func scanToken(row pgx.Row) (*Token, error) {
	var t Token
	var status string
	err := row.Scan(
		&t.Token, &t.UserID, &t.Email, &t.ServiceName, &t.CallbackURL, &status,
		&t.CreatedAt, &t.ExpiresAt, &t.CompletedAt, &t.ExternalSeedID, &t.EncryptedSecretSnapshot, &t.RejectReason,
	)
	if err != nil {
		return nil, err
	}
	t.Status = Status(status)
	return &t, nil
}

// Create implements TokenRepository.
func (s *PostgresTokenStore) Create(ctx context.Context, params CreateTokenParams, now time.Time, ttl time.Duration) (*Token, error) {
	tokenString, err := newTokenString()
	if err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO twofa_enrollment_tokens
			(id, token, user_id, email, service_name, callback_url, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+tokenColumns,
		uuid.New(), tokenString, params.UserID, params.Email, params.ServiceName, params.CallbackURL,
		string(StatusPending), now, now.Add(ttl),
	)
	return scanToken(row)
}

// Get implements TokenRepository.
func (s *PostgresTokenStore) Get(ctx context.Context, token string) (*Token, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM twofa_enrollment_tokens WHERE token = $1`,
		token,
	)
	t, err := scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// CompletePending implements TokenRepository.
func (s *PostgresTokenStore) CompletePending(ctx context.Context, token, externalSeedID, encryptedSecretSnapshot string, now time.Time) (*Token, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE twofa_enrollment_tokens
		SET status = $2, completed_at = $3, external_seed_id = $4, encrypted_secret_snapshot = $5
		WHERE token = $1 AND status = $6
		RETURNING `+tokenColumns,
		token, string(StatusCompleted), now, externalSeedID, encryptedSecretSnapshot, string(StatusPending),
	)
	t, err := scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.transitionFailure(ctx, token)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// RejectPending implements TokenRepository.
func (s *PostgresTokenStore) RejectPending(ctx context.Context, token, reason string, now time.Time) (*Token, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE twofa_enrollment_tokens
		SET status = $2, reject_reason = $3
		WHERE token = $1 AND status = $4
		RETURNING `+tokenColumns,
		token, string(StatusRejected), reason, string(StatusPending),
	)
	t, err := scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.transitionFailure(ctx, token)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// transitionFailure distinguishes a missing token from one already in a
// terminal state after a guarded UPDATE matched no rows.
func (s *PostgresTokenStore) transitionFailure(ctx context.Context, token string) error {
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT status FROM twofa_enrollment_tokens WHERE token = $1`,
		token,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrTokenNotFound
	}
	if err != nil {
		return err
	}
	return ErrTokenAlreadyUsed
}

// PostgresSecurityRecordStore is the pgx-backed SecurityRecordRepository.
type PostgresSecurityRecordStore struct {
	pool *pgxpool.Pool
}

// NewPostgresSecurityRecordStore creates a record store over the given pool.
func NewPostgresSecurityRecordStore(pool *pgxpool.Pool) *PostgresSecurityRecordStore {
	return &PostgresSecurityRecordStore{pool: pool}
}

// Get implements SecurityRecordRepository.
func (s *PostgresSecurityRecordStore) Get(ctx context.Context, userID string) (*SecurityRecord, error) {
	var r SecurityRecord
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, encrypted_secret, enabled, external_seed_id, enrolled_at
		FROM twofa_security_records WHERE user_id = $1`,
		userID,
	).Scan(&r.UserID, &r.EncryptedSecret, &r.Enabled, &r.ExternalSeedID, &r.EnrolledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Upsert implements SecurityRecordRepository. The single statement writes
// enabled and the encrypted secret together, preserving the invariant that
// the two fields never change independently.
func (s *PostgresSecurityRecordStore) Upsert(ctx context.Context, record SecurityRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO twofa_security_records (id, user_id, encrypted_secret, enabled, external_seed_id, enrolled_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			encrypted_secret = EXCLUDED.encrypted_secret,
			enabled = EXCLUDED.enabled,
			external_seed_id = EXCLUDED.external_seed_id,
			enrolled_at = EXCLUDED.enrolled_at`,
		uuid.New(), record.UserID, record.EncryptedSecret, record.Enabled, record.ExternalSeedID, record.EnrolledAt,
	)
	return err
}

// Disable implements SecurityRecordRepository.
func (s *PostgresSecurityRecordStore) Disable(ctx context.Context, userID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE twofa_security_records
		SET encrypted_secret = '', enabled = FALSE, external_seed_id = ''
		WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

package twofa

import (
	"context"
	"sync"
	"time"
)

// MemoryTokenStore is an in-process TokenRepository for tests and single-node
// development. The store mutex makes transition-if-pending atomic, matching
// the guarantee the SQL implementation gets from a guarded UPDATE.
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*Token
}

// NewMemoryTokenStore creates an empty in-memory token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]*Token)}
}

// Create implements TokenRepository.
func (s *MemoryTokenStore) Create(ctx context.Context, params CreateTokenParams, now time.Time, ttl time.Duration) (*Token, error) {
	tokenString, err := newTokenString()
	if err != nil {
		return nil, err
	}

	token := &Token{
		Token:       tokenString,
		UserID:      params.UserID,
		Email:       params.Email,
		ServiceName: params.ServiceName,
		CallbackURL: params.CallbackURL,
		Status:      StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}

	s.mu.Lock()
	s.tokens[tokenString] = token
	s.mu.Unlock()

	copied := *token
	return &copied, nil
}

// Get implements TokenRepository.
func (s *MemoryTokenStore) Get(ctx context.Context, token string) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.tokens[token]
	if !ok {
		return nil, ErrTokenNotFound
	}
	copied := *stored
	return &copied, nil
}

// CompletePending implements TokenRepository.
func (s *MemoryTokenStore) CompletePending(ctx context.Context, token, externalSeedID, encryptedSecretSnapshot string, now time.Time) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.tokens[token]
	if !ok {
		return nil, ErrTokenNotFound
	}
	if stored.Status != StatusPending {
		return nil, ErrTokenAlreadyUsed
	}

	stored.Status = StatusCompleted
	stored.CompletedAt = &now
	stored.ExternalSeedID = externalSeedID
	stored.EncryptedSecretSnapshot = encryptedSecretSnapshot

	copied := *stored
	return &copied, nil
}

// RejectPending implements TokenRepository.
func (s *MemoryTokenStore) RejectPending(ctx context.Context, token, reason string, now time.Time) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.tokens[token]
	if !ok {
		return nil, ErrTokenNotFound
	}
	if stored.Status != StatusPending {
		return nil, ErrTokenAlreadyUsed
	}

	stored.Status = StatusRejected
	stored.RejectReason = reason

	copied := *stored
	return &copied, nil
}

// MemorySecurityRecordStore is an in-process SecurityRecordRepository.
type MemorySecurityRecordStore struct {
	mu      sync.RWMutex
	records map[string]SecurityRecord
}

// NewMemorySecurityRecordStore creates an empty in-memory record store.
func NewMemorySecurityRecordStore() *MemorySecurityRecordStore {
	return &MemorySecurityRecordStore{records: make(map[string]SecurityRecord)}
}

// Get implements SecurityRecordRepository.
func (s *MemorySecurityRecordStore) Get(ctx context.Context, userID string) (*SecurityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[userID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &record, nil
}

// Upsert implements SecurityRecordRepository.
func (s *MemorySecurityRecordStore) Upsert(ctx context.Context, record SecurityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.UserID] = record
	return nil
}

// Disable implements SecurityRecordRepository.
func (s *MemorySecurityRecordStore) Disable(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[userID]
	if !ok {
		return ErrRecordNotFound
	}
	record.EncryptedSecret = ""
	record.Enabled = false
	record.ExternalSeedID = ""
	s.records[userID] = record
	return nil
}

// MemoryUserDirectory is a UserDirectory backed by a static email → user-id
// map, for tests and examples.
type MemoryUserDirectory struct {
	mu    sync.RWMutex
	users map[string]string
}

// NewMemoryUserDirectory creates a directory with the given email → user-id
// entries.
func NewMemoryUserDirectory(users map[string]string) *MemoryUserDirectory {
	m := make(map[string]string, len(users))
	for email, id := range users {
		m[email] = id
	}
	return &MemoryUserDirectory{users: m}
}

// Add registers an email → user-id entry.
func (d *MemoryUserDirectory) Add(email, userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[email] = userID
}

// UserIDByEmail implements UserDirectory.
func (d *MemoryUserDirectory) UserIDByEmail(ctx context.Context, email string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.users[email]
	if !ok {
		return "", ErrUserNotFound
	}
	return id, nil
}

package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// MemoryStore is the in-process Store implementation. It keeps per-key
// timestamp slices and prunes stale keys opportunistically on a fraction of
// calls instead of from a background goroutine, so the store needs no
// lifecycle management and memory stays bounded under churn.
type MemoryStore struct {
	mu      sync.RWMutex
	windows map[string]*memoryWindow

	pruneChance     float64
	initialCapacity int
}

type memoryWindow struct {
	mu         sync.Mutex
	timestamps []time.Time
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithPruneChance sets the probability (0..1] that a call triggers a sweep of
// stale keys.
func WithPruneChance(chance float64) MemoryStoreOption {
	return func(s *MemoryStore) {
		if chance > 0 && chance <= 1 {
			s.pruneChance = chance
		}
	}
}

// WithInitialCapacity sets the initial capacity of per-key timestamp slices.
func WithInitialCapacity(capacity int) MemoryStoreOption {
	return func(s *MemoryStore) {
		if capacity > 0 {
			s.initialCapacity = capacity
		}
	}
}

// NewMemoryStore creates an in-memory sliding-window store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		windows:         make(map[string]*memoryWindow),
		pruneChance:     0.01,
		initialCapacity: 8,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordIfAllowed implements Store.
func (s *MemoryStore) RecordIfAllowed(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (bool, int64, error) {
	s.mu.Lock()
	w, exists := s.windows[key]
	if !exists {
		w = &memoryWindow{timestamps: make([]time.Time, 0, s.initialCapacity)}
		s.windows[key] = w
	}
	s.mu.Unlock()

	w.mu.Lock()
	w.trim(now.Add(-window))
	count := int64(len(w.timestamps))
	allowed := count < int64(limit)
	if allowed {
		w.timestamps = append(w.timestamps, now)
		count++
	}
	w.mu.Unlock()

	if rand.Float64() < s.pruneChance {
		s.prune(now.Add(-window))
	}

	return allowed, count, nil
}

// CountInWindow implements Store.
func (s *MemoryStore) CountInWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	s.mu.RLock()
	w, exists := s.windows[key]
	s.mu.RUnlock()

	if !exists {
		return 0, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.trim(time.Now().Add(-window))
	return int64(len(w.timestamps)), nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}

// Len reports the number of tracked keys. Exposed for pruning tests.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.windows)
}

// trim drops timestamps at or before cutoff. Caller holds w.mu.
func (w *memoryWindow) trim(cutoff time.Time) {
	kept := w.timestamps[:0]
	for _, ts := range w.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.timestamps = kept
}

// prune removes keys whose windows hold no timestamp newer than cutoff.
func (s *MemoryStore) prune(cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, w := range s.windows {
		w.mu.Lock()
		w.trim(cutoff)
		if len(w.timestamps) == 0 {
			delete(s.windows, key)
		}
		w.mu.Unlock()
	}
}

package ratelimit

import (
	"context"
	"time"
)

// Result contains the outcome of a rate limit check.
type Result struct {
	// Allowed indicates whether the call was admitted into the window.
	Allowed bool

	// Limit is the maximum number of calls allowed in the window.
	Limit int

	// Remaining is the number of calls left in the current window.
	Remaining int

	// ResetAt is when the window that contained this call fully elapses.
	ResetAt time.Time
}

// RetryAfter returns how long to wait before the next call may be admitted.
// Returns 0 if the current call was allowed.
func (r *Result) RetryAfter() time.Duration {
	if r.Allowed {
		return 0
	}
	return time.Until(r.ResetAt)
}

// Store is the storage backend for sliding-window counters. Implementations
// must keep RecordIfAllowed atomic per key so concurrent callers from
// multiple processes never lose counts.
type Store interface {
	// RecordIfAllowed atomically counts the timestamps inside the window
	// ending at now and, if the count is below limit, records now as a new
	// entry. It returns whether the entry was recorded together with the
	// resulting in-window count.
	RecordIfAllowed(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (allowed bool, count int64, err error)

	// CountInWindow returns the number of recorded timestamps still inside
	// the window, without recording anything.
	CountInWindow(ctx context.Context, key string, window time.Duration) (int64, error)

	// Delete removes all state for the given key.
	Delete(ctx context.Context, key string) error
}

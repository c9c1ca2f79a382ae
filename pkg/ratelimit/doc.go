// Package ratelimit provides the sliding-window attempt limiter used by the
// two-factor verification path.
//
// The limiter tracks individual call timestamps inside a moving window, which
// makes it exact at window boundaries. Check is deliberately
// check-and-increment: an admitted call records itself, so every consultation
// counts as an attempt no matter what the caller does with the result.
//
// Storage is behind the Store interface so deployments can share limiter
// state between instances. Two implementations ship with the package:
//
//   - MemoryStore, a mutex-guarded in-process map whose stale keys are pruned
//     opportunistically on a fraction of calls rather than by a background
//     goroutine.
//   - RedisStore, a sorted-set window driven by a single Lua script so
//     check-and-record stays atomic across processes.
//
// Usage:
//
//	limiter, _ := ratelimit.NewSlidingWindow(ratelimit.NewMemoryStore(), 5, 15*time.Minute)
//	res, err := limiter.Check(ctx, "totp:"+userID)
//	if err != nil || !res.Allowed {
//		// reject, optionally surfacing res.RetryAfter()
//	}
package ratelimit

package ratelimit

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// recordScript trims the sorted-set window, counts the survivors and records
// the new timestamp only when the count is under the limit. Running as a
// single script keeps check-and-record atomic across processes sharing the
// same Redis, so concurrent increments never lose counts.
var recordScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
	redis.call('ZADD', key, now, ARGV[4])
	count = count + 1
	allowed = 1
end
redis.call('PEXPIRE', key, window)
return {allowed, count}
`)

// RedisStore is a Store backed by a Redis sorted set per key, for
// deployments where multiple instances must share limiter state. Keys expire
// one window after their last activity, so Redis bounds memory on its own.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix sets the Redis key prefix, default "ratelimit:".
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRedisStore creates a Redis-backed sliding-window store.
func NewRedisStore(client redis.UniversalClient, opts ...RedisStoreOption) (*RedisStore, error) {
	if client == nil {
		return nil, ErrStoreRequired
	}
	s := &RedisStore{
		client: client,
		prefix: "ratelimit:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RecordIfAllowed implements Store.
func (s *RedisStore) RecordIfAllowed(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (bool, int64, error) {
	member, err := uniqueMember(now)
	if err != nil {
		return false, 0, errors.Join(ErrStoreUnavailable, err)
	}

	res, err := recordScript.Run(ctx, s.client, []string{s.prefix + key},
		now.UnixMilli(),
		window.Milliseconds(),
		limit,
		member,
	).Int64Slice()
	if err != nil {
		return false, 0, errors.Join(ErrStoreUnavailable, err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("%w: unexpected script reply", ErrStoreUnavailable)
	}

	return res[0] == 1, res[1], nil
}

// CountInWindow implements Store.
func (s *RedisStore) CountInWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	cutoff := time.Now().Add(-window).UnixMilli()
	count, err := s.client.ZCount(ctx, s.prefix+key, strconv.FormatInt(cutoff+1, 10), "+inf").Result()
	if err != nil {
		return 0, errors.Join(ErrStoreUnavailable, err)
	}
	return count, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

// uniqueMember builds a sorted-set member that cannot collide even when two
// calls share the same millisecond score.
func uniqueMember(now time.Time) (string, error) {
	var salt [4]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return "", err
	}
	return strconv.FormatInt(now.UnixNano(), 36) + "-" + hex.EncodeToString(salt[:]), nil
}

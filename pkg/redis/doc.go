// Package redis connects the module to the Redis instance backing the shared
// rate-limiter store. Configuration comes from REDIS_* environment variables.
package redis

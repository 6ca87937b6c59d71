// Package redislock provides a redis-backed lease used for cross-instance
// mutual exclusion. This is part of the platform layer and contains no
// business logic.
package redislock

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease only when it is still held by the caller,
// so an expired lease reacquired by another instance is never released here.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Lock is a single-holder lease identified by key. Acquire is non-blocking:
// callers that fail to acquire are expected to skip their work, not wait.
type Lock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// Lease represents a held lock and releases it on Release.
type Lease struct {
	lock  *Lock
	token string
}

// New creates a Lock on the given redis client.
func New(client *redis.Client, key string, ttl time.Duration) *Lock {
	return &Lock{client: client, key: key, ttl: ttl}
}

// NewClient builds a redis client from a redis URL.
func NewClient(redisURL string, tlsInsecure bool) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	if opt.TLSConfig != nil && tlsInsecure {
		clone := opt.TLSConfig.Clone()
		clone.InsecureSkipVerify = true
		opt.TLSConfig = clone
	} else if opt.TLSConfig == nil && tlsInsecure {
		opt.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return redis.NewClient(opt), nil
}

// Acquire attempts to take the lease. It returns (nil, false, nil) when the
// lease is currently held elsewhere.
func (l *Lock) Acquire(ctx context.Context) (*Lease, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &Lease{lock: l, token: token}, true, nil
}

// Release gives the lease back if this holder still owns it.
func (le *Lease) Release(ctx context.Context) error {
	if le == nil || le.lock == nil {
		return nil
	}
	return releaseScript.Run(ctx, le.lock.client, []string{le.lock.key}, le.token).Err()
}

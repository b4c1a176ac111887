package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockNotAcquired is returned when a lock cannot be acquired before the wait timeout
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld is returned when releasing a lock owned by someone else
	ErrLockNotHeld = errors.New("lock not held")
)

// releaseScript deletes the lock only if the caller still owns it
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Locker provides distributed locks backed by SET NX. Acquire waits with
// exponential backoff up to the configured timeout; concurrent resolutions on
// the same identifier serialize behind the lock rather than failing fast.
type Locker struct {
	client      *Client
	keyPrefix   string
	waitTimeout time.Duration
}

// NewLocker creates a new Locker
func NewLocker(client *Client, keyPrefix string, waitTimeout time.Duration) *Locker {
	if keyPrefix == "" {
		keyPrefix = "lock:"
	}
	if waitTimeout <= 0 {
		waitTimeout = 5 * time.Second
	}
	return &Locker{
		client:      client,
		keyPrefix:   keyPrefix,
		waitTimeout: waitTimeout,
	}
}

// Acquire takes the lock and returns a release function. Release is safe to
// call after the TTL expires; it only deletes the key if still owned.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	lockKey := l.keyPrefix + key
	lockValue := uuid.New().String()

	deadline := time.Now().Add(l.waitTimeout)
	backoff := 10 * time.Millisecond

	for {
		ok, err := l.client.rdb.SetNX(ctx, lockKey, lockValue, ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > 500*time.Millisecond {
				backoff = 500 * time.Millisecond
			}
		}
	}

	l.client.logger.WithContext(ctx).Debugf("Acquired lock: %s", key)

	return func(ctx context.Context) error {
		result, err := releaseScript.Run(ctx, l.client.rdb, []string{lockKey}, lockValue).Int64()
		if err != nil {
			return err
		}
		if result == 0 {
			return ErrLockNotHeld
		}
		l.client.logger.WithContext(ctx).Debugf("Released lock: %s", key)
		return nil
	}, nil
}

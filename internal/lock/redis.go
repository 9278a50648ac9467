// Package lock serialises checkout work per order across processes.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "checkout:lock:"

var ErrLockNotAcquired = errors.New("order is locked by another operation")

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl}
}

func Key(orderID string) string {
	return keyPrefix + orderID
}

// Acquire takes the lock without waiting. The lock expires after the TTL if
// the holder never releases it.
func (l *RedisLocker) Acquire(ctx context.Context, orderID string) (func(context.Context) error, error) {
	key := Key(orderID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockNotAcquired, orderID)
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("release %s: %w", key, err)
		}
		return nil
	}
	return release, nil
}

// NoopLocker never blocks.
type NoopLocker struct{}

func (NoopLocker) Acquire(ctx context.Context, orderID string) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}

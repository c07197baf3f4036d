package verification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serialises verification of a single payment across goroutines and
// replicas.
type Locker interface {
	// Acquire returns a release func when the lock was taken, nil when it is
	// held elsewhere.
	Acquire(ctx context.Context, paymentID string) (release func(), err error)
}

// releaseScript deletes the key only if it still holds our token, so an
// expired lock re-taken by another replica is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type lockClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

type RedisLocker struct {
	client lockClient
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl}
}

func lockKey(paymentID string) string {
	return fmt.Sprintf("mobile_money:verify_lock:%s", paymentID)
}

func (l *RedisLocker) Acquire(ctx context.Context, paymentID string) (func(), error) {
	key := lockKey(paymentID)
	token := uuid.NewString()

	locked, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire verification lock: %w", err)
	}
	if !locked {
		return nil, nil
	}

	return func() {
		// Release on a fresh context so a cancelled caller still frees the key.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
	}, nil
}

// NopLocker always grants the lock. The store's compare-and-swap still keeps
// transitions monotonic without it.
type NopLocker struct{}

func (NopLocker) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}

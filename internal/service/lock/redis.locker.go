package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	defaultLockTTL           = 30 * time.Second
	defaultLockRetryInterval = 50 * time.Millisecond
	lockKeyPrefix            = "signal-order:lock:"
)

var (
	ErrRedisDSNMissing = errors.New("redis cache_dsn is required")
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

// RedisLocker serializes a key across processes. The lock expires after ttl so a
// crashed holder cannot block the key forever. Only the owner can release it.
type RedisLocker struct {
	client        redis.UniversalClient
	ttl           time.Duration
	retryInterval time.Duration
}

func NewRedisClient(cacheDSN string) (*redis.Client, error) {
	if cacheDSN == "" {
		return nil, ErrRedisDSNMissing
	}

	options, err := redis.ParseURL(cacheDSN)
	if err != nil {
		return nil, fmt.Errorf("parse redis cache_dsn: %w", err)
	}

	return redis.NewClient(options), nil
}

func NewRedisLocker(client redis.UniversalClient, ttl, retryInterval time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if retryInterval <= 0 {
		retryInterval = defaultLockRetryInterval
	}

	return &RedisLocker{client: client, ttl: ttl, retryInterval: retryInterval}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := lockKeyPrefix + key
	owner := uuid.NewString()

	ticker := time.NewTicker(l.retryInterval)
	defer ticker.Stop()

	for {
		acquired, err := l.client.SetNX(ctx, lockKey, owner, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if acquired {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), l.retryInterval*20)
		defer cancel()

		_, err := releaseScript.Run(releaseCtx, l.client, []string{lockKey}, owner).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			logrus.WithField("key", key).WithError(err).Warn("failed to release lock")
		}
	}, nil
}

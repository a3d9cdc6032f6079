package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLock is a best-effort lease shared by every instance pointed at the same Redis.
type RedisLock struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

// NewRedisLock builds a lease on key. ttl bounds how long a crashed holder blocks others.
func NewRedisLock(client redis.Cmdable, key string, ttl time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisLock{client: client, key: key, ttl: ttl}
}

// TryAcquire returns a release func when the lease was taken, or ok=false when
// another holder has it.
func (l *RedisLock) TryAcquire(ctx context.Context) (release func(context.Context) error, ok bool, err error) {
	token := uuid.NewString()
	acquired, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	if !acquired {
		return nil, false, nil
	}
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil && err != redis.Nil {
			return fmt.Errorf("release lock %s: %w", l.key, err)
		}
		return nil
	}, true, nil
}

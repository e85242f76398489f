package locks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lease cannot remove a lock taken over by another holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisLocker stores locks under prefix, joined to each key by a colon.
func NewRedisLocker(client redis.UniversalClient, prefix string) *RedisLocker {
	prefix = strings.TrimRight(prefix, ":")
	if prefix == "" {
		prefix = "courtbooking:lock"
	}
	return &RedisLocker{client: client, prefix: prefix}
}

func (r *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error) {
	token := uuid.NewString()
	fullKey := r.lockKey(key)

	ok, err := r.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx failed: %w", err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, r.client, []string{fullKey}, token).Err(); err != nil && err != redis.Nil {
			return fmt.Errorf("redis release failed: %w", err)
		}
		return nil
	}, nil
}

func (r *RedisLocker) lockKey(key string) string {
	return fmt.Sprintf("%s:%s", r.prefix, key)
}

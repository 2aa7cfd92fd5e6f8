package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSourceStore is a Redis-backed SourceStore for multi-instance
// deployments. Key expiry gives the fixed window its reset.
type RedisSourceStore struct {
	client redis.Cmdable
}

func NewRedisSourceStore(client redis.Cmdable) *RedisSourceStore {
	return &RedisSourceStore{client: client}
}

func (s *RedisSourceStore) Incr(ctx context.Context, key string, window time.Duration) (int, error) {
	redisKey := "ratelimit:source:" + key

	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return 0, fmt.Errorf("incr rate limit key: %w", err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, redisKey, window).Err(); err != nil {
			return 0, fmt.Errorf("set rate limit window: %w", err)
		}
	}
	return int(count), nil
}

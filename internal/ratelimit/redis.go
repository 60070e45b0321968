package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "blogsphere:ratelimit"

// RedisLimiter shares attempt windows between processes using one sorted set
// per key, scored by attempt time in milliseconds.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	clock  func() time.Time
}

// NewRedisLimiter wraps an existing go-redis client. An empty prefix selects
// the default key namespace.
func NewRedisLimiter(client *redis.Client, prefix string) (*RedisLimiter, error) {
	if client == nil {
		return nil, errors.New("ratelimit: redis client is required")
	}
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisLimiter{client: client, prefix: prefix, clock: time.Now}, nil
}

func (l *RedisLimiter) redisKey(key string) string {
	return fmt.Sprintf("%s:%s", l.prefix, key)
}

func (l *RedisLimiter) IsLimited(ctx context.Context, key string, max int, window time.Duration) (bool, error) {
	max, window = normalize(max, window)

	now := l.clock()
	nowMs := now.UnixMilli()
	cutoff := now.Add(-window).UnixMilli()
	redisKey := l.redisKey(key)

	pipe := l.client.TxPipeline()
	// Members must be unique so attempts in the same millisecond all count.
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(nowMs), Member: uuid.NewString()})
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", "("+strconv.FormatInt(cutoff, 10))
	count := pipe.ZCard(ctx, redisKey)
	pipe.PExpire(ctx, redisKey, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("ratelimit: record attempt: %w", err)
	}

	return count.Val() > int64(max), nil
}

func (l *RedisLimiter) Clear(ctx context.Context) error {
	var cursor uint64
	pattern := l.redisKey("*")

	for {
		keys, next, err := l.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("ratelimit: scan keys: %w", err)
		}
		if len(keys) > 0 {
			if err := l.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("ratelimit: delete keys: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (l *RedisLimiter) ClearKey(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("ratelimit: delete key: %w", err)
	}
	return nil
}

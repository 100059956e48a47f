package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores idempotency records in Redis with a TTL equal to the
// retention window. Redis evicts expired records itself, so there is no
// sweep task.
type RedisCache struct {
	client *redis.Client
	window time.Duration
	prefix string
}

func NewRedisCache(url string, window time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &RedisCache{
		client: redis.NewClient(opts),
		window: window,
		prefix: "briefline:idem:",
	}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Put(ctx context.Context, key string, result []byte) error {
	return c.client.Set(ctx, c.prefix+key, result, c.window).Err()
}

func (c *RedisCache) Stop() {
	_ = c.client.Close()
}

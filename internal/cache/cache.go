package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrMiss = errors.New("cache miss")

// Cache stores JSON values of type T under prefix:key. A nil redis client makes every call a miss.
type Cache[T any] struct {
	rc     *redis.Client
	prefix string
	ttl    time.Duration
}

func New[T any](rc *redis.Client, prefix string, ttl time.Duration) *Cache[T] {
	return &Cache[T]{rc: rc, prefix: prefix, ttl: ttl}
}

func (c *Cache[T]) Key(key string) string {
	return fmt.Sprintf("%s:%s", c.prefix, key)
}

func (c *Cache[T]) Get(ctx context.Context, key string) (*T, error) {
	if c == nil || c.rc == nil {
		return nil, ErrMiss
	}
	raw, err := c.rc.Get(ctx, c.Key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache: %w", err)
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}
	return &v, nil
}

func (c *Cache[T]) Set(ctx context.Context, key string, v *T) error {
	if c == nil || c.rc == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	if err := c.rc.Set(ctx, c.Key(key), b, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

func (c *Cache[T]) Delete(ctx context.Context, key string) error {
	if c == nil || c.rc == nil {
		return nil
	}
	if err := c.rc.Del(ctx, c.Key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete cache: %w", err)
	}
	return nil
}

// Connect parses a redis:// URL and pings it. An empty url returns a nil client.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rc := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rc, nil
}

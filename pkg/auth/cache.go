package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrTokenCacheMiss indicates no cached token exists.
var ErrTokenCacheMiss = errors.New("token cache miss")

// TokenCache shares access tokens across extractor processes.
type TokenCache interface {
	// Get returns the cached token or ErrTokenCacheMiss.
	Get(ctx context.Context) (string, error)

	// Set stores the token with its remaining lifetime as TTL.
	Set(ctx context.Context, token string, ttl time.Duration) error
}

// RedisTokenCache stores the access token in Redis under a fixed key with
// a TTL matching the token lifetime.
type RedisTokenCache struct {
	redis *redis.Client
	key   string
}

// NewRedisTokenCache creates a Redis-backed token cache.
func NewRedisTokenCache(redisClient *redis.Client, key string) *RedisTokenCache {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if key == "" {
		key = "extract:auth:access_token"
	}
	return &RedisTokenCache{
		redis: redisClient,
		key:   key,
	}
}

// Get implements TokenCache.
func (c *RedisTokenCache) Get(ctx context.Context) (string, error) {
	token, err := c.redis.Get(ctx, c.key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", ErrTokenCacheMiss
		}
		return "", fmt.Errorf("redis get token: %w", err)
	}
	return token, nil
}

// Set implements TokenCache.
func (c *RedisTokenCache) Set(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		// Already expired, don't cache
		return nil
	}
	if err := c.redis.Set(ctx, c.key, token, ttl).Err(); err != nil {
		return fmt.Errorf("redis set token: %w", err)
	}
	return nil
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store using Redis as the backing store.
// Values are JSON encoded; expiry is enforced by Redis.
type RedisStore[V any] struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a Redis-backed store. Every key is prefixed with prefix.
func NewRedisStore[V any](client redis.UniversalClient, prefix string) *RedisStore[V] {
	return &RedisStore[V]{
		client: client,
		prefix: prefix,
	}
}

var _ Store[string] = (*RedisStore[string])(nil)

// Get retrieves a value from Redis.
// Returns the zero value and false on cache miss.
func (s *RedisStore[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V

	data, err := s.client.Get(ctx, s.buildKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, false, nil
		}
		return zero, false, fmt.Errorf("redis get: %w", err)
	}

	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		return zero, false, fmt.Errorf("deserialize value: %w", err)
	}

	return v, true, nil
}

// Set stores a value in Redis with the specified TTL.
func (s *RedisStore[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	if ttl <= 0 {
		return s.Delete(ctx, key)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("serialize value: %w", err)
	}

	if err := s.client.Set(ctx, s.buildKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes a value from Redis.
func (s *RedisStore[V]) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.buildKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

func (s *RedisStore[V]) buildKey(key string) string {
	return s.prefix + key
}

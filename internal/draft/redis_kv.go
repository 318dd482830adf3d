package draft

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/podcast-studio/internal/core"
	"github.com/redis/go-redis/v9"
)

// RedisKV stores drafts in Redis, optionally with an expiry so abandoned
// drafts age out.
type RedisKV struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// OpenRedis builds a client from a redis:// URL, falling back to treating the
// value as a plain host:port address.
func OpenRedis(redisURL string) *redis.Client {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		opt = &redis.Options{Addr: redisURL}
	}

	return redis.NewClient(opt)
}

// NewRedisKV wraps client. Keys are stored under prefix; a zero ttl keeps
// drafts until they are discarded.
func NewRedisKV(client *redis.Client, prefix string, ttl time.Duration) *RedisKV {
	return &RedisKV{client: client, prefix: prefix, ttl: ttl}
}

// Ping checks that the server is reachable.
func (r *RedisKV) Ping(ctx context.Context) error {
	err := r.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to reach redis: %w", err)
	}

	return nil
}

// Get implements core.KeyValueStore.
func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrKeyNotFound
		}

		return nil, fmt.Errorf("failed to get key '%s' from redis: %w", key, err)
	}

	return data, nil
}

// Put implements core.KeyValueStore.
func (r *RedisKV) Put(ctx context.Context, key string, value []byte) error {
	err := r.client.Set(ctx, r.prefix+key, value, r.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set key '%s' in redis: %w", key, err)
	}

	return nil
}

// Delete implements core.KeyValueStore.
func (r *RedisKV) Delete(ctx context.Context, key string) error {
	err := r.client.Del(ctx, r.prefix+key).Err()
	if err != nil {
		return fmt.Errorf("failed to delete key '%s' from redis: %w", key, err)
	}

	return nil
}

package seenset

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the Redis set holding processed post URLs.
const DefaultRedisKey = "processedThreads"

// Redis stores members in a Redis set.
type Redis struct {
	client redis.Cmdable
	key    string
}

// NewRedis wraps client. An empty key selects DefaultRedisKey.
func NewRedis(client redis.Cmdable, key string) (*Redis, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if key == "" {
		key = DefaultRedisKey
	}
	return &Redis{client: client, key: key}, nil
}

// Contains implements Set.
func (r *Redis) Contains(ctx context.Context, postURL string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, r.key, postURL).Result()
	if err != nil {
		return false, fmt.Errorf("sismember %s: %w", r.key, err)
	}
	return ok, nil
}

// Add implements Set.
func (r *Redis) Add(ctx context.Context, postURL string) error {
	if err := r.client.SAdd(ctx, r.key, postURL).Err(); err != nil {
		return fmt.Errorf("sadd %s: %w", r.key, err)
	}
	return nil
}

// AddIfAbsent implements Set. SADD reports how many members were new.
func (r *Redis) AddIfAbsent(ctx context.Context, postURL string) (bool, error) {
	n, err := r.client.SAdd(ctx, r.key, postURL).Result()
	if err != nil {
		return false, fmt.Errorf("sadd %s: %w", r.key, err)
	}
	return n == 1, nil
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of the redis client the store needs.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisStore keeps each namespace as one JSON value under Prefix+namespace.
// Entry expiry is enforced by the Service, so keys are written without a TTL.
type RedisStore struct {
	client RedisClient
	prefix string
}

// NewRedisStore creates a store. An empty prefix uses "forecast:cache:".
func NewRedisStore(client RedisClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "forecast:cache:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) Load(ctx context.Context, namespace string) (map[string]Entry, error) {
	raw, err := r.client.Get(ctx, r.prefix+namespace).Bytes()
	if errors.Is(err, redis.Nil) {
		return map[string]Entry{}, nil
	}
	if err != nil {
		return map[string]Entry{}, err
	}
	entries := make(map[string]Entry)
	if err := json.Unmarshal(raw, &entries); err != nil {
		return map[string]Entry{}, fmt.Errorf("corrupt cache namespace %s: %w", namespace, err)
	}
	return entries, nil
}

func (r *RedisStore) Save(ctx context.Context, namespace string, entries map[string]Entry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding namespace %s: %w", namespace, err)
	}
	return r.client.Set(ctx, r.prefix+namespace, raw, 0).Err()
}

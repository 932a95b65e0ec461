package redis

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Cache key patterns:
// - rooms:{tenant}:{user} - rooms of one participant, CACHE_ROOMS_TTL
// - directory:{tenant}    - tenant user profiles, CACHE_DIRECTORY_TTL

// CacheStore is the Redis backed cache.Cache. Entries expire through the
// Redis TTL; nothing deletes them early.
type CacheStore struct {
	client *goredis.Client
}

// NewCacheStore creates a new cache store
func NewCacheStore(client *goredis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// Get decodes the value at key into dest. A missing key is a miss, not an error.
func (c *CacheStore) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return false, nil // Cache miss
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *CacheStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Ping checks if Redis is available
func (c *CacheStore) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

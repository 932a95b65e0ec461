package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache is a time-boxed key/value store holding JSON-encodable values.
// Writers never invalidate entries; readers see data at most ttl old.
type Cache interface {
	// Get decodes the value stored at key into dest and reports a hit.
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

func RoomsKey(tenantID, userID string) string {
	return fmt.Sprintf("rooms:%s:%s", tenantID, userID)
}

func DirectoryKey(tenantID string) string {
	return fmt.Sprintf("directory:%s", tenantID)
}

// ReadThrough returns the cached value for key or loads, stores and returns
// it. A nil cache or ttl <= 0 always loads. Cache errors fall back to load.
func ReadThrough[T any](ctx context.Context, c Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if c == nil || ttl <= 0 {
		return load(ctx)
	}

	var cached T
	if hit, err := c.Get(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	value, err := load(ctx)
	if err != nil {
		return value, err
	}
	_ = c.Set(ctx, key, value, ttl)
	return value, nil
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"
)

var ErrMiss = errors.New("cache miss")

// Cache stores JSON-encoded values with a TTL.
type Cache interface {
	// Get decodes the value for key into dst. It returns ErrMiss when the
	// key is absent or expired.
	Get(ctx context.Context, key string, dst interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// Keys lists live keys starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// CacheOrExecute returns the cached value for key, or runs fn, stores its
// result and decodes it into dst. Cache failures are logged and bypassed.
func CacheOrExecute(ctx context.Context, c Cache, key string, dst interface{}, ttl time.Duration, fn func() (interface{}, error)) error {
	err := c.Get(ctx, key, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrMiss) {
		log.Printf("[cache] WARN: get %s: %v", key, err)
	}

	value, err := fn()
	if err != nil {
		return err
	}

	if err := c.Set(ctx, key, value, ttl); err != nil {
		log.Printf("[cache] WARN: set %s: %v", key, err)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return json.Unmarshal(data, dst)
}

// SafeDelete removes keys and only logs failures.
func SafeDelete(ctx context.Context, c Cache, keys ...string) {
	if err := c.Delete(ctx, keys...); err != nil {
		log.Printf("[cache] WARN: delete %v: %v", keys, err)
	}
}

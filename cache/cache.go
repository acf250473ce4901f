// Package cache stores serialized extraction results between requests.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned when a key is absent or expired
var ErrCacheMiss = errors.New("cache miss")

// Cache is implemented by the memory and Redis backends
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// MetadataKey is the cache key for an extraction of pageURL
func MetadataKey(pageURL string, render bool) string {
	if render {
		return "productmeta:render:" + pageURL
	}
	return "productmeta:" + pageURL
}

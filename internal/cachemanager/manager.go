// Package cachemanager provides TTL caches used to avoid refetching slow
// backend reads, such as private channel subscriber rosters.
package cachemanager

import (
	"context"
	"time"
)

// CacheManager is a TTL cache keyed by a string-like key.
type CacheManager[K ~string, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...K) error
	Flush(ctx context.Context) error
}

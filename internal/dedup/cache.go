// Package dedup detects duplicate transactions per portfolio using
// exact fingerprints backed by a layered cache, plus a fuzzy similarity
// score as a secondary signal.
package dedup

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Cache is the membership cache behind the deduplication index. Two
// implementations exist: a process-local TTL cache and a Redis-backed
// shared cache. The index logic is cache-implementation-agnostic.
type Cache interface {
	// Get reports whether the key is present.
	Get(ctx context.Context, key string) (bool, error)

	// Set adds the key with a TTL.
	Set(ctx context.Context, key string, ttl time.Duration) error

	// Delete removes the key.
	Delete(ctx context.Context, key string) error

	// DeleteByPrefix removes all keys with the prefix, returning the count.
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)

	// CountByPrefix counts keys with the prefix.
	CountByPrefix(ctx context.Context, prefix string) (int, error)

	// Ping verifies the cache backend is reachable.
	Ping(ctx context.Context) error
}

// MemoryCache is an in-process TTL cache.
type MemoryCache struct {
	c *gocache.Cache
}

// NewMemoryCache creates a process-local cache with the given default TTL.
func NewMemoryCache(defaultTTL time.Duration) *MemoryCache {
	return &MemoryCache{c: gocache.New(defaultTTL, 10*time.Minute)}
}

// Compile-time interface check.
var _ Cache = (*MemoryCache)(nil)

func (m *MemoryCache) Get(_ context.Context, key string) (bool, error) {
	_, found := m.c.Get(key)
	return found, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, ttl time.Duration) error {
	m.c.Set(key, struct{}{}, ttl)
	return nil
}

func (m *MemoryCache) Delete(_ context.Context, key string) error {
	m.c.Delete(key)
	return nil
}

func (m *MemoryCache) DeleteByPrefix(_ context.Context, prefix string) (int, error) {
	var removed int
	for key := range m.c.Items() {
		if strings.HasPrefix(key, prefix) {
			m.c.Delete(key)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryCache) CountByPrefix(_ context.Context, prefix string) (int, error) {
	var n int
	for key := range m.c.Items() {
		if strings.HasPrefix(key, prefix) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryCache) Ping(context.Context) error {
	return nil
}

// RedisCache is a shared cache backed by Redis, used so concurrent engine
// instances see each other's fingerprints.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an existing Redis client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Compile-time interface check.
var _ Cache = (*RedisCache)(nil)

func (r *RedisCache) Get(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Set(ctx, key, "1", ttl).Err()
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisCache) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	var removed int
	iter := r.client.Scan(ctx, 0, prefix+"*", 256).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, iter.Err()
}

func (r *RedisCache) CountByPrefix(ctx context.Context, prefix string) (int, error) {
	var n int
	iter := r.client.Scan(ctx, 0, prefix+"*", 256).Iterator()
	for iter.Next(ctx) {
		n++
	}
	return n, iter.Err()
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

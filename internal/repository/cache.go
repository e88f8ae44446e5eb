// Package repository defines data access interfaces for Merit.
package repository

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// Cache Interface
// =============================================================================

// Cache defines the interface for caching operations.
// Implemented by the in-memory TTL cache for single-node deployments and
// by Redis for distributed ones. Correctness never depends on the cache:
// callers treat every cache error as a miss.
type Cache interface {
	// Get retrieves a value by key.
	// Returns ErrCacheMiss if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with an optional TTL.
	// If ttl is 0, the value doesn't expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value by key.
	Delete(ctx context.Context, key string) error

	// DeleteMulti removes multiple values.
	DeleteMulti(ctx context.Context, keys ...string) error

	// Exists checks if a key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// Increment atomically increments an integer value and returns the
	// new value. Missing keys start at zero.
	Increment(ctx context.Context, key string, delta int64) (int64, error)
}

// =============================================================================
// Common Cache Keys
// =============================================================================

// CacheKey generates cache keys for common scenarios.
type CacheKey struct{}

// UserByID returns a cache key for a single user.
func (CacheKey) UserByID(id string) string {
	return "cache:user:id:" + id
}

// UsersListGen returns the key of the users list generation counter.
// The counter is bumped on every user mutation; stale pages are left to
// expire by TTL since their generation no longer matches.
func (CacheKey) UsersListGen() string {
	return "cache:users:gen"
}

// UsersList returns a cache key for a paginated users list result.
// paramsKey must be a stable serialization of the query parameters so
// identical filter/sort/page combinations share an entry.
func (CacheKey) UsersList(gen int64, paramsKey string) string {
	return fmt.Sprintf("cache:users:list:g%d:%s", gen, paramsKey)
}

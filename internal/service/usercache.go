package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sekolahku/merit/internal/domain"
	"github.com/sekolahku/merit/internal/repository"
)

// Recorder abstracts the metrics sink the services report into.
type Recorder interface {
	CacheHit(cache string)
	CacheMiss(cache string)
	TrackDBOperation(ctx context.Context, operation, table string, fn func(ctx context.Context) error) error
}

// NoopRecorder discards all measurements. Used in tests and when
// metrics are disabled.
type NoopRecorder struct{}

func (NoopRecorder) CacheHit(string)  {}
func (NoopRecorder) CacheMiss(string) {}
func (NoopRecorder) TrackDBOperation(ctx context.Context, _, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// UserPage is a cached page of list results.
type UserPage struct {
	Users []*domain.User `json:"users"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

// userCache wraps repository.Cache for the user read paths. Every error
// from the underlying store is logged and swallowed: the cache is a
// performance optimization and correctness holds with it disabled.
type userCache struct {
	cache   repository.Cache
	keys    repository.CacheKey
	logger  zerolog.Logger
	metrics Recorder
	userTTL time.Duration
	listTTL time.Duration
}

func newUserCache(cache repository.Cache, logger zerolog.Logger, metrics Recorder, userTTL, listTTL time.Duration) *userCache {
	return &userCache{
		cache:   cache,
		logger:  logger.With().Str("component", "user_cache").Logger(),
		metrics: metrics,
		userTTL: userTTL,
		listTTL: listTTL,
	}
}

// GetUser returns a cached user, or nil on miss or cache failure.
func (c *userCache) GetUser(ctx context.Context, id uuid.UUID) *domain.User {
	data, err := c.cache.Get(ctx, c.keys.UserByID(id.String()))
	if err != nil {
		if err != repository.ErrCacheMiss {
			c.logger.Debug().Err(err).Str("user_id", id.String()).Msg("cache get failed")
		}
		c.metrics.CacheMiss("user")
		return nil
	}

	user := &domain.User{}
	if err := json.Unmarshal(data, user); err != nil {
		c.logger.Debug().Err(err).Str("user_id", id.String()).Msg("cache entry corrupt")
		c.metrics.CacheMiss("user")
		return nil
	}

	c.metrics.CacheHit("user")
	return user
}

// SetUser caches a single user.
func (c *userCache) SetUser(ctx context.Context, user *domain.User) {
	data, err := json.Marshal(user)
	if err != nil {
		c.logger.Debug().Err(err).Msg("cache encode failed")
		return
	}
	if err := c.cache.Set(ctx, c.keys.UserByID(user.ID.String()), data, c.userTTL); err != nil {
		c.logger.Debug().Err(err).Msg("cache set failed")
	}
}

// InvalidateUser drops the single-user entry.
func (c *userCache) InvalidateUser(ctx context.Context, id uuid.UUID) {
	if err := c.cache.Delete(ctx, c.keys.UserByID(id.String())); err != nil {
		c.logger.Debug().Err(err).Str("user_id", id.String()).Msg("cache delete failed")
	}
}

// GetUsersList returns a cached page for the query, or nil.
func (c *userCache) GetUsersList(ctx context.Context, q ListUsersQuery) *UserPage {
	gen, ok := c.generation(ctx)
	if !ok {
		c.metrics.CacheMiss("users_list")
		return nil
	}

	data, err := c.cache.Get(ctx, c.keys.UsersList(gen, paramsKey(q)))
	if err != nil {
		if err != repository.ErrCacheMiss {
			c.logger.Debug().Err(err).Msg("list cache get failed")
		}
		c.metrics.CacheMiss("users_list")
		return nil
	}

	page := &UserPage{}
	if err := json.Unmarshal(data, page); err != nil {
		c.logger.Debug().Err(err).Msg("list cache entry corrupt")
		c.metrics.CacheMiss("users_list")
		return nil
	}

	c.metrics.CacheHit("users_list")
	return page
}

// SetUsersList caches a page under the current generation.
func (c *userCache) SetUsersList(ctx context.Context, q ListUsersQuery, page *UserPage) {
	gen, ok := c.generation(ctx)
	if !ok {
		return
	}

	data, err := json.Marshal(page)
	if err != nil {
		c.logger.Debug().Err(err).Msg("list cache encode failed")
		return
	}
	if err := c.cache.Set(ctx, c.keys.UsersList(gen, paramsKey(q)), data, c.listTTL); err != nil {
		c.logger.Debug().Err(err).Msg("list cache set failed")
	}
}

// InvalidateLists bumps the generation counter. Entries written under
// older generations become unreachable and expire by TTL; no pattern
// sweep is needed.
func (c *userCache) InvalidateLists(ctx context.Context) {
	if _, err := c.cache.Increment(ctx, c.keys.UsersListGen(), 1); err != nil {
		c.logger.Debug().Err(err).Msg("list generation bump failed")
	}
}

// generation reads the current list generation counter.
func (c *userCache) generation(ctx context.Context) (int64, bool) {
	gen, err := c.cache.Increment(ctx, c.keys.UsersListGen(), 0)
	if err != nil {
		c.logger.Debug().Err(err).Msg("list generation read failed")
		return 0, false
	}
	return gen, true
}

// paramsKey produces a stable serialization of the query parameters so
// identical filter/sort/page combinations share a cache entry.
func paramsKey(q ListUsersQuery) string {
	return fmt.Sprintf("p%d:l%d:s%s:r%s:c%s:sb%s:so%s:ca%s:cb%s:la%s:lb%s:ip%t:ipr%t:ia%t",
		q.Page, q.Limit, q.Search, q.Role, q.ClassID,
		q.SortBy, q.SortOrder,
		q.CreatedAfter, q.CreatedBefore, q.LastLoginAfter, q.LastLoginBefore,
		q.IncludeProfile, q.IncludePrefs, q.IncludeArchived,
	)
}

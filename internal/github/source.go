package github

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/developer-az/commit-warrior/internal/cache"
	"github.com/developer-az/commit-warrior/internal/retry"
)

// sharedFetchTimeout bounds a fetch that outlives the caller that started it
const sharedFetchTimeout = 2 * time.Minute

// Source serves the endpoints the checker needs through the response cache
// and the retry executor. Concurrent identical fetches share one request.
// The bool returned by each method is true when the value came from cache.
type Source struct {
	client     *Client
	cache      *cache.Cache
	retry      *retry.Executor
	group      singleflight.Group
	eventPages int
	logger     *slog.Logger
}

// NewSource wires a gateway, cache and retry executor together
func NewSource(client *Client, c *cache.Cache, r *retry.Executor, eventPages int, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	if eventPages < 1 {
		eventPages = 1
	}
	return &Source{
		client:     client,
		cache:      c,
		retry:      r,
		eventPages: eventPages,
		logger:     logger,
	}
}

// fetch returns the cached value for key or runs op under retry and caches it.
// The shared request is detached from the caller that started it so a
// cancelled caller does not fail the others waiting on the same key; each
// caller still stops waiting when its own ctx is done.
func fetch[T any](ctx context.Context, s *Source, key string, ttl time.Duration, op func(ctx context.Context) (T, error)) (T, bool, error) {
	var zero T

	if v, ok := s.cache.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, true, nil
		}
		s.cache.Delete(key)
	}

	ch := s.group.DoChan(key, func() (interface{}, error) {
		opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
		defer cancel()

		result, err := retry.Do(opCtx, s.retry, op)
		if err != nil {
			return nil, err
		}
		s.cache.Set(key, result, ttl)
		return result, nil
	})

	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return zero, false, r.Err
		}
		return r.Val.(T), false, nil
	}
}

// SearchCommits searches commits for the day starting at since
func (s *Source) SearchCommits(ctx context.Context, cred Credential, since, until time.Time) (*SearchResult, bool, error) {
	key := cache.Key(cache.CategorySearch, cred.Username, since.Format("2006-01-02"), cache.TokenHash(cred.Token))
	return fetch(ctx, s, key, cache.TTLFor(cache.CategorySearch), func(ctx context.Context) (*SearchResult, error) {
		return s.client.SearchCommits(ctx, cred, since, until)
	})
}

// Events returns the user's recent activity events
func (s *Source) Events(ctx context.Context, cred Credential) ([]ActivityEvent, bool, error) {
	key := cache.Key(cache.CategoryEvents, cred.Username, cache.TokenHash(cred.Token))
	return fetch(ctx, s, key, cache.TTLFor(cache.CategoryEvents), func(ctx context.Context) ([]ActivityEvent, error) {
		return s.client.ListUserEvents(ctx, cred, s.eventPages)
	})
}

// Repositories returns the user's repositories sorted by recency
func (s *Source) Repositories(ctx context.Context, cred Credential) ([]Repository, bool, error) {
	key := cache.Key(cache.CategoryRepositories, cred.Username, cache.TokenHash(cred.Token))
	return fetch(ctx, s, key, cache.TTLFor(cache.CategoryRepositories), func(ctx context.Context) ([]Repository, error) {
		return s.client.ListUserRepositories(ctx, cred)
	})
}

// RepositoryCommits lists the user's commits in repo for the day starting at since
func (s *Source) RepositoryCommits(ctx context.Context, cred Credential, repo Repository, since, until time.Time) ([]CommitSummary, bool, error) {
	key := cache.Key(cache.CategoryCommits, cred.Username, repo.Owner+"/"+repo.Name, since.Format("2006-01-02"), cache.TokenHash(cred.Token))
	return fetch(ctx, s, key, cache.TTLFor(cache.CategoryCommits), func(ctx context.Context) ([]CommitSummary, error) {
		return s.client.ListRepositoryCommits(ctx, cred, repo, since, until)
	})
}

// ValidateToken checks the token belongs to cred.Username
func (s *Source) ValidateToken(ctx context.Context, cred Credential) (*TokenValidation, bool, error) {
	key := cache.Key(cache.CategoryValidation, cred.Username, cache.TokenHash(cred.Token))
	return fetch(ctx, s, key, cache.TTLFor(cache.CategoryValidation), func(ctx context.Context) (*TokenValidation, error) {
		return s.client.ValidateToken(ctx, cred)
	})
}

// RemoteRateLimit asks GitHub for the current quota; never cached
func (s *Source) RemoteRateLimit(ctx context.Context, token string) (*RateLimit, error) {
	return retry.Do(ctx, s.retry, func(ctx context.Context) (*RateLimit, error) {
		return s.client.GetRateLimit(ctx, token)
	})
}

// RateLimitStatus returns the gateway's recorded quota
func (s *Source) RateLimitStatus() RateLimitStatus {
	return s.client.RateLimitStatus()
}

// CacheStats reports response cache occupancy
func (s *Source) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// ClearCache drops every cached response
func (s *Source) ClearCache() {
	s.cache.Clear()
}

package cache

import (
	"log/slog"
	"sync"
	"time"
)

// Categories partition the cache and select the default TTL.
const (
	CategoryValidation   = "user-validation"
	CategoryEvents       = "user-events"
	CategoryRepositories = "repositories"
	CategoryCommits      = "commits"
	CategorySearch       = "search-commits"
)

const (
	DefaultTTL        = 5 * time.Minute
	DefaultMaxEntries = 100
)

var categoryTTL = map[string]time.Duration{
	CategoryValidation:   10 * time.Minute,
	CategoryEvents:       2 * time.Minute,
	CategoryRepositories: 5 * time.Minute,
	CategoryCommits:      1 * time.Minute,
	CategorySearch:       30 * time.Second,
}

// TTLFor returns the default TTL for a category, or DefaultTTL.
func TTLFor(category string) time.Duration {
	if ttl, ok := categoryTTL[category]; ok {
		return ttl
	}
	return DefaultTTL
}

// Entry is a single cached value
type Entry struct {
	Data      any
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (e *Entry) expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Cache stores API responses in memory with per-entry expiration.
// Safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*Entry
	maxEntries int
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Cache
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger used for cache diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// New creates a cache bounded to maxEntries (0 = DefaultMaxEntries)
func New(maxEntries int, opts ...Option) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	c := &Cache{
		entries:    make(map[string]*Entry),
		maxEntries: maxEntries,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value for key. Expired entries are removed and
// reported as absent.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		c.logger.Debug("Cache miss", "key", key)
		return nil, false
	}

	now := c.now()
	if entry.expired(now) {
		delete(c.entries, key)
		c.logger.Debug("Cache expired", "key", key)
		return nil, false
	}

	c.logger.Debug("Cache hit", "key", key, "age", now.Sub(entry.CreatedAt))
	return entry.Data, true
}

// Set stores data under key for ttl (0 = DefaultTTL). When the cache is at
// capacity, expired entries are swept first; live entries are never evicted.
func (c *Cache) Set(key string, data any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if len(c.entries) >= c.maxEntries {
		removed := c.sweepLocked(now)
		c.logger.Debug("Cache cleanup completed", "deleted", removed, "remaining", len(c.entries))
	}

	c.entries[key] = &Entry{
		Data:      data,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// Delete removes key and reports whether it was present
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, exists := c.entries[key]
	delete(c.entries, key)
	return exists
}

// Clear removes all entries
func (c *Cache) Clear() {
	c.mu.Lock()
	size := len(c.entries)
	c.entries = make(map[string]*Entry)
	c.mu.Unlock()

	c.logger.Info("Cleared cache", "entries", size)
}

// CleanExpired removes expired entries and returns how many were removed
func (c *Cache) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.sweepLocked(c.now())
}

func (c *Cache) sweepLocked(now time.Time) int {
	removed := 0
	for key, entry := range c.entries {
		if entry.expired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Stats describes cache occupancy
type Stats struct {
	TotalEntries       int `json:"totalEntries"`
	ActiveEntries      int `json:"activeEntries"`
	ExpiredEntries     int `json:"expiredEntries"`
	MaxSize            int `json:"maxSize"`
	UtilizationPercent int `json:"utilizationPercent"`
}

// Stats returns current occupancy without evicting anything
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	expired := 0
	for _, entry := range c.entries {
		if entry.expired(now) {
			expired++
		}
	}

	total := len(c.entries)
	return Stats{
		TotalEntries:       total,
		ActiveEntries:      total - expired,
		ExpiredEntries:     expired,
		MaxSize:            c.maxEntries,
		UtilizationPercent: int(float64(total)/float64(c.maxEntries)*100 + 0.5),
	}
}

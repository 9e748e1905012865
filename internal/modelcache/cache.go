// Package modelcache caches discovered model lists per provider, with TTL
// expiry and pluggable persistence so lists survive process restarts.
// Model lists change rarely, so one writer lock per cache is enough; no
// operation ever observes a torn entry.
package modelcache

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultTTL keeps a discovered model list for two weeks.
const DefaultTTL = 14 * 24 * time.Hour

// Entry is one cached (models, timestamp) pair as persisted on disk.
// Timestamp is epoch seconds; a float so sub-second resolution survives the
// JSON round-trip.
type Entry struct {
	Models    []string `json:"models"`
	Timestamp float64  `json:"timestamp"`
}

// Backend persists the full entry map. Implementations must tolerate
// concurrent calls; the cache serializes through its own lock regardless.
type Backend interface {
	// Load returns the persisted entries. A missing store is an empty
	// map, not an error.
	Load(ctx context.Context) (map[string]Entry, error)

	// Save replaces the persisted entries.
	Save(ctx context.Context, entries map[string]Entry) error

	// Cleanup removes persisted artifacts older than ttl. Maintenance
	// only; in-memory state is not consulted.
	Cleanup(ctx context.Context, ttl time.Duration) error
}

// Cache is the TTL'd in-memory model cache in front of a Backend.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	ttl     time.Duration
	backend Backend

	// now is swappable for TTL tests.
	now func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides the default entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithClock substitutes the time source. Test helper.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache over the given persistence backend.
func New(backend Backend, opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]Entry),
		ttl:     DefaultTTL,
		backend: backend,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ValidateModelList reports whether a model list is well-formed: non-empty,
// every element a non-blank string. Malformed lists are rejected at the
// cache boundary and never stored.
func ValidateModelList(models []string) bool {
	if len(models) == 0 {
		return false
	}
	for _, m := range models {
		if strings.TrimSpace(m) == "" {
			return false
		}
	}
	return true
}

// Get returns the cached models and their timestamp for a provider. TTL is
// evaluated here, at read time; an expired entry reads as absent.
func (c *Cache) Get(provider string) ([]string, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[provider]
	if !ok {
		return nil, time.Time{}, false
	}
	ts := timeFromEpoch(entry.Timestamp)
	if c.now().Sub(ts) >= c.ttl {
		return nil, time.Time{}, false
	}

	models := make([]string, len(entry.Models))
	copy(models, entry.Models)
	return models, ts, true
}

// IsCached reports whether a fresh entry exists for the provider.
func (c *Cache) IsCached(provider string) bool {
	_, _, ok := c.Get(provider)
	return ok
}

// Set stores a model list in memory only. The list must be well-formed.
func (c *Cache) Set(provider string, models []string) error {
	if !ValidateModelList(models) {
		return errInvalidModelList(provider)
	}
	stored := make([]string, len(models))
	copy(stored, models)

	c.mu.Lock()
	c.entries[provider] = Entry{
		Models:    stored,
		Timestamp: epochSeconds(c.now()),
	}
	c.mu.Unlock()
	return nil
}

// CacheModelsAndPersist stores a list and persists the whole cache, so the
// caller observes the two effects as one operation.
func (c *Cache) CacheModelsAndPersist(ctx context.Context, provider string, models []string) error {
	if err := c.Set(provider, models); err != nil {
		return err
	}
	if err := c.SaveToDisk(ctx); err != nil {
		slog.Warn("failed to persist model cache", "provider", provider, "error", err)
		return err
	}
	return nil
}

// SaveToDisk persists the current in-memory entries through the backend.
func (c *Cache) SaveToDisk(ctx context.Context) error {
	c.mu.RLock()
	snapshot := make(map[string]Entry, len(c.entries))
	for k, v := range c.entries {
		snapshot[k] = v
	}
	c.mu.RUnlock()

	return c.backend.Save(ctx, snapshot)
}

// LoadFromDisk replaces the in-memory entries with the persisted ones.
// Backend failures and malformed entries degrade to a miss, never an
// initialization crash.
func (c *Cache) LoadFromDisk(ctx context.Context) error {
	loaded, err := c.backend.Load(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.entries = make(map[string]Entry, len(loaded))
	for provider, entry := range loaded {
		if !ValidateModelList(entry.Models) {
			slog.Debug("dropping malformed cache entry", "provider", provider)
			continue
		}
		c.entries[provider] = entry
	}
	c.mu.Unlock()
	return nil
}

// InitializeSafely loads persisted entries and prunes stale artifacts,
// logging failures instead of raising them. Called once during manager
// initialization so a corrupt cache file can never block startup.
func (c *Cache) InitializeSafely(ctx context.Context) {
	if err := c.LoadFromDisk(ctx); err != nil {
		slog.Warn("failed to load model cache", "error", err)
	}
	c.CleanupOldFiles(ctx)
}

// Clear drops every entry, in memory and in the persisted store.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]Entry)
	c.mu.Unlock()

	return c.backend.Save(ctx, map[string]Entry{})
}

// ClearProvider drops a single provider's entry, in memory and on disk.
func (c *Cache) ClearProvider(ctx context.Context, provider string) error {
	c.mu.Lock()
	delete(c.entries, provider)
	c.mu.Unlock()

	return c.SaveToDisk(ctx)
}

// CleanupOldFiles removes persisted artifacts whose age exceeds the TTL.
// A maintenance pass, independent of the in-memory state.
func (c *Cache) CleanupOldFiles(ctx context.Context) {
	if err := c.backend.Cleanup(ctx, c.ttl); err != nil {
		slog.Debug("model cache cleanup failed", "error", err)
	}
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func timeFromEpoch(seconds float64) time.Time {
	return time.Unix(0, int64(seconds*float64(time.Second)))
}

type errInvalidModelList string

func (e errInvalidModelList) Error() string {
	return "invalid model list for provider " + string(e)
}

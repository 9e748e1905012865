// Package translationcache memoizes completed translations in memory so a
// repeated request for the same text, language pair and model skips the
// provider round trip entirely.
package translationcache

import (
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSize bounds the cache when the operator configured no limit.
const DefaultSize = 100

// Cache is a bounded LRU of translation results keyed by the request
// fingerprint. Safe for concurrent use.
type Cache struct {
	lru    *lru.Cache[uint64, string]
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a cache holding at most size entries.
func New(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	inner, err := lru.New[uint64, string](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: inner}, nil
}

// keyFor fingerprints a request. The separator keeps "ab"+"c" and "a"+"bc"
// from colliding.
func keyFor(text, sourceLang, targetLang, model string) uint64 {
	d := xxhash.New()
	for _, part := range []string{text, sourceLang, targetLang, model} {
		d.WriteString(part)
		d.Write([]byte{0})
	}
	return d.Sum64()
}

// Get returns a memoized translation, if present.
func (c *Cache) Get(text, sourceLang, targetLang, model string) (string, bool) {
	result, ok := c.lru.Get(keyFor(text, sourceLang, targetLang, model))
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return result, ok
}

// Put stores a translation, evicting the least recently used entry when
// the cache is full.
func (c *Cache) Put(text, sourceLang, targetLang, model, result string) {
	c.lru.Add(keyFor(text, sourceLang, targetLang, model), result)
}

// Clear drops every entry. Hit counters are kept.
func (c *Cache) Clear() { c.lru.Purge() }

// Len returns the current entry count.
func (c *Cache) Len() int { return c.lru.Len() }

// Stats reports lifetime hit and miss counts.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

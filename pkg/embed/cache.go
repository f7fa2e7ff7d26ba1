package embed

import (
	"slices"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCacheSize = 4096

// Cache maps exact input text to its embedding. Returned slices are copies.
type Cache struct {
	lru    *lru.Cache[string, []float32]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCache creates a cache holding up to size entries.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = defaultCacheSize
	}
	c, err := lru.New[string, []float32](size)
	if err != nil {
		// lru.New only fails for non-positive sizes.
		panic(err)
	}
	return &Cache{lru: c}
}

// Get returns the cached vector for text.
func (c *Cache) Get(text string) ([]float32, bool) {
	v, ok := c.lru.Get(text)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return slices.Clone(v), true
}

// Add stores a copy of v.
func (c *Cache) Add(text string, v []float32) {
	c.lru.Add(text, slices.Clone(v))
}

// Len returns the number of cached entries.
func (c *Cache) Len() int { return c.lru.Len() }

// Purge drops every entry.
func (c *Cache) Purge() { c.lru.Purge() }

// Stats returns lifetime hit and miss counts.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

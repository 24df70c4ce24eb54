package dispatch

import (
	"encoding/hex"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/blake2b"
)

// Cache memoizes handler responses by cache key.
//
// Add never replaces an existing entry: once a key is written its value is
// fixed until the entry is purged or evicted.
type Cache interface {
	Get(key string) (string, bool)
	Add(key, response string) bool
	Len() int
	Purge() int
}

// CacheFactory creates one cache per registered handler.
type CacheFactory func() Cache

// UnboundedCaches returns a factory of caches that never evict.
func UnboundedCaches() CacheFactory {
	return func() Cache { return newMapCache() }
}

// LRUCaches returns a factory of caches holding at most size entries each,
// evicting the least recently used entry when full. A size <= 0 yields
// unbounded caches.
func LRUCaches(size int) CacheFactory {
	if size <= 0 {
		return UnboundedCaches()
	}
	return func() Cache {
		c, err := lru.New[string, string](size)
		if err != nil {
			// Only returned for size <= 0, excluded above.
			return newMapCache()
		}
		return &lruCache{c: c}
	}
}

// NormalizeQuery lowercases and trims a query.
func NormalizeQuery(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// CacheKey derives the deterministic cache key for a handler and query.
func CacheKey(handler, query string) string {
	sum := blake2b.Sum256([]byte(handler + ":" + NormalizeQuery(query)))
	return hex.EncodeToString(sum[:])
}

// mapCache is an unbounded cache. It is not safe for concurrent use; the
// dispatcher serialises access per handler.
type mapCache struct {
	entries map[string]string
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]string)}
}

func (c *mapCache) Get(key string) (string, bool) {
	v, ok := c.entries[key]
	return v, ok
}

func (c *mapCache) Add(key, response string) bool {
	if _, exists := c.entries[key]; exists {
		return false
	}
	c.entries[key] = response
	return true
}

func (c *mapCache) Len() int { return len(c.entries) }

func (c *mapCache) Purge() int {
	n := len(c.entries)
	c.entries = make(map[string]string)
	return n
}

// lruCache adapts golang-lru to Cache.
type lruCache struct {
	c *lru.Cache[string, string]
}

func (c *lruCache) Get(key string) (string, bool) { return c.c.Get(key) }

func (c *lruCache) Add(key, response string) bool {
	found, _ := c.c.ContainsOrAdd(key, response)
	return !found
}

func (c *lruCache) Len() int { return c.c.Len() }

func (c *lruCache) Purge() int {
	n := c.c.Len()
	c.c.Purge()
	return n
}

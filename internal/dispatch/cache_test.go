package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKey(t *testing.T) {
	key := CacheKey("Math", "5*3")

	assert.Len(t, key, 64)
	assert.Equal(t, key, CacheKey("Math", "  5*3 "))
	assert.Equal(t, CacheKey("Knowledge", "What is Go"), CacheKey("Knowledge", "what is go"))
	assert.NotEqual(t, key, CacheKey("System", "5*3"))
	assert.NotEqual(t, key, CacheKey("Math", "5*4"))
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, "cpu usage", NormalizeQuery("  CPU Usage\n"))
	assert.Equal(t, "", NormalizeQuery("   "))
}

func TestCaches_NeverOverwrite(t *testing.T) {
	factories := map[string]CacheFactory{
		"unbounded": UnboundedCaches(),
		"lru":       LRUCaches(8),
	}

	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			c := factory()

			assert.True(t, c.Add("k", "first"))
			assert.False(t, c.Add("k", "second"))

			got, ok := c.Get("k")
			require.True(t, ok)
			assert.Equal(t, "first", got)

			_, ok = c.Get("missing")
			assert.False(t, ok)

			c.Add("k2", "v2")
			assert.Equal(t, 2, c.Len())
			assert.Equal(t, 2, c.Purge())
			assert.Equal(t, 0, c.Len())
		})
	}
}

func TestLRUCaches_Evicts(t *testing.T) {
	c := LRUCaches(2)()

	c.Add("a", "1")
	c.Add("b", "2")
	c.Get("a")
	c.Add("c", "3")

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("b")
	assert.False(t, ok, "least recently used entry should be evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
}

func TestLRUCaches_NonPositiveSizeIsUnbounded(t *testing.T) {
	c := LRUCaches(0)()
	_, isMap := c.(*mapCache)
	assert.True(t, isMap)
}

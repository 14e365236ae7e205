package lru

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMaxEntries = 3

func newTestCache() *Cache[string, string] {
	return New[string, string](WithMaxEntries[string, string](testMaxEntries))
}

func TestCache_PutGet(t *testing.T) {
	t.Parallel()

	c := newTestCache()
	c.Put("k1", "v1")

	got, ok := c.Get("k1")
	require.True(t, ok)
	assert.Equal(t, "v1", got)

	_, ok = c.Get("absent")
	assert.False(t, ok)
}

func TestCache_UpdateExistingKey(t *testing.T) {
	t.Parallel()

	c := newTestCache()
	c.Put("k1", "v1")
	c.Put("k1", "v2")

	got, ok := c.Get("k1")
	require.True(t, ok)
	assert.Equal(t, "v2", got)
	assert.Equal(t, 1, c.Len())
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	c := newTestCache()
	c.Put("k1", "v1")
	c.Put("k2", "v2")
	c.Put("k3", "v3")

	// Touch k1 so k2 becomes the eviction candidate.
	_, ok := c.Get("k1")
	require.True(t, ok)

	c.Put("k4", "v4")

	_, ok = c.Get("k2")
	assert.False(t, ok, "least recently used entry must be evicted")

	for _, key := range []string{"k1", "k3", "k4"} {
		_, ok = c.Get(key)
		assert.True(t, ok, key)
	}
}

func TestCache_Clear(t *testing.T) {
	t.Parallel()

	c := newTestCache()
	c.Put("k1", "v1")
	c.Put("k2", "v2")

	c.Clear()

	assert.Equal(t, 0, c.Len())

	_, ok := c.Get("k1")
	assert.False(t, ok)
}

func TestCache_Stats(t *testing.T) {
	t.Parallel()

	c := newTestCache()
	c.Put("k1", "v1")

	_, _ = c.Get("k1")
	_, _ = c.Get("k1")
	_, _ = c.Get("absent")

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, testMaxEntries, stats.MaxEntries)
	assert.InDelta(t, 2.0/3.0, stats.HitRate(), 1e-9)
}

func TestCache_HitRateEmptyCache(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.0, newTestCache().Stats().HitRate(), 1e-9)
}

func TestCache_BloomShortCircuitsMisses(t *testing.T) {
	t.Parallel()

	c := New[string, string](
		WithMaxEntries[string, string](testMaxEntries),
		WithBloomFilter[string, string](func(k string) []byte { return []byte(k) }, 100),
	)

	c.Put("present", "v")

	_, ok := c.Get("never-inserted")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.BloomFiltered)

	got, ok := c.Get("present")
	require.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestCache_BloomSurvivesEviction(t *testing.T) {
	t.Parallel()

	c := New[string, string](
		WithMaxEntries[string, string](1),
		WithBloomFilter[string, string](func(k string) []byte { return []byte(k) }, 100),
	)

	c.Put("k1", "v1")
	c.Put("k2", "v2")

	// k1 was evicted but stays in the filter; the lookup must fall
	// through to a map miss, not a false hit.
	_, ok := c.Get("k1")
	assert.False(t, ok)
}

func TestNew_PanicsWithoutCapacity(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { New[string, string]() })
}

func TestCache_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	c := New[string, int](WithMaxEntries[string, int](64))

	done := make(chan struct{})

	for worker := 0; worker < 8; worker++ {
		go func(w int) {
			defer func() { done <- struct{}{} }()

			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("k%d", i%16)
				c.Put(key, w)
				_, _ = c.Get(key)
			}
		}(worker)
	}

	for i := 0; i < 8; i++ {
		<-done
	}

	assert.LessOrEqual(t, c.Len(), 64)
}

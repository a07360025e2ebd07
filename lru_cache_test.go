package ldclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLruCacheAddReturnsFalseForNeverSeenValue(t *testing.T) {
	cache := newLruCache(10)
	assert.False(t, cache.add("a"))
}

func TestLruCacheAddReturnsTrueForAlreadySeenValue(t *testing.T) {
	cache := newLruCache(10)
	cache.add("a")
	assert.True(t, cache.add("a"))
}

func TestLruCacheDiscardsOldestValueWhenCapacityIsExceeded(t *testing.T) {
	cache := newLruCache(2)
	cache.add("a")
	cache.add("b")
	cache.add("c")
	assert.True(t, cache.add("c"))
	assert.True(t, cache.add("b"))
	assert.False(t, cache.add("a"))
}

func TestLruCacheReAddingValueMakesItNewAgain(t *testing.T) {
	cache := newLruCache(2)
	cache.add("a")
	cache.add("b")
	cache.add("a")
	cache.add("c")
	assert.True(t, cache.add("c"))
	assert.True(t, cache.add("a"))
	assert.False(t, cache.add("b"))
}

func TestLruCacheZeroLengthCacheTreatsValuesAsNew(t *testing.T) {
	cache := newLruCache(0)
	assert.False(t, cache.add("a"))
	assert.False(t, cache.add("a"))
}

func TestLruCacheClearMakesValuesNewAgain(t *testing.T) {
	cache := newLruCache(10)
	cache.add("a")
	cache.add("b")
	cache.clear()
	assert.False(t, cache.add("a"))
	assert.False(t, cache.add("b"))
}

package pivot

import (
	"fmt"
	"testing"

	"github.com/RoaringBitmap/roaring"
	"github.com/stretchr/testify/assert"
)

func TestLRUCache(t *testing.T) {
	cache := newLRUCache(3)

	// Test Store and Load
	cache.Store("r:0:1", roaring.BitmapOf(1))
	cache.Store("r:0:2", roaring.BitmapOf(2))
	cache.Store("c:1:0", roaring.BitmapOf(3))
	assert.Equal(t, 3, cache.Len())

	set, ok := cache.Load("r:0:1")
	assert.True(t, ok)
	assert.Equal(t, []uint32{1}, set.ToArray())

	// Test eviction when capacity exceeded
	assert.True(t, cache.Store("c:1:1", roaring.BitmapOf(4)))
	assert.Equal(t, 3, cache.Len())

	// r:0:2 is the least recently used
	_, ok = cache.Load("r:0:2")
	assert.False(t, ok)
	for _, key := range []string{"r:0:1", "c:1:0", "c:1:1"} {
		_, ok = cache.Load(key)
		assert.True(t, ok, key)
	}

	// Updating an existing key doesn't evict
	assert.False(t, cache.Store("r:0:1", roaring.BitmapOf(5)))
	set, _ = cache.Load("r:0:1")
	assert.Equal(t, []uint32{5}, set.ToArray())

	cache.Clear()
	assert.Equal(t, 0, cache.Len())
}

func TestLRUCacheMinimumCapacity(t *testing.T) {
	cache := newLRUCache(0)
	for i := 0; i < 10; i++ {
		cache.Store(fmt.Sprintf("r:%d", i), roaring.New())
	}
	assert.Equal(t, 1, cache.Len())
	_, ok := cache.Load("r:9")
	assert.True(t, ok)
}

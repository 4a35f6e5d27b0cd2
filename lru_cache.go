// Copyright 2016 - 2025 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package pivot

import (
	"container/list"
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// lruCache is a bounded least recently used cache of record sets keyed by
// axis path. When full, the least recently used set is evicted.
type lruCache struct {
	mu       sync.RWMutex
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List
}

// lruEntry represents a key-value pair in the LRU cache
type lruEntry struct {
	key   string
	value *roaring.Bitmap
}

// newLRUCache creates a new LRU cache with the specified capacity
func newLRUCache(capacity int) *lruCache {
	if capacity < 1 {
		capacity = 1
	}
	return &lruCache{
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		lruList:  list.New(),
	}
}

// Load retrieves a record set, marking it most recently used.
func (c *lruCache) Load(key string) (*roaring.Bitmap, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lruList.MoveToFront(elem)
		return elem.Value.(*lruEntry).value, true
	}
	return nil, false
}

// Store adds or updates a record set. Returns true if an entry was evicted.
func (c *lruCache) Store(key string, value *roaring.Bitmap) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lruList.MoveToFront(elem)
		elem.Value.(*lruEntry).value = value
		return false
	}

	evicted := false
	if c.lruList.Len() >= c.capacity {
		if oldest := c.lruList.Back(); oldest != nil {
			c.lruList.Remove(oldest)
			delete(c.cache, oldest.Value.(*lruEntry).key)
			evicted = true
		}
	}
	c.cache[key] = c.lruList.PushFront(&lruEntry{key: key, value: value})
	return evicted
}

// Clear removes all entries.
func (c *lruCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[string]*list.Element)
	c.lruList = list.New()
}

// Len returns the current number of entries.
func (c *lruCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.lruList.Len()
}

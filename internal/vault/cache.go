// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package vault

import (
	"container/list"
	"sync"
	"time"
)

// =============================================================================
// READ CACHE
// =============================================================================

// Cache is an LRU cache of file contents keyed by absolute path.
// An entry is only served while the file's modification time and size
// match what was recorded when it was stored.
type Cache struct {
	mu          sync.Mutex
	entries     map[string]*list.Element
	order       *list.List // front = most recently used
	maxEntries  int
	maxSize     int64
	currentSize int64

	hits   int
	misses int
}

type cacheEntry struct {
	path    string
	data    []byte
	modTime time.Time
	size    int64
}

// CacheStats holds cache statistics.
type CacheStats struct {
	Hits       int
	Misses     int
	EntryCount int
	TotalSize  int64
	MaxSize    int64
	HitRate    float64
}

// NewCache creates a cache holding at most maxEntries files and maxSize bytes.
// Non-positive limits fall back to 64 entries and 64MB.
func NewCache(maxEntries int, maxSize int64) *Cache {
	if maxEntries <= 0 {
		maxEntries = 64
	}
	if maxSize <= 0 {
		maxSize = 64 * 1024 * 1024
	}
	return &Cache{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: maxEntries,
		maxSize:    maxSize,
	}
}

// Get returns the cached bytes for path if they were stored for a file
// with the given modification time and size.
func (c *Cache) Get(path string, modTime time.Time, size int64) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[path]
	if !ok {
		c.misses++
		return nil, false
	}

	entry := el.Value.(*cacheEntry)
	if !entry.modTime.Equal(modTime) || entry.size != size {
		c.removeLocked(el)
		c.misses++
		return nil, false
	}

	c.order.MoveToFront(el)
	c.hits++
	return entry.data, true
}

// Put stores data for path. Files larger than a tenth of the cache are
// not cached.
func (c *Cache) Put(path string, data []byte, modTime time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := int64(len(data))
	if size > c.maxSize/10 {
		return
	}

	if el, ok := c.entries[path]; ok {
		c.removeLocked(el)
	}

	for c.order.Len() > 0 && (c.currentSize+size > c.maxSize || c.order.Len() >= c.maxEntries) {
		c.removeLocked(c.order.Back())
	}

	el := c.order.PushFront(&cacheEntry{path: path, data: data, modTime: modTime, size: size})
	c.entries[path] = el
	c.currentSize += size
}

// Invalidate removes path from the cache.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[path]; ok {
		c.removeLocked(el)
	}
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
	c.currentSize = 0
}

// Stats returns cache statistics.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	hitRate := 0.0
	if total := c.hits + c.misses; total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	return CacheStats{
		Hits:       c.hits,
		Misses:     c.misses,
		EntryCount: len(c.entries),
		TotalSize:  c.currentSize,
		MaxSize:    c.maxSize,
		HitRate:    hitRate,
	}
}

// removeLocked drops an entry. Caller holds c.mu.
func (c *Cache) removeLocked(el *list.Element) {
	entry := c.order.Remove(el).(*cacheEntry)
	delete(c.entries, entry.path)
	c.currentSize -= entry.size
}

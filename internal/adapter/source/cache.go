package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/couchcryptid/heatspot-etl-service/internal/observability"
)

// CachedSource wraps a Source with an in-memory LRU of file contents. Entries
// are keyed by object ID and modification time, so a changed file is fetched
// again.
type CachedSource struct {
	inner   Source
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedSource creates a cache decorator around a source. metrics may be nil.
func NewCachedSource(inner Source, maxEntries int, metrics *observability.Metrics) *CachedSource {
	return &CachedSource{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

// List is never cached so new files are always seen.
func (c *CachedSource) List(ctx context.Context) ([]Object, error) {
	return c.inner.List(ctx)
}

func (c *CachedSource) Open(ctx context.Context, obj Object) (io.ReadCloser, error) {
	key := cacheKey(obj)
	if data, ok := c.cache.get(key); ok {
		c.observe("hit")
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	c.observe("miss")

	rc, err := c.inner.Open(ctx, obj)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", obj.Name, err)
	}
	c.cache.put(key, data)
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Clear drops every cached file.
func (c *CachedSource) Clear() {
	c.cache.clear()
}

// Len returns the number of cached files.
func (c *CachedSource) Len() int {
	return c.cache.len()
}

func (c *CachedSource) observe(result string) {
	if c.metrics != nil {
		c.metrics.SourceCache.WithLabelValues(result).Inc()
	}
}

func cacheKey(obj Object) string {
	return fmt.Sprintf("%s@%d", obj.ID, obj.ModifiedAt.UnixNano())
}

// lruCache is a simple thread-safe LRU cache of file contents.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value []byte
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value []byte) {
	if c.maxEntries <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.head, c.tail = nil, nil
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}

package cache

import (
	"container/list"
	"path"
	"sync"
	"time"
)

// evictCause labels why an L1 entry left the cache.
type evictCause string

const (
	evictLRU      evictCause = "lru"
	evictTTL      evictCause = "ttl"
	evictExplicit evictCause = "explicit"
)

// memoryTier is the bounded in-memory tier. Eviction is strict LRU by
// access time; reads and writes both count as access. Expired entries
// are discarded lazily on read.
type memoryTier struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List // front = most recently used
	items    map[string]*list.Element

	onEvict func(evictCause)
	now     func() time.Time
}

type memoryEntry struct {
	key       string
	blob      []byte
	expiresAt time.Time
}

func newMemoryTier(capacity int, onEvict func(evictCause)) *memoryTier {
	if capacity < 1 {
		capacity = 1
	}
	if onEvict == nil {
		onEvict = func(evictCause) {}
	}
	return &memoryTier{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element, capacity),
		onEvict:  onEvict,
		now:      time.Now,
	}
}

// Get returns the blob for key, or (nil, false). A stale entry is
// removed and counted as a TTL eviction.
func (m *memoryTier) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*memoryEntry)
	if m.now().After(entry.expiresAt) {
		m.removeElement(el)
		m.onEvict(evictTTL)
		return nil, false
	}
	m.ll.MoveToFront(el)
	return entry.blob, true
}

// Set stores blob under key for ttl, evicting the least recently used
// entry when the tier is full.
func (m *memoryTier) Set(key string, blob []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expiresAt := m.now().Add(ttl)
	if el, ok := m.items[key]; ok {
		entry := el.Value.(*memoryEntry)
		entry.blob = blob
		entry.expiresAt = expiresAt
		m.ll.MoveToFront(el)
		return
	}

	el := m.ll.PushFront(&memoryEntry{key: key, blob: blob, expiresAt: expiresAt})
	m.items[key] = el

	if m.ll.Len() > m.capacity {
		oldest := m.ll.Back()
		if oldest != nil {
			m.removeElement(oldest)
			m.onEvict(evictLRU)
		}
	}
}

// DeletePattern removes every key matching the glob pattern and returns
// the number removed.
func (m *memoryTier) DeletePattern(pattern string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, el := range m.items {
		ok, err := path.Match(pattern, key)
		if err != nil {
			break // malformed pattern, nothing will match
		}
		if ok {
			m.removeElement(el)
			m.onEvict(evictExplicit)
			removed++
			_ = key
		}
	}
	return removed
}

// Len returns the live entry count, stale entries included until read.
func (m *memoryTier) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ll.Len()
}

func (m *memoryTier) removeElement(el *list.Element) {
	entry := el.Value.(*memoryEntry)
	m.ll.Remove(el)
	delete(m.items, entry.key)
}

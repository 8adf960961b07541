package cache

import (
	"container/list"
	"sync"
	"time"
)

type memoryEntry struct {
	digest        string
	data          []byte
	sourceModTime time.Time
	storedAt      time.Time
}

// memoryTier is the fast tier: an LRU bounded by entry count. An entry is
// servable only while its TTL has not elapsed and its recorded source
// modification time still matches the live source.
type memoryTier struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*list.Element
	lru      *list.List
}

func newMemoryTier(capacity int, ttl time.Duration) *memoryTier {
	return &memoryTier{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

func (m *memoryTier) get(digest string, sourceModTime time.Time) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[digest]
	if !ok {
		return nil, false
	}

	ent := elem.Value.(*memoryEntry)
	if !ent.sourceModTime.Equal(sourceModTime) || time.Since(ent.storedAt) > m.ttl {
		delete(m.items, digest)
		m.lru.Remove(elem)
		return nil, false
	}

	m.lru.MoveToFront(elem)
	return ent.data, true
}

func (m *memoryTier) put(digest string, data []byte, sourceModTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()

	if elem, ok := m.items[digest]; ok {
		ent := elem.Value.(*memoryEntry)
		ent.data = data
		ent.sourceModTime = sourceModTime
		ent.storedAt = now
		m.lru.MoveToFront(elem)
		return
	}

	if m.lru.Len() >= m.capacity {
		if oldest := m.lru.Back(); oldest != nil {
			delete(m.items, oldest.Value.(*memoryEntry).digest)
			m.lru.Remove(oldest)
		}
	}

	m.items[digest] = m.lru.PushFront(&memoryEntry{
		digest:        digest,
		data:          data,
		sourceModTime: sourceModTime,
		storedAt:      now,
	})
}

func (m *memoryTier) invalidate(digest string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.items[digest]; ok {
		delete(m.items, digest)
		m.lru.Remove(elem)
	}
}

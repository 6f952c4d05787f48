package cache

import (
	"container/list"
	"sync"
	"time"
)

// Stats is a point-in-time view of store counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Entries   int
	SizeBytes int64
}

// Store is a bounded in-memory LRU store with per-entry TTL.
//
// All operations are pure data-structure mutations under a single mutex;
// nothing blocks on I/O. The recency list front holds the most recently
// read entry, so the back is always the eviction candidate. Entries are
// appended in insertion order on first write, which makes insertion age
// the natural tie-break when nothing has been read yet.
type Store struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	lruList  *list.List
	size     int64

	hits      uint64
	misses    uint64
	evictions uint64
}

// lruEntry is the recency-list payload.
type lruEntry struct {
	key   string
	entry Entry
}

// NewStore creates a store holding at most capacity entries.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		panic("cache: capacity must be positive")
	}
	return &Store{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		lruList:  list.New(),
	}
}

// Get returns the value for key if present and fresh. A stale entry is
// removed and reported as a miss. A fresh hit promotes the entry to most
// recently used.
func (s *Store) Get(key Key) ([]byte, bool) {
	k := key.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	element, found := s.items[k]
	if !found {
		s.misses++
		CacheMisses.WithLabelValues("absent").Inc()
		return nil, false
	}

	le := element.Value.(*lruEntry)
	if le.entry.IsExpired() {
		s.removeElement(element)
		s.updateGauges()
		s.misses++
		CacheMisses.WithLabelValues("stale").Inc()
		return nil, false
	}

	s.lruList.MoveToFront(element)
	s.hits++
	CacheHits.Inc()
	return le.entry.Value, true
}

// Set inserts or overwrites the value for key. Inserting above capacity
// first evicts the least-recently-used entry. A non-positive ttl would
// describe an already-expired entry, so the write is dropped and any
// existing entry for key is left untouched.
func (s *Store) Set(key Key, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	k := key.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	if element, found := s.items[k]; found {
		le := element.Value.(*lruEntry)
		s.size += int64(len(value)) - int64(len(le.entry.Value))
		le.entry = Entry{Value: value, CachedAt: time.Now(), TTL: ttl}
		s.lruList.MoveToFront(element)
		s.updateGauges()
		return
	}

	for s.lruList.Len() >= s.capacity {
		back := s.lruList.Back()
		if back == nil {
			break
		}
		s.removeElement(back)
		s.evictions++
		CacheEvictions.Inc()
	}

	le := &lruEntry{
		key:   k,
		entry: Entry{Value: value, CachedAt: time.Now(), TTL: ttl},
	}
	s.items[k] = s.lruList.PushFront(le)
	s.size += int64(len(value))
	s.updateGauges()
}

// Delete removes the entry for key if present.
func (s *Store) Delete(key Key) {
	k := key.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	if element, found := s.items[k]; found {
		s.removeElement(element)
		s.updateGauges()
	}
}

// Purge removes all entries.
func (s *Store) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*list.Element)
	s.lruList = list.New()
	s.size = 0
	s.updateGauges()
}

// Len returns the current number of entries, stale ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lruList.Len()
}

// Stats returns a snapshot of the store counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Hits:      s.hits,
		Misses:    s.misses,
		Evictions: s.evictions,
		Entries:   s.lruList.Len(),
		SizeBytes: s.size,
	}
}

// removeElement removes an element (must be called with the lock held).
func (s *Store) removeElement(element *list.Element) {
	le := element.Value.(*lruEntry)
	delete(s.items, le.key)
	s.lruList.Remove(element)
	s.size -= int64(len(le.entry.Value))
}

// updateGauges refreshes size gauges (must be called with the lock held).
func (s *Store) updateGauges() {
	CacheEntries.Set(float64(s.lruList.Len()))
	CacheSizeBytes.Set(float64(s.size))
}

package store

import (
	"sync"

	"memecoin-radar/internal/domain"
)

// SeenSet tracks (source, link) keys across all scraping workers so the
// same post is never emitted twice. The duplicate check and the insert
// are one atomic operation.
type SeenSet struct {
	mu   sync.Mutex
	keys map[domain.PostKey]struct{}
}

// NewSeenSet creates an empty seen-set.
func NewSeenSet() *SeenSet {
	return &SeenSet{keys: make(map[domain.PostKey]struct{})}
}

// Warm preloads keys already present in the post store.
func (s *SeenSet) Warm(keys []domain.PostKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		s.keys[k] = struct{}{}
	}
}

// Add inserts the key and reports whether it was new. A false return
// means another worker (or a previous run) already claimed it.
func (s *SeenSet) Add(k domain.PostKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[k]; ok {
		return false
	}
	s.keys[k] = struct{}{}
	return true
}

// Len returns the number of tracked keys.
func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// IDCounter hands out process-wide monotonic post ids. It is seeded from
// the highest id on disk and shared by reference across workers.
type IDCounter struct {
	mu   sync.Mutex
	next int64
}

// NewIDCounter creates a counter that starts after the given last id.
func NewIDCounter(lastID int64) *IDCounter {
	return &IDCounter{next: lastID + 1}
}

// Next returns the next id. Ids are strictly increasing in allocation order.
func (c *IDCounter) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.next
	c.next++
	return id
}

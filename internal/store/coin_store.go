package store

import (
	"sync"

	"memecoin-radar/internal/domain"
)

// CoinStore persists market-enriched coin entries as a JSON array. Each
// enricher run replaces the document wholesale.
type CoinStore struct {
	mu  sync.Mutex
	doc document
}

// NewCoinStore creates a coin store backed by the given file path.
func NewCoinStore(path string) *CoinStore {
	return &CoinStore{doc: document{path: path}}
}

// Load returns the current contents of the store.
func (s *CoinStore) Load() ([]*domain.CoinEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []*domain.CoinEntry
	if err := s.doc.read(&entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Replace overwrites the document with the given entries.
func (s *CoinStore) Replace(entries []*domain.CoinEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entries == nil {
		entries = []*domain.CoinEntry{}
	}
	return s.doc.write(entries)
}

// Path returns the backing file path.
func (s *CoinStore) Path() string {
	return s.doc.path
}

package store

import (
	"sync"

	"memecoin-radar/internal/domain"
)

// SentimentStore persists token records as a JSON array. Each aggregator
// run replaces the document wholesale.
type SentimentStore struct {
	mu  sync.Mutex
	doc document
}

// NewSentimentStore creates a sentiment store backed by the given file path.
func NewSentimentStore(path string) *SentimentStore {
	return &SentimentStore{doc: document{path: path}}
}

// Load returns the current contents of the store.
func (s *SentimentStore) Load() ([]*domain.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []*domain.TokenRecord
	if err := s.doc.read(&records); err != nil {
		return nil, err
	}
	return records, nil
}

// Replace overwrites the document with the given records.
func (s *SentimentStore) Replace(records []*domain.TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if records == nil {
		records = []*domain.TokenRecord{}
	}
	return s.doc.write(records)
}

// Path returns the backing file path.
func (s *SentimentStore) Path() string {
	return s.doc.path
}

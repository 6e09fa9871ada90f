package store

import (
	"sort"
	"sync"

	"memecoin-radar/internal/domain"
)

// PostStore persists scraped posts as a JSON array with dedup-by-(source, link)
// merge semantics. All writes go through a read-merge-write cycle under the
// store mutex and commit via atomic rename.
type PostStore struct {
	mu  sync.Mutex
	doc document
}

// NewPostStore creates a post store backed by the given file path.
func NewPostStore(path string) *PostStore {
	return &PostStore{doc: document{path: path}}
}

// Load returns the current contents of the store.
func (s *PostStore) Load() ([]*domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *PostStore) load() ([]*domain.Post, error) {
	var posts []*domain.Post
	if err := s.doc.read(&posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// Append merges new posts into the store. Duplicate (source, link) keys
// keep the existing record, except that an empty token_name or empty
// comments list is upgraded from the incoming record.
func (s *PostStore) Append(posts ...*domain.Post) error {
	if len(posts) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load()
	if err != nil {
		return err
	}

	byKey := make(map[domain.PostKey]*domain.Post, len(existing))
	for _, p := range existing {
		if _, ok := byKey[p.Key()]; !ok {
			byKey[p.Key()] = p
		}
	}

	for _, p := range posts {
		if p == nil || p.Source == "" {
			return ErrInvalidInput
		}
		cur, ok := byKey[p.Key()]
		if !ok {
			byKey[p.Key()] = p
			existing = append(existing, p)
			continue
		}
		if cur.TokenSymbol == "" && p.TokenSymbol != "" {
			cur.TokenSymbol = p.TokenSymbol
		}
		if len(cur.Comments) == 0 && len(p.Comments) > 0 {
			cur.Comments = p.Comments
			cur.CommentCount = p.CommentCount
		}
	}

	sortPosts(existing)
	return s.doc.write(existing)
}

// Update applies fn to the post with the given id and commits the result.
// Returns ErrNotFound if no such post exists. Used by the token resolver
// to fill token_name after the post was appended.
func (s *PostStore) Update(id int64, fn func(*domain.Post)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	posts, err := s.load()
	if err != nil {
		return err
	}

	for _, p := range posts {
		if p.ID == id {
			fn(p)
			sortPosts(posts)
			return s.doc.write(posts)
		}
	}
	return ErrNotFound
}

// Reset overwrites the store with an empty array. Called by the control
// plane before a fresh scraping run.
func (s *PostStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.write([]*domain.Post{})
}

// MaxID returns the highest post id currently on disk, or 0 for an empty
// store. Used to seed the process-wide id counter.
func (s *PostStore) MaxID() (int64, error) {
	posts, err := s.Load()
	if err != nil {
		return 0, err
	}
	var max int64
	for _, p := range posts {
		if p.ID > max {
			max = p.ID
		}
	}
	return max, nil
}

// Keys returns the dedup keys of every stored post. Used to prime the
// shared seen-set at coordinator startup.
func (s *PostStore) Keys() ([]domain.PostKey, error) {
	posts, err := s.Load()
	if err != nil {
		return nil, err
	}
	keys := make([]domain.PostKey, 0, len(posts))
	for _, p := range posts {
		keys = append(keys, p.Key())
	}
	return keys, nil
}

// Exists reports whether the backing file is present. The supervisor uses
// this to preserve coin data when the document disappears mid-watch.
func (s *PostStore) Exists() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.exists()
}

// Path returns the backing file path.
func (s *PostStore) Path() string {
	return s.doc.path
}

// sortPosts orders the document by (source, id) for stable diffs,
// matching the layout the dashboard expects.
func sortPosts(posts []*domain.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		if posts[i].Source != posts[j].Source {
			return posts[i].Source < posts[j].Source
		}
		return posts[i].ID < posts[j].ID
	})
}

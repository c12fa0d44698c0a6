package feed

import (
	"sync"

	"bazaar/internal/domain"
)

// Store is the ordered, deduplicated set of posts shown by one feed.
type Store struct {
	mu      sync.RWMutex
	posts   []domain.DecoratedPost
	index   map[int64]int
	hasMore bool
}

func NewStore() *Store {
	return &Store{index: make(map[int64]int)}
}

// Replace overwrites the stored sequence with page, dropping repeated ids.
func (s *Store) Replace(page []domain.DecoratedPost) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.posts = make([]domain.DecoratedPost, 0, len(page))
	s.index = make(map[int64]int, len(page))
	s.appendLocked(page)
}

// Append merges page after the stored posts. Known ids keep their position
// and are not duplicated, so appending the same page twice is a no-op.
func (s *Store) Append(page []domain.DecoratedPost) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendLocked(page)
}

func (s *Store) appendLocked(page []domain.DecoratedPost) {
	for _, p := range page {
		if _, ok := s.index[p.ID]; ok {
			continue
		}

		s.index[p.ID] = len(s.posts)
		s.posts = append(s.posts, p)
	}
}

// Posts returns a copy of the stored sequence.
func (s *Store) Posts() []domain.DecoratedPost {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.DecoratedPost, len(s.posts))
	copy(out, s.posts)

	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.posts)
}

func (s *Store) Get(postID int64) (domain.DecoratedPost, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[postID]
	if !ok {
		return domain.DecoratedPost{}, false
	}

	return s.posts[i], true
}

// Update applies fn to the stored post in place. It reports false when the
// post is not stored.
func (s *Store) Update(postID int64, fn func(p *domain.DecoratedPost)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[postID]
	if !ok {
		return false
	}

	fn(&s.posts[i])

	return true
}

func (s *Store) HasMore() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.hasMore
}

func (s *Store) SetHasMore(hasMore bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hasMore = hasMore
}

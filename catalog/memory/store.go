package memory

import (
	"context"
	"sync"

	"github.com/versebook/verse-server/catalog"
)

type InMemoryStore struct {
	mu    sync.RWMutex
	books map[string]*catalog.Book
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		books: map[string]*catalog.Book{},
	}
}

func (s *InMemoryStore) GetBook(ctx context.Context, bookID string) (*catalog.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	book, ok := s.books[bookID]
	if !ok {
		return nil, catalog.ErrNotFound
	}

	cloned := *book
	return &cloned, nil
}

// AddBook seeds a catalog entry. The real catalog is written by the content
// pipeline, so this exists for tests only.
func (s *InMemoryStore) AddBook(book *catalog.Book) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cloned := *book
	s.books[book.ID] = &cloned
}

func (s *InMemoryStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.books = make(map[string]*catalog.Book)
}

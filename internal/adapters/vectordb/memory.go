// Package vectordb provides vector store adapters implementing ports.VectorStore.
package vectordb

import (
	"context"
	"sync"

	"github.com/0xcro3dile/ledgerrag-go/internal/domain/entities"
)

// InMemoryStore keeps the corpus in a slice, in ordinal order.
type InMemoryStore struct {
	mu   sync.RWMutex
	docs []entities.IndexedDocument
}

// NewInMemoryStore creates a new in-memory vector store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Replace swaps the stored corpus for docs.
func (s *InMemoryStore) Replace(ctx context.Context, docs []entities.IndexedDocument) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	next := make([]entities.IndexedDocument, len(docs))
	copy(next, docs)

	s.mu.Lock()
	s.docs = next
	s.mu.Unlock()
	return nil
}

// Search finds the most similar documents to a query embedding.
func (s *InMemoryStore) Search(ctx context.Context, embedding []float32, topK int) ([]entities.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return rank(embedding, s.docs, topK), nil
}

// Count returns the number of stored documents.
func (s *InMemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

// Clear removes all data from the store.
func (s *InMemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = nil
	return nil
}

package usecases

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/0xcro3dile/ledgerrag-go/internal/domain/entities"
	"github.com/0xcro3dile/ledgerrag-go/internal/domain/ports"
)

// DefaultTopK is the number of documents retrieved per question.
const DefaultTopK = 3

// IndexUseCase builds the retrieval index and answers similarity queries.
// The index is always rebuilt from the full corpus; there are no
// incremental updates.
type IndexUseCase struct {
	embedder    ports.EmbeddingService
	vectorStore ports.VectorStore

	buildMu sync.Mutex
	ready   atomic.Bool
}

// NewIndexUseCase creates an IndexUseCase with injected dependencies.
func NewIndexUseCase(embedder ports.EmbeddingService, vectorStore ports.VectorStore) *IndexUseCase {
	return &IndexUseCase{
		embedder:    embedder,
		vectorStore: vectorStore,
	}
}

// Build embeds every document and replaces the store content with them.
// Failures return a *entities.RetrievalIndexError and leave the previous
// index untouched. Concurrent builds are serialized.
func (uc *IndexUseCase) Build(ctx context.Context, docs []entities.RetrievalDocument) error {
	uc.buildMu.Lock()
	defer uc.buildMu.Unlock()

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}

	var embeddings [][]float32
	if len(texts) > 0 {
		var err error
		embeddings, err = uc.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return &entities.RetrievalIndexError{Op: "embed", Err: err}
		}
		if len(embeddings) != len(docs) {
			return &entities.RetrievalIndexError{
				Op:  "embed",
				Err: fmt.Errorf("got %d embeddings for %d documents", len(embeddings), len(docs)),
			}
		}
	}

	indexed := make([]entities.IndexedDocument, len(docs))
	for i, d := range docs {
		if len(embeddings[i]) == 0 {
			return &entities.RetrievalIndexError{Op: "embed", Err: fmt.Errorf("empty embedding for document %d", i)}
		}
		indexed[i] = entities.IndexedDocument{Document: d, Embedding: embeddings[i]}
	}

	if err := uc.vectorStore.Replace(ctx, indexed); err != nil {
		return &entities.RetrievalIndexError{Op: "store", Err: err}
	}
	uc.ready.Store(true)
	return nil
}

// Ready reports whether a build has succeeded.
func (uc *IndexUseCase) Ready() bool { return uc.ready.Load() }

// Search returns the topK documents most similar to query.
func (uc *IndexUseCase) Search(ctx context.Context, query string, topK int) ([]entities.SearchResult, error) {
	if !uc.ready.Load() {
		return nil, entities.ErrIndexNotReady
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	embedding, err := uc.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	results, err := uc.vectorStore.Search(ctx, embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("searching vectors: %w", err)
	}
	return results, nil
}

// Size returns the number of indexed documents.
func (uc *IndexUseCase) Size(ctx context.Context) (int, error) {
	return uc.vectorStore.Count(ctx)
}

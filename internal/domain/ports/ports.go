// Package ports defines interfaces for external dependencies.
// Usecases depend on these abstractions; adapters implement them.
package ports

import (
	"context"

	"github.com/0xcro3dile/ledgerrag-go/internal/domain/entities"
)

// EmbeddingService generates vector embeddings for text.
// The same model must be used for corpus documents and queries.
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMService generates text responses from a language model.
type LLMService interface {
	// Generate produces a complete response for the prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// GenerateStream produces a streaming response, token by token.
	GenerateStream(ctx context.Context, prompt string) (<-chan StreamToken, error)
}

// VectorStore holds embedded documents and answers similarity queries.
type VectorStore interface {
	// Replace atomically swaps the full content of the store.
	// On error the previous content stays in place.
	Replace(ctx context.Context, docs []entities.IndexedDocument) error

	// Search returns up to topK documents by descending similarity,
	// ties broken by corpus ordinal.
	Search(ctx context.Context, embedding []float32, topK int) ([]entities.SearchResult, error)

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)

	// Clear removes all data from the store.
	Clear(ctx context.Context) error
}

// LedgerLoader reads monthly ledger records from a tabular file.
type LedgerLoader interface {
	// Load returns the records in file order. On failure it returns an empty
	// record set together with a *entities.DataLoadError.
	Load(ctx context.Context, path string) ([]entities.LedgerRecord, error)
}

// StreamToken represents a single token in a streaming LLM response.
type StreamToken struct {
	Content string
	Done    bool
	Error   error
}

// FileWatcher monitors a directory for changes.
type FileWatcher interface {
	// Watch starts monitoring the directory and emits events.
	Watch(ctx context.Context, dir string) (<-chan FileEvent, error)

	// Stop stops the watcher.
	Stop() error
}

// FileEvent represents a file system change.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// FileOperation is the type of file change.
type FileOperation int

const (
	FileCreated FileOperation = iota
	FileModified
	FileDeleted
)

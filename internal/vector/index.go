// Package vector provides vector indices for cosine-similarity search over document embeddings.
package vector

import "context"

// VectorIndex defines vector storage and similarity search. Scores are cosine similarity,
// higher is more relevant. Search fails with models.ErrIndexUnavailable when the index is empty
// or its backend cannot be reached.
type VectorIndex interface {
	// Add inserts or replaces the vectors for ids.
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Remove(ctx context.Context, ids []string) error
	Size(ctx context.Context) (int, error)
	Type() string
	Close() error
}

// Persister is implemented by indices that live in process memory and snapshot to disk.
type Persister interface {
	Save(path string) error
	Load(path string) error
}

// VectorResult is a single vector search hit.
type VectorResult struct {
	ID    string
	Score float64
}

package vector

import (
	"context"
	"fmt"
)

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeMemory uses in-memory brute-force search snapshotted to a file. Good for small corpora.
	IndexTypeMemory IndexType = "memory"
	// IndexTypePGVector stores vectors in PostgreSQL with the pgvector extension.
	IndexTypePGVector IndexType = "pgvector"
)

// NewVectorIndex creates a vector index of the specified type.
// dsn is only used by pgvector.
func NewVectorIndex(ctx context.Context, indexType string, dimensions int, dsn string) (VectorIndex, error) {
	switch IndexType(indexType) {
	case IndexTypeMemory, "":
		return NewMemoryIndex(dimensions)
	case IndexTypePGVector:
		if dsn == "" {
			return nil, fmt.Errorf("pgvector index requires a dsn")
		}
		return NewPGVectorIndex(ctx, dsn, dimensions)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory, pgvector)", indexType)
	}
}

// Package embedding provides text embedders for the vector index and a caching wrapper.
package embedding

import "context"

// Embedder produces vector embeddings for text. All vectors returned by an Embedder
// have length Dimensions().
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// Package keyword provides the BM25 lexical index over document titles and content.
package keyword

import (
	"context"

	"github.com/hyperjump/lumi/internal/models"
)

// KeywordIndex defines lexical indexing and search operations.
type KeywordIndex interface {
	Index(ctx context.Context, id string, doc *models.Document) error
	// Search returns up to limit hits ordered by BM25 score. It fails with
	// models.ErrIndexUnavailable when the index holds no documents.
	Search(ctx context.Context, query string, limit int) ([]*KeywordResult, error)
	Delete(ctx context.Context, id string) error
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single keyword search hit.
type KeywordResult struct {
	ID    string
	Score float64
}

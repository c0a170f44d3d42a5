// Package storage persists indexed documents so index hits can be hydrated into full documents.
package storage

import (
	"context"

	"github.com/hyperjump/lumi/internal/models"
)

// Storage defines document persistence operations.
type Storage interface {
	// UpsertDocument inserts doc or replaces the stored document with the same ID.
	UpsertDocument(ctx context.Context, doc *models.Document) error
	// GetDocument returns models.ErrDocumentNotFound for unknown ids.
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	// GetDocuments returns the documents found among ids, keyed by ID. Unknown ids are omitted.
	GetDocuments(ctx context.Context, ids []string) (map[string]*models.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	// DeleteByParent removes every document whose parent_id is parentID and returns their ids.
	DeleteByParent(ctx context.Context, parentID string) ([]string, error)
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)
	CountDocuments(ctx context.Context) (int64, error)
	Close() error
}

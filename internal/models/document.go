// Package models defines core data structures for documents, retrieval results, and conversation turns.
package models

import "time"

// Metadata keys written by the indexer.
const (
	MetaSource     = "source"
	MetaURL        = "url"
	MetaParentID   = "parent_id"
	MetaChunkIndex = "chunk_index"
)

// Document is an indexed unit of text. Embedding is precomputed at seed time and
// never serialized to API clients.
type Document struct {
	ID        string            `json:"id" db:"id"`
	Title     string            `json:"title" db:"title"`
	Content   string            `json:"content" db:"content"`
	Metadata  map[string]string `json:"metadata" db:"metadata"`
	Embedding []float32         `json:"-" db:"-"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}

// DocumentInput is the input for seeding a document. Long content is split into
// several Documents by the indexer.
type DocumentInput struct {
	ID       string            `json:"id,omitempty"`
	Title    string            `json:"title,omitempty"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

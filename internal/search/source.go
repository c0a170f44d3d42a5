// Package search provides hybrid retrieval: a lexical and a vector source queried in
// parallel and fused into one ranking.
package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/lumi/internal/embedding"
	"github.com/hyperjump/lumi/internal/keyword"
	"github.com/hyperjump/lumi/internal/models"
	"github.com/hyperjump/lumi/internal/storage"
	"github.com/hyperjump/lumi/internal/vector"
)

// Source is one ranked retrieval backend. Query returns at most k documents ordered by
// descending score with ranks 1..n, or an error wrapping models.ErrIndexUnavailable.
type Source interface {
	Name() string
	Query(ctx context.Context, text string, k int) ([]*models.ScoredDocument, error)
}

// LexicalSource ranks documents by BM25 over the keyword index.
type LexicalSource struct {
	index  keyword.KeywordIndex
	store  storage.Storage
	logger *zap.Logger
}

// NewLexicalSource creates a lexical source that hydrates hits from store.
func NewLexicalSource(index keyword.KeywordIndex, store storage.Storage, logger *zap.Logger) *LexicalSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LexicalSource{index: index, store: store, logger: logger}
}

// Name returns the source name.
func (s *LexicalSource) Name() string { return models.SourceLexical }

// Query runs a BM25 search for text.
func (s *LexicalSource) Query(ctx context.Context, text string, k int) ([]*models.ScoredDocument, error) {
	hits, err := s.index.Search(ctx, text, k)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(hits))
	scores := make([]float64, len(hits))
	for i, h := range hits {
		ids[i], scores[i] = h.ID, h.Score
	}
	return hydrate(ctx, s.store, s.logger, s.Name(), ids, scores)
}

// VectorSource ranks documents by cosine similarity between the query embedding and
// the stored document embeddings.
type VectorSource struct {
	index    vector.VectorIndex
	embedder embedding.Embedder
	store    storage.Storage
	logger   *zap.Logger
}

// NewVectorSource creates a vector source that embeds queries with embedder.
func NewVectorSource(index vector.VectorIndex, embedder embedding.Embedder, store storage.Storage, logger *zap.Logger) *VectorSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VectorSource{index: index, embedder: embedder, store: store, logger: logger}
}

// Name returns the source name.
func (s *VectorSource) Name() string { return models.SourceVector }

// Query embeds text and searches the vector index. An embedding failure makes the
// vector side unavailable for this query.
func (s *VectorSource) Query(ctx context.Context, text string, k int) ([]*models.ScoredDocument, error) {
	emb, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", models.ErrIndexUnavailable, err)
	}
	return s.QueryEmbedding(ctx, emb, k)
}

// QueryEmbedding searches with a precomputed query embedding.
func (s *VectorSource) QueryEmbedding(ctx context.Context, emb []float32, k int) ([]*models.ScoredDocument, error) {
	hits, err := s.index.Search(ctx, emb, k)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(hits))
	scores := make([]float64, len(hits))
	for i, h := range hits {
		ids[i], scores[i] = h.ID, h.Score
	}
	return hydrate(ctx, s.store, s.logger, s.Name(), ids, scores)
}

// hydrate loads the documents for ranked ids, dropping ids missing from the store and
// duplicate ids, and renumbers ranks from 1.
func hydrate(ctx context.Context, store storage.Storage, logger *zap.Logger, source string, ids []string, scores []float64) ([]*models.ScoredDocument, error) {
	if len(ids) == 0 {
		return []*models.ScoredDocument{}, nil
	}
	docs, err := store.GetDocuments(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: %s hydrate: %v", models.ErrIndexUnavailable, source, err)
	}
	out := make([]*models.ScoredDocument, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for i, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		doc, ok := docs[id]
		if !ok {
			logger.Warn("indexed document missing from store", zap.String("source", source), zap.String("id", id))
			continue
		}
		out = append(out, &models.ScoredDocument{Document: doc, Score: scores[i], Rank: len(out) + 1})
	}
	return out, nil
}

package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/lumi/internal/models"
)

// Config holds the retrieval knobs.
type Config struct {
	// PerSourceTopK is the number of candidates requested from each source.
	PerSourceTopK int
	// TopK bounds the fused result, independently of PerSourceTopK.
	TopK int
	Weights Weights
	// QueryTimeout bounds each source query; a source that exceeds it is unavailable.
	QueryTimeout time.Duration
	// MinScore drops fused documents scoring below it before truncation. 0 disables it.
	MinScore float64
}

// DefaultConfig returns the default retrieval configuration.
func DefaultConfig() Config {
	return Config{
		PerSourceTopK: 10,
		TopK:          5,
		Weights:       DefaultWeights,
		QueryTimeout:  3 * time.Second,
	}
}

// Retriever queries a lexical and a vector source concurrently and fuses their rankings.
// One unavailable source degrades the result; both unavailable fails with
// models.ErrRetrievalUnavailable.
type Retriever struct {
	lexical Source
	vector  Source
	cfg     Config
	logger  *zap.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLogger sets the logger used for degraded-mode warnings and debug traces.
func WithLogger(l *zap.Logger) Option {
	return func(r *Retriever) { r.logger = l }
}

// NewRetriever creates a retriever. Zero-valued config fields take DefaultConfig values.
// Either source may be nil, in which case it is always unavailable.
func NewRetriever(lexical, vector Source, cfg Config, opts ...Option) *Retriever {
	def := DefaultConfig()
	if cfg.PerSourceTopK <= 0 {
		cfg.PerSourceTopK = def.PerSourceTopK
	}
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = def.QueryTimeout
	}
	cfg.Weights = cfg.Weights.Normalized()
	r := &Retriever{lexical: lexical, vector: vector, cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the effective configuration.
func (r *Retriever) Config() Config {
	return r.cfg
}

type sourceResult struct {
	docs []*models.ScoredDocument
	err  error
}

// Query retrieves and fuses documents for text. An empty result with a nil error means
// both sources answered and nothing matched.
func (r *Retriever) Query(ctx context.Context, text string) (*models.FusedResult, error) {
	start := time.Now()
	var (
		lex, vec sourceResult
		wg       sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		lex = r.querySource(ctx, r.lexical, models.SourceLexical, text)
	}()
	go func() {
		defer wg.Done()
		vec = r.querySource(ctx, r.vector, models.SourceVector, text)
	}()
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &models.FusedResult{Query: text, Sources: []string{}}
	switch {
	case lex.err != nil && vec.err != nil:
		r.logger.Error("retrieval unavailable",
			zap.String("query", text),
			zap.NamedError("lexical_error", lex.err),
			zap.NamedError("vector_error", vec.err))
		return nil, fmt.Errorf("%w: lexical: %v; vector: %v", models.ErrRetrievalUnavailable, lex.err, vec.err)
	case lex.err != nil:
		r.logger.Warn("retrieval degraded", zap.String("unavailable", models.SourceLexical), zap.Error(lex.err))
		result.Degraded = true
		result.Sources = append(result.Sources, models.SourceVector)
	case vec.err != nil:
		r.logger.Warn("retrieval degraded", zap.String("unavailable", models.SourceVector), zap.Error(vec.err))
		result.Degraded = true
		result.Sources = append(result.Sources, models.SourceLexical)
	default:
		result.Sources = append(result.Sources, models.SourceLexical, models.SourceVector)
	}

	fused := Fuse(lex.docs, vec.docs, r.cfg.Weights, 0)
	if r.cfg.MinScore > 0 {
		kept := fused[:0]
		for _, f := range fused {
			if f.Score >= r.cfg.MinScore {
				kept = append(kept, f)
			}
		}
		fused = kept
	}
	if len(fused) > r.cfg.TopK {
		fused = fused[:r.cfg.TopK]
	}
	result.Documents = fused
	result.QueryTime = time.Since(start).Milliseconds()

	r.logger.Debug("retrieval done",
		zap.String("query", text),
		zap.Int("lexical_hits", len(lex.docs)),
		zap.Int("vector_hits", len(vec.docs)),
		zap.Int("fused", len(fused)),
		zap.Bool("degraded", result.Degraded))
	return result, nil
}

// querySource runs one source under its own timeout. The query goroutine is abandoned
// when the timeout fires, so a source that ignores its context cannot stall retrieval.
func (r *Retriever) querySource(ctx context.Context, src Source, name, text string) sourceResult {
	if src == nil {
		return sourceResult{err: fmt.Errorf("%w: %s source not configured", models.ErrIndexUnavailable, name)}
	}
	qctx, cancel := context.WithTimeout(ctx, r.cfg.QueryTimeout)
	defer cancel()

	done := make(chan sourceResult, 1)
	go func() {
		docs, err := src.Query(qctx, text, r.cfg.PerSourceTopK)
		done <- sourceResult{docs: docs, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && !errors.Is(res.err, models.ErrIndexUnavailable) {
			res.err = fmt.Errorf("%w: %s: %v", models.ErrIndexUnavailable, name, res.err)
		}
		if res.err == nil && len(res.docs) > r.cfg.PerSourceTopK {
			res.docs = res.docs[:r.cfg.PerSourceTopK]
		}
		return res
	case <-qctx.Done():
		return sourceResult{err: fmt.Errorf("%w: %s: %v", models.ErrIndexUnavailable, name, qctx.Err())}
	}
}

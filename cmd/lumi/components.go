package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/lumi/internal/agent"
	"github.com/hyperjump/lumi/internal/config"
	"github.com/hyperjump/lumi/internal/embedding"
	"github.com/hyperjump/lumi/internal/extract"
	"github.com/hyperjump/lumi/internal/history"
	"github.com/hyperjump/lumi/internal/indexer"
	"github.com/hyperjump/lumi/internal/keyword"
	"github.com/hyperjump/lumi/internal/llm"
	"github.com/hyperjump/lumi/internal/search"
	"github.com/hyperjump/lumi/internal/storage"
	"github.com/hyperjump/lumi/internal/vector"
)

// Components holds initialized application components.
type Components struct {
	Storage      storage.Storage
	Embedder     embedding.Embedder
	VectorIndex  vector.VectorIndex
	KeywordIndex keyword.KeywordIndex
	Indexer      *indexer.Indexer
	Retriever    *search.Retriever
	// SpellChecker is nil when suggestions are disabled.
	SpellChecker *keyword.SpellChecker
	// History and Executor are nil unless the agent was requested.
	History  history.Store
	Executor *agent.Executor

	vectorIndexPath string
	logger          *zap.Logger
}

// Close snapshots an in-memory vector index and releases all resources.
func (c *Components) Close() {
	if p, ok := c.VectorIndex.(vector.Persister); ok && c.vectorIndexPath != "" {
		if err := p.Save(c.vectorIndexPath); err != nil {
			c.logger.Warn("vector index save failed", zap.String("path", c.vectorIndexPath), zap.Error(err))
		}
	}
	if c.History != nil {
		_ = c.History.Close()
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
	if c.VectorIndex != nil {
		_ = c.VectorIndex.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

// initializeComponents wires storage, indices and retrieval from cfg. When withAgent is
// set, the history store, the chat model and the executor are created as well.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, withAgent bool) (_ *Components, err error) {
	c := &Components{vectorIndexPath: cfg.Storage.VectorIndexPath, logger: logger}
	defer func() {
		if err != nil {
			c.vectorIndexPath = ""
			c.Close()
		}
	}()

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DatabasePath), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	c.Storage, err = storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	c.Embedder, err = newEmbedder(cfg.Embedding)
	if err != nil {
		return nil, err
	}

	c.VectorIndex, err = vector.NewVectorIndex(ctx, cfg.Storage.VectorBackend, c.Embedder.Dimensions(), cfg.Storage.VectorDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector index: %w", err)
	}
	if p, ok := c.VectorIndex.(vector.Persister); ok && cfg.Storage.VectorIndexPath != "" {
		if _, statErr := os.Stat(cfg.Storage.VectorIndexPath); statErr == nil {
			if err := p.Load(cfg.Storage.VectorIndexPath); err != nil {
				return nil, fmt.Errorf("failed to load vector index: %w", err)
			}
		} else if !errors.Is(statErr, os.ErrNotExist) {
			return nil, fmt.Errorf("stat vector index: %w", statErr)
		}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.BleveIndexPath), 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}
	bleveIndex, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath,
		keyword.WithTitleBoost(cfg.Retrieval.TitleBoost),
		keyword.WithPhraseBoost(cfg.Retrieval.PhraseBoost),
		keyword.WithFuzziness(cfg.Retrieval.Fuzziness),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create keyword index: %w", err)
	}
	c.KeywordIndex = bleveIndex
	if cfg.Retrieval.SpellCheckDistance > 0 {
		c.SpellChecker = keyword.NewSpellChecker(bleveIndex, keyword.WithMaxDistance(cfg.Retrieval.SpellCheckDistance))
	}

	taxonomy, err := indexer.LoadTaxonomy(cfg.Indexing.TaxonomyPath)
	if err != nil {
		return nil, err
	}
	c.Indexer = indexer.NewIndexer(
		c.Storage, c.Embedder, c.VectorIndex, c.KeywordIndex,
		cfg.Indexing.ChunkSize, cfg.Indexing.ChunkOverlap,
		indexer.WithExtractor(extract.NewExtractor()),
		indexer.WithTaxonomy(taxonomy),
		indexer.WithLogger(logger),
	)

	c.Retriever = search.NewRetriever(
		search.NewLexicalSource(c.KeywordIndex, c.Storage, logger),
		search.NewVectorSource(c.VectorIndex, c.Embedder, c.Storage, logger),
		search.Config{
			PerSourceTopK: cfg.Retrieval.PerSourceTopK,
			TopK:          cfg.Retrieval.TopK,
			Weights:       search.Weights{Lexical: cfg.Retrieval.LexicalWeight, Vector: cfg.Retrieval.VectorWeight},
			QueryTimeout:  cfg.Retrieval.QueryTimeout.Duration,
			MinScore:      cfg.Retrieval.MinScore,
		},
		search.WithLogger(logger),
	)

	if !withAgent {
		return c, nil
	}
	c.History, err = openHistory(ctx, cfg.History)
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}
	model, err := llm.NewOpenAIModel(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model,
		llm.WithTemperature(cfg.LLM.Temperature),
		llm.WithMaxTokens(cfg.LLM.MaxTokens),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	c.Executor = agent.NewExecutor(c.History, model, c.Retriever, agent.Config{
		SystemPrompt:      cfg.Agent.SystemPrompt,
		FallbackMode:      agent.FallbackMode(cfg.Agent.FallbackMode),
		FailClosedMessage: cfg.Agent.FailClosedMessage,
		HistoryWindow:     cfg.Agent.HistoryWindow,
		ModelTimeout:      cfg.LLM.Timeout.Duration,
		ToolResultLimit:   cfg.Retrieval.TopK,
	}, agent.WithLogger(logger))
	logger.Debug("components initialized",
		zap.String("vector_backend", c.VectorIndex.Type()),
		zap.String("history_backend", cfg.History.Backend),
		zap.String("llm_model", model.Name()),
	)
	return c, nil
}

func newEmbedder(cfg config.EmbeddingConfig) (embedding.Embedder, error) {
	var (
		e   embedding.Embedder
		err error
	)
	switch cfg.Provider {
	case "mock":
		e = embedding.NewMockEmbedder(cfg.Dimensions)
	case "openai", "":
		e, err = embedding.NewOpenAIEmbedder(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dimensions)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: openai, mock)", cfg.Provider)
	}
	if cfg.CacheSize > 0 {
		e = embedding.NewCachedEmbedder(e, cfg.CacheSize)
	}
	return e, nil
}

// openHistory maps the history config onto a store. A redis backend without a DSN uses
// redis_addr.
func openHistory(ctx context.Context, cfg config.HistoryConfig) (history.Store, error) {
	opts := history.Options{
		Backend:       cfg.Backend,
		DSN:           cfg.DSN,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		RedisPrefix:   cfg.RedisPrefix,
	}
	if history.Backend(cfg.Backend) == history.BackendRedis && opts.DSN == "" {
		opts.DSN = cfg.RedisAddr
	}
	return history.Open(ctx, opts)
}

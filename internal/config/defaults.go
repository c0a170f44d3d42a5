package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/lumi/data/db/documents.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/lumi/data/indices/bleve"
	}
	if cfg.Storage.VectorBackend == "" {
		cfg.Storage.VectorBackend = "memory"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "/usr/local/var/lumi/data/indices/vectors.bin"
	}
	if cfg.History.Backend == "" && cfg.History.DSN == "" && cfg.History.RedisAddr == "" {
		cfg.History.Backend = "sqlite"
		cfg.History.DSN = "/usr/local/var/lumi/data/db/history.db"
	}
	if cfg.History.Backend == "" && cfg.History.RedisAddr != "" && cfg.History.DSN == "" {
		cfg.History.Backend = "redis"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1536
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.Timeout.Duration == 0 {
		cfg.LLM.Timeout.Duration = 60 * time.Second
	}
	if cfg.Retrieval.PerSourceTopK == 0 {
		cfg.Retrieval.PerSourceTopK = 10
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.LexicalWeight == 0 && cfg.Retrieval.VectorWeight == 0 {
		cfg.Retrieval.LexicalWeight = 0.5
		cfg.Retrieval.VectorWeight = 0.5
	}
	if cfg.Retrieval.QueryTimeout.Duration == 0 {
		cfg.Retrieval.QueryTimeout.Duration = 3 * time.Second
	}
	if cfg.Retrieval.TitleBoost == 0 {
		cfg.Retrieval.TitleBoost = 2.0
	}
	if cfg.Retrieval.PhraseBoost == 0 {
		cfg.Retrieval.PhraseBoost = 1.5
	}
	if cfg.Retrieval.SpellCheckDistance == 0 {
		cfg.Retrieval.SpellCheckDistance = 2
	}
	if cfg.Agent.FallbackMode == "" {
		cfg.Agent.FallbackMode = "fail_open"
	}
	if cfg.Indexing.ChunkSize == 0 {
		cfg.Indexing.ChunkSize = 512
	}
	if cfg.Indexing.ChunkOverlap == 0 {
		cfg.Indexing.ChunkOverlap = 50
	}
	if cfg.Indexing.Extensions == nil {
		cfg.Indexing.Extensions = []string{".txt", ".md", ".rst", ".pdf", ".xlsx", ".html", ".htm", ".json", ".jsonl"}
	}
}

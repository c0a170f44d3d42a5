// Package config provides configuration loading and structs for the Lumi server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvOpenAIKey  = "OPENAI_API_KEY"
	EnvHistoryDSN = "LUMI_HISTORY_DSN"
	EnvVectorDSN  = "LUMI_VECTOR_DSN"
	EnvRedisAddr  = "LUMI_REDIS_ADDR"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	History   HistoryConfig   `yaml:"history"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Agent     AgentConfig     `yaml:"agent"`
	Indexing  IndexingConfig  `yaml:"indexing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the document database and indices.
type StorageConfig struct {
	DatabasePath    string `yaml:"database_path"`
	BleveIndexPath  string `yaml:"bleve_index_path"`
	VectorBackend   string `yaml:"vector_backend"`
	VectorIndexPath string `yaml:"vector_index_path"`
	VectorDSN       string `yaml:"vector_dsn"`
}

// HistoryConfig selects the session history backend. An empty backend is inferred from DSN.
type HistoryConfig struct {
	Backend       string `yaml:"backend"`
	DSN           string `yaml:"dsn"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
}

// EmbeddingConfig holds embedder settings. Provider is "openai" or "mock".
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	Dimensions int    `yaml:"dimensions"`
	CacheSize  int    `yaml:"cache_size"`
}

// LLMConfig holds chat model settings.
type LLMConfig struct {
	Model       string   `yaml:"model"`
	BaseURL     string   `yaml:"base_url"`
	APIKey      string   `yaml:"api_key"`
	Temperature float32  `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
	Timeout     Duration `yaml:"timeout"`
}

// RetrievalConfig holds hybrid retrieval settings.
type RetrievalConfig struct {
	PerSourceTopK int      `yaml:"per_source_top_k"`
	TopK          int      `yaml:"top_k"`
	LexicalWeight float64  `yaml:"lexical_weight"`
	VectorWeight  float64  `yaml:"vector_weight"`
	QueryTimeout  Duration `yaml:"query_timeout"`
	MinScore      float64  `yaml:"min_score"`
	TitleBoost    float64  `yaml:"title_boost"`
	PhraseBoost   float64  `yaml:"phrase_boost"`
	// Fuzziness is the edit distance of typo-tolerant term matching, 0 to 2. 0 disables it.
	Fuzziness int `yaml:"fuzziness"`
	// SpellCheckDistance bounds suggested query corrections. Negative disables suggestions.
	SpellCheckDistance int `yaml:"spell_check_distance"`
}

// AgentConfig holds decision loop settings.
type AgentConfig struct {
	FallbackMode      string `yaml:"fallback_mode"`
	FailClosedMessage string `yaml:"fail_closed_message"`
	HistoryWindow     int    `yaml:"history_window"`
	SystemPrompt      string `yaml:"system_prompt"`
}

// IndexingConfig holds seeding settings.
type IndexingConfig struct {
	ChunkSize    int      `yaml:"chunk_size"`
	ChunkOverlap int      `yaml:"chunk_overlap"`
	Extensions   []string `yaml:"extensions"`
	// TaxonomyPath is a YAML file mapping corpus directory names to labels. Empty uses the
	// built-in university taxonomy.
	TaxonomyPath string `yaml:"taxonomy_path"`
}

// Duration is a time.Duration written as a Go duration string ("3s", "1m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	if s == "" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Load reads and parses the config file at path, loads a .env file next to it when
// present, applies environment overrides and defaults, expands paths and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	configDir := filepath.Dir(path)
	if err := loadDotEnv(filepath.Join(configDir, ".env")); err != nil {
		return nil, err
	}
	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)

	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	if cfg.Indexing.TaxonomyPath != "" {
		cfg.Indexing.TaxonomyPath = expandPath(cfg.Indexing.TaxonomyPath, configDir)
	}
	if isFilePath(cfg.History.DSN) {
		cfg.History.DSN = expandPath(cfg.History.DSN, configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// loadDotEnv loads path into the environment without overriding variables already set.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides secrets and connection strings from the environment.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvOpenAIKey); v != "" {
		if cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = v
		}
		if cfg.Embedding.APIKey == "" {
			cfg.Embedding.APIKey = v
		}
	}
	if v := os.Getenv(EnvHistoryDSN); v != "" {
		cfg.History.DSN = v
	}
	if v := os.Getenv(EnvVectorDSN); v != "" {
		cfg.Storage.VectorDSN = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		cfg.History.RedisAddr = v
	}
}

// Validate rejects settings the components cannot run with.
func (c *Config) Validate() error {
	var errs []string
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if c.Retrieval.LexicalWeight < 0 || c.Retrieval.VectorWeight < 0 {
		errs = append(errs, "retrieval weights cannot be negative")
	}
	if c.Retrieval.PerSourceTopK < 0 || c.Retrieval.TopK < 0 {
		errs = append(errs, "retrieval top-k values cannot be negative")
	}
	if c.Retrieval.Fuzziness < 0 || c.Retrieval.Fuzziness > 2 {
		errs = append(errs, "retrieval.fuzziness must be between 0 and 2")
	}
	if c.Retrieval.QueryTimeout.Duration < 0 || c.LLM.Timeout.Duration < 0 {
		errs = append(errs, "timeouts cannot be negative")
	}
	if c.Retrieval.MinScore < 0 || c.Retrieval.MinScore > 1 {
		errs = append(errs, "retrieval.min_score must be between 0 and 1")
	}
	switch c.Agent.FallbackMode {
	case "fail_open", "fail_closed":
	default:
		errs = append(errs, fmt.Sprintf("agent.fallback_mode %q is not fail_open or fail_closed", c.Agent.FallbackMode))
	}
	if c.Agent.HistoryWindow < 0 {
		errs = append(errs, "agent.history_window cannot be negative")
	}
	switch c.Storage.VectorBackend {
	case "memory":
	case "pgvector":
		if c.Storage.VectorDSN == "" {
			errs = append(errs, "storage.vector_dsn is required for the pgvector backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage.vector_backend %q is not memory or pgvector", c.Storage.VectorBackend))
	}
	switch c.Embedding.Provider {
	case "openai", "mock":
	default:
		errs = append(errs, fmt.Sprintf("embedding.provider %q is not openai or mock", c.Embedding.Provider))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, "embedding.dimensions must be positive")
	}
	if c.Indexing.ChunkOverlap >= c.Indexing.ChunkSize {
		errs = append(errs, "indexing.chunk_overlap must be smaller than chunk_size")
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

// isFilePath reports whether dsn names a local file rather than a URL.
func isFilePath(dsn string) bool {
	return dsn != "" && dsn != ":memory:" && !strings.Contains(dsn, "://")
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}

// Package config loads the docqa configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mike-a-ellis/docqa/internal/retrieval"
)

// DefaultPath is read when no path is given.
const DefaultPath = "docqa.yaml"

// Server modes.
const (
	ModeHTTP  = "http"
	ModeStdio = "stdio"
)

// Index backends.
const (
	BackendFile   = "file"
	BackendQdrant = "qdrant"
)

// Embedding providers.
const (
	ProviderOpenAI = "openai"
	ProviderHash   = "hash"
)

type ServerConfig struct {
	Port string `yaml:"port"`
	// Mode is http or stdio. Stdio still serves HTTP in the background.
	Mode        string `yaml:"mode"`
	UploadDir   string `yaml:"upload_dir"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
}

type ChunkerConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
	// RepairExtraction applies the PDF/OCR spacing fixes before chunking.
	RepairExtraction bool `yaml:"repair_extraction"`
}

type EmbeddingConfig struct {
	Provider    string  `yaml:"provider"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Dimension   int     `yaml:"dimension"`
	BatchSize   int     `yaml:"batch_size"`
	TimeoutSecs int     `yaml:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit"` // requests per second, 0 disables
	Burst       int     `yaml:"burst"`
}

type LLMConfig struct {
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	// AnswerMode is single or two_step.
	AnswerMode string `yaml:"answer_mode"`
	Analyze    bool   `yaml:"analyze"`
}

type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
}

type IndexConfig struct {
	Backend string       `yaml:"backend"`
	Qdrant  QdrantConfig `yaml:"qdrant"`
}

type IndexerConfig struct {
	PoolSize   int `yaml:"pool_size"`
	EmbedBatch int `yaml:"embed_batch"`
}

type GitHubConfig struct {
	Owner string `yaml:"owner"`
	Repo  string `yaml:"repo"`
	Path  string `yaml:"path"`
	Ref   string `yaml:"ref"`
}

type WatchConfig struct {
	Dir        string `yaml:"dir"`
	DebounceMS int    `yaml:"debounce_ms"`
}

// Config is the root configuration.
type Config struct {
	DataDir   string           `yaml:"data_dir"`
	LogLevel  string           `yaml:"log_level"`
	Server    ServerConfig     `yaml:"server"`
	Chunker   ChunkerConfig    `yaml:"chunker"`
	Embedding EmbeddingConfig  `yaml:"embedding"`
	LLM       LLMConfig        `yaml:"llm"`
	Index     IndexConfig      `yaml:"index"`
	Indexer   IndexerConfig    `yaml:"indexer"`
	Retrieval retrieval.Config `yaml:"retrieval"`
	GitHub    GitHubConfig     `yaml:"github"`
	Watch     WatchConfig      `yaml:"watch"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{Retrieval: retrieval.DefaultConfig()}
	applyDefaults(cfg)
	return cfg
}

// Load reads the YAML file at path, applies environment overrides and
// validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	cfg := &Config{Retrieval: retrieval.DefaultConfig()}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = ModeHTTP
	}
	if cfg.Server.UploadDir == "" {
		cfg.Server.UploadDir = filepath.Join(cfg.DataDir, "uploads")
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 32
	}
	if cfg.Chunker.Size == 0 {
		cfg.Chunker.Size = 1200
	}
	if cfg.Chunker.Overlap == 0 {
		cfg.Chunker.Overlap = 200
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderOpenAI
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimension == 0 {
		if cfg.Embedding.Provider == ProviderHash {
			cfg.Embedding.Dimension = 384
		} else {
			cfg.Embedding.Dimension = 1536
		}
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 100
	}
	if cfg.Embedding.TimeoutSecs == 0 {
		cfg.Embedding.TimeoutSecs = 30
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 60
	}
	if cfg.LLM.AnswerMode == "" {
		cfg.LLM.AnswerMode = "single"
	}
	if cfg.Index.Backend == "" {
		cfg.Index.Backend = BackendFile
	}
	if cfg.Index.Qdrant.Host == "" {
		cfg.Index.Qdrant.Host = "localhost"
	}
	if cfg.Index.Qdrant.Port == 0 {
		cfg.Index.Qdrant.Port = 6334
	}
	if cfg.Index.Qdrant.Collection == "" {
		cfg.Index.Qdrant.Collection = "docqa_chunks"
	}
	if cfg.Indexer.EmbedBatch == 0 {
		cfg.Indexer.EmbedBatch = 16
	}
	if cfg.GitHub.Ref == "" {
		cfg.GitHub.Ref = "main"
	}
	if cfg.Watch.DebounceMS == 0 {
		cfg.Watch.DebounceMS = 500
	}
}

func applyEnv(cfg *Config) {
	cfg.DataDir = getEnv("DOCQA_DATA_DIR", cfg.DataDir)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		// SERVER_MODE=true means HTTP, anything else that is not a mode name means stdio.
		switch strings.ToLower(mode) {
		case "true", ModeHTTP:
			cfg.Server.Mode = ModeHTTP
		default:
			cfg.Server.Mode = ModeStdio
		}
	}
	cfg.Index.Qdrant.Host = getEnv("QDRANT_HOST", cfg.Index.Qdrant.Host)
	cfg.Index.Qdrant.Port = getEnvInt("QDRANT_PORT", cfg.Index.Qdrant.Port)
	cfg.Embedding.Provider = getEnv("EMBEDDING_PROVIDER", cfg.Embedding.Provider)
	cfg.Embedding.BaseURL = getEnv("OPENAI_BASE_URL", cfg.Embedding.BaseURL)
	cfg.LLM.Model = getEnv("LLM_MODEL", cfg.LLM.Model)
}

// Validate rejects unknown names and inconsistent sizes.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Mode != ModeHTTP && c.Server.Mode != ModeStdio {
		errs = append(errs, fmt.Errorf("server.mode must be %q or %q, got %q", ModeHTTP, ModeStdio, c.Server.Mode))
	}
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		errs = append(errs, fmt.Errorf("server.port %q is not a number", c.Server.Port))
	}
	if c.Index.Backend != BackendFile && c.Index.Backend != BackendQdrant {
		errs = append(errs, fmt.Errorf("index.backend must be %q or %q, got %q", BackendFile, BackendQdrant, c.Index.Backend))
	}
	if c.Embedding.Provider != ProviderOpenAI && c.Embedding.Provider != ProviderHash {
		errs = append(errs, fmt.Errorf("embedding.provider must be %q or %q, got %q", ProviderOpenAI, ProviderHash, c.Embedding.Provider))
	}
	if c.Embedding.Dimension < 0 {
		errs = append(errs, fmt.Errorf("embedding.dimension must be positive"))
	}
	if c.LLM.AnswerMode != "single" && c.LLM.AnswerMode != "two_step" {
		errs = append(errs, fmt.Errorf("llm.answer_mode must be single or two_step, got %q", c.LLM.AnswerMode))
	}
	if c.Chunker.Size <= 0 || c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.Size {
		errs = append(errs, fmt.Errorf("chunker.overlap (%d) must be smaller than chunker.size (%d)", c.Chunker.Overlap, c.Chunker.Size))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// IndexDir is where the file backend keeps its index.
func (c *Config) IndexDir() string {
	return filepath.Join(c.DataDir, "index")
}

// DBDir is where badger keeps sessions and the catalog.
func (c *Config) DBDir() string {
	return filepath.Join(c.DataDir, "db")
}

func (c *Config) EmbeddingTimeout() time.Duration {
	return time.Duration(c.Embedding.TimeoutSecs) * time.Second
}

func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSecs) * time.Second
}

func (c *Config) WatchDebounce() time.Duration {
	return time.Duration(c.Watch.DebounceMS) * time.Millisecond
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

// Package config loads service configuration from a TOML file with
// environment overrides for deployment-specific values and secrets.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"

	"github.com/DavidOlmos03/rag-base/internal/rag"
)

// Config is the full service configuration.
type Config struct {
	Server    Server    `toml:"server"`
	Log       Log       `toml:"log"`
	Store     Store     `toml:"store"`
	Cache     Cache     `toml:"cache"`
	Embedding Embedding `toml:"embedding"`
	Qdrant    Qdrant    `toml:"qdrant"`
	Pipeline  Pipeline  `toml:"pipeline"`
	Retrieval Retrieval `toml:"retrieval"`
}

type Server struct {
	Addr string `toml:"addr"`
}

type Log struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text or json
}

type Store struct {
	// Path is the SQLite database file; ":memory:" for ephemeral runs.
	Path string `toml:"path"`
}

type Cache struct {
	// Backend is "memory" or "redis".
	Backend  string `toml:"backend"`
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	TTLHours int    `toml:"ttl_hours"`
}

type Embedding struct {
	// Provider is "openai" or "ollama".
	Provider    string `toml:"provider"`
	Model       string `toml:"model"`
	Dimension   int    `toml:"dimension"`
	APIKey      string `toml:"api_key"`
	BaseURL     string `toml:"base_url"`
	BatchSize   int    `toml:"batch_size"`
	Concurrency int    `toml:"concurrency"`
}

type Qdrant struct {
	// Enabled switches the vector store from in-memory to Qdrant.
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
}

type Pipeline struct {
	Workers       int    `toml:"workers"`
	QueueSize     int    `toml:"queue_size"`
	ChunkStrategy string `toml:"chunk_strategy"`
	ChunkSize     int    `toml:"chunk_size"`
	ChunkOverlap  int    `toml:"chunk_overlap"`
	EmptyPolicy   string `toml:"empty_policy"` // short_circuit or generate
}

type Retrieval struct {
	TopK           int     `toml:"top_k"`
	ScoreThreshold float64 `toml:"score_threshold"`
	MaxTokens      int     `toml:"max_tokens"`
}

// Default returns a configuration suitable for local development.
func Default() Config {
	return Config{
		Server: Server{Addr: ":8080"},
		Log:    Log{Level: "info", Format: "text"},
		Store:  Store{Path: "rag.db"},
		Cache:  Cache{Backend: "memory", TTLHours: 24},
		Embedding: Embedding{
			Provider:    "openai",
			BatchSize:   64,
			Concurrency: 4,
		},
		Qdrant: Qdrant{Host: "localhost", Port: 6334},
		Pipeline: Pipeline{
			Workers:       2,
			QueueSize:     64,
			ChunkStrategy: "fixed",
			ChunkSize:     1000,
			ChunkOverlap:  200,
			EmptyPolicy:   "short_circuit",
		},
		Retrieval: Retrieval{TopK: 5, MaxTokens: 2000},
	}
}

// Load reads TOML from path (optional), applies environment overrides
// and validates the result. An empty path skips the file and uses
// defaults plus environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("%w: read config %s: %v", rag.ErrConfiguration, path, err)
		}
		if err := toml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: parse config %s: %v", rag.ErrConfiguration, path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv layers environment variables over the file. Secrets should
// come from here, not from the TOML file.
func (c *Config) applyEnv() {
	setString(&c.Server.Addr, "RAG_ADDR")
	setString(&c.Log.Level, "RAG_LOG_LEVEL")
	setString(&c.Store.Path, "RAG_DB_PATH")
	setString(&c.Cache.Backend, "RAG_CACHE_BACKEND")
	setString(&c.Cache.Addr, "REDIS_ADDR")
	setString(&c.Cache.Password, "REDIS_PASSWORD")
	setString(&c.Embedding.Provider, "RAG_EMBEDDING_PROVIDER")
	setString(&c.Embedding.Model, "RAG_EMBEDDING_MODEL")
	setString(&c.Embedding.APIKey, "OPENAI_API_KEY")
	setString(&c.Embedding.BaseURL, "RAG_EMBEDDING_BASE_URL")
	setString(&c.Qdrant.Host, "QDRANT_HOST")
	setInt(&c.Qdrant.Port, "QDRANT_PORT")
	if v := os.Getenv("RAG_QDRANT_ENABLED"); v != "" {
		c.Qdrant.Enabled = v == "1" || v == "true"
	}
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("%w: unknown cache backend %q", rag.ErrConfiguration, c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Cache.Addr == "" {
		return fmt.Errorf("%w: redis cache needs an address", rag.ErrConfiguration)
	}

	switch c.Embedding.Provider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", rag.ErrConfiguration, c.Embedding.Provider)
	}

	switch c.Pipeline.EmptyPolicy {
	case "short_circuit", "generate":
	default:
		return fmt.Errorf("%w: unknown empty policy %q", rag.ErrConfiguration, c.Pipeline.EmptyPolicy)
	}

	if c.Pipeline.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive", rag.ErrConfiguration)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("%w: retrieval top_k must be positive", rag.ErrConfiguration)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

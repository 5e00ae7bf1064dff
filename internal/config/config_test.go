package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DavidOlmos03/rag-base/internal/rag"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, "short_circuit", cfg.Pipeline.EmptyPolicy)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rag.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
addr = ":9090"

[pipeline]
chunk_strategy = "sentence"
chunk_size = 500
empty_policy = "generate"

[retrieval]
top_k = 8
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "sentence", cfg.Pipeline.ChunkStrategy)
	assert.Equal(t, 500, cfg.Pipeline.ChunkSize)
	assert.Equal(t, "generate", cfg.Pipeline.EmptyPolicy)
	assert.Equal(t, 8, cfg.Retrieval.TopK)

	// Unset fields keep defaults.
	assert.Equal(t, 2, cfg.Pipeline.Workers)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RAG_ADDR", ":7070")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("QDRANT_PORT", "7334")
	t.Setenv("RAG_QDRANT_ENABLED", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "sk-env", cfg.Embedding.APIKey)
	assert.Equal(t, 7334, cfg.Qdrant.Port)
	assert.True(t, cfg.Qdrant.Enabled)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/rag.toml")
	require.Error(t, err)
	assert.ErrorIs(t, err, rag.ErrConfiguration)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Cache.Backend = "memcached"
	assert.ErrorIs(t, cfg.Validate(), rag.ErrConfiguration)

	cfg = Default()
	cfg.Cache.Backend = "redis"
	assert.ErrorIs(t, cfg.Validate(), rag.ErrConfiguration, "redis without addr")

	cfg = Default()
	cfg.Embedding.Provider = "cohere"
	assert.ErrorIs(t, cfg.Validate(), rag.ErrConfiguration)

	cfg = Default()
	cfg.Pipeline.EmptyPolicy = "panic"
	assert.ErrorIs(t, cfg.Validate(), rag.ErrConfiguration)

	cfg = Default()
	cfg.Retrieval.TopK = 0
	assert.ErrorIs(t, cfg.Validate(), rag.ErrConfiguration)
}

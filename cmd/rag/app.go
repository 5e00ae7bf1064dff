package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/DavidOlmos03/rag-base/internal/cache"
	"github.com/DavidOlmos03/rag-base/internal/compressor"
	"github.com/DavidOlmos03/rag-base/internal/config"
	"github.com/DavidOlmos03/rag-base/internal/embedding"
	"github.com/DavidOlmos03/rag-base/internal/pipeline"
	"github.com/DavidOlmos03/rag-base/internal/prompt"
	"github.com/DavidOlmos03/rag-base/internal/retriever"
	"github.com/DavidOlmos03/rag-base/internal/store"
	"github.com/DavidOlmos03/rag-base/internal/vectorstore"
)

// app holds the assembled service graph and what must be torn down.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	orch   *pipeline.Orchestrator
	health interface {
		Health(ctx context.Context) error
	}

	closers []func() error
}

func (a *app) Close() {
	a.orch.Close()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

func newLogger(cfg config.Log) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// buildApp wires every pipeline stage from configuration.
func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	logger := newLogger(cfg.Log)
	a := &app{cfg: cfg, logger: logger}

	// Embedding cache.
	var vectorCache cache.Cache
	switch cfg.Cache.Backend {
	case "redis":
		rc, err := cache.Dial(ctx, cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB, logger)
		if err != nil {
			return nil, fmt.Errorf("connect redis at %s: %w", cfg.Cache.Addr, err)
		}
		a.closers = append(a.closers, rc.Close)
		vectorCache = rc
	default:
		vectorCache = cache.NewMemory()
	}

	// Embedding provider.
	var provider embedding.Provider
	switch cfg.Embedding.Provider {
	case "ollama":
		provider = embedding.NewOllamaProvider(embedding.OllamaConfig{
			BaseURL:   cfg.Embedding.BaseURL,
			Model:     cfg.Embedding.Model,
			Dimension: cfg.Embedding.Dimension,
		})
	default:
		p, err := embedding.NewOpenAIProvider(embedding.OpenAIConfig{
			APIKey:    cfg.Embedding.APIKey,
			BaseURL:   cfg.Embedding.BaseURL,
			Model:     cfg.Embedding.Model,
			Dimension: cfg.Embedding.Dimension,
		})
		if err != nil {
			return nil, err
		}
		provider = p
	}

	embedder := embedding.NewService(provider, vectorCache, logger, embedding.ServiceConfig{
		BatchSize:   cfg.Embedding.BatchSize,
		Concurrency: cfg.Embedding.Concurrency,
		CacheTTL:    time.Duration(cfg.Cache.TTLHours) * time.Hour,
	})

	// Vector store.
	var vectors vectorstore.Store
	if cfg.Qdrant.Enabled {
		qs, err := vectorstore.NewQdrantStore(cfg.Qdrant.Host, cfg.Qdrant.Port, embedder.Dimension(), logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, qs.Close)
		a.health = qs
		vectors = qs
	} else {
		vectors = vectorstore.NewMemory()
	}

	// Persistence.
	st, err := store.OpenSQLite(cfg.Store.Path, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, st.Close)

	search := retriever.New(embedder, vectors, logger)
	search.SetDefaultTopK(cfg.Retrieval.TopK)
	prompts, err := prompt.NewBuilder(prompt.Template{})
	if err != nil {
		return nil, err
	}

	orch, err := pipeline.New(st, embedder, vectors, search,
		compressor.New(cfg.Retrieval.MaxTokens), prompts, nil, logger,
		pipeline.Options{
			Workers:       cfg.Pipeline.Workers,
			QueueSize:     cfg.Pipeline.QueueSize,
			EmptyPolicy:   pipeline.EmptyPolicy(cfg.Pipeline.EmptyPolicy),
			ChunkStrategy: cfg.Pipeline.ChunkStrategy,
			ChunkSize:     cfg.Pipeline.ChunkSize,
			ChunkOverlap:  cfg.Pipeline.ChunkOverlap,
		})
	if err != nil {
		return nil, err
	}
	a.orch = orch

	logger.Info("pipeline assembled",
		"embedding_provider", cfg.Embedding.Provider,
		"embedding_model", embedder.ModelName(),
		"cache", cfg.Cache.Backend,
		"qdrant", cfg.Qdrant.Enabled,
		"db", cfg.Store.Path)
	return a, nil
}

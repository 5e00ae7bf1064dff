package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DavidOlmos03/rag-base/internal/cache"
	"github.com/DavidOlmos03/rag-base/internal/rag"
)

const (
	// DefaultBatchSize is the number of texts sent to the provider per call.
	DefaultBatchSize = 64

	// DefaultConcurrency bounds the number of in-flight provider batches.
	DefaultConcurrency = 4

	// DefaultCacheTTL is how long computed vectors stay cached.
	DefaultCacheTTL = 24 * time.Hour
)

// ServiceConfig tunes batching, concurrency and cache behaviour.
type ServiceConfig struct {
	BatchSize   int
	Concurrency int
	CacheTTL    time.Duration
}

// Service wraps a Provider with normalisation, deduplication, a TTL vector
// cache and bounded-concurrency batching. It is safe for concurrent use as
// long as the underlying provider and cache are.
type Service struct {
	provider    Provider
	cache       cache.Cache
	logger      *slog.Logger
	batchSize   int
	concurrency int
	cacheTTL    time.Duration
}

// NewService creates an embedding service. The cache may be nil, in which
// case every call hits the provider.
func NewService(provider Provider, c cache.Cache, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}

	return &Service{
		provider:    provider,
		cache:       c,
		logger:      logger,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		cacheTTL:    cfg.CacheTTL,
	}
}

// Dimension reports the provider's vector size.
func (s *Service) Dimension() int { return s.provider.Dimension() }

// ModelName reports the provider's model identifier.
func (s *Service) ModelName() string { return s.provider.ModelName() }

// Embed returns one vector per input text, in input order. Texts are
// whitespace-normalised before lookup, so " hello" and "hello" share a
// cache entry and a provider slot. Duplicate texts are computed once. If
// any provider batch fails the whole call fails.
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	normalized := make([]string, len(texts))
	for i, t := range texts {
		normalized[i] = strings.TrimSpace(t)
	}

	results := make([][]float32, len(texts))

	// Collect texts with no cached vector, deduplicated. positions maps a
	// unique text to every result slot it must fill.
	positions := make(map[string][]int)
	var uniques []string
	hits := 0

	for i, text := range normalized {
		if s.cache != nil {
			if vec, ok := s.cache.Get(ctx, s.cacheKey(text)); ok {
				results[i] = vec
				hits++
				continue
			}
		}
		if _, seen := positions[text]; !seen {
			uniques = append(uniques, text)
		}
		positions[text] = append(positions[text], i)
	}

	if len(uniques) == 0 {
		return results, nil
	}

	s.logger.Debug("computing embeddings",
		"total", len(texts),
		"cache_hits", hits,
		"uniques", len(uniques),
		"model", s.provider.ModelName())

	vectors := make([][]float32, len(uniques))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for start := 0; start < len(uniques); start += s.batchSize {
		end := start + s.batchSize
		if end > len(uniques) {
			end = len(uniques)
		}
		start, end := start, end

		g.Go(func() error {
			batch, err := s.provider.EmbedBatch(gctx, uniques[start:end])
			if err != nil {
				return fmt.Errorf("%w: %v", rag.ErrEmbedding, err)
			}
			if len(batch) != end-start {
				return fmt.Errorf("%w: provider returned %d vectors for %d texts",
					rag.ErrEmbedding, len(batch), end-start)
			}
			for i, vec := range batch {
				if len(vec) != s.provider.Dimension() {
					return fmt.Errorf("%w: vector has %d dimensions, want %d",
						rag.ErrEmbedding, len(vec), s.provider.Dimension())
				}
				vectors[start+i] = vec
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, text := range uniques {
		vec := vectors[i]
		if s.cache != nil {
			s.cache.Set(ctx, s.cacheKey(text), vec, s.cacheTTL)
		}
		for _, pos := range positions[text] {
			results[pos] = vec
		}
	}

	return results, nil
}

// cacheKey derives a stable key from the model name and the normalised
// text. A truncated SHA-256 keeps keys short without realistic collision
// risk.
func (s *Service) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + s.provider.ModelName() + ":" + hex.EncodeToString(sum[:])[:16]
}

// Package retriever turns a natural-language query into ranked fragment
// matches by embedding the query and searching the tenant's vector store.
package retriever

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/DavidOlmos03/rag-base/internal/rag"
	"github.com/DavidOlmos03/rag-base/internal/vectorstore"
)

const (
	// DefaultTopK is the number of fragments returned when unspecified.
	DefaultTopK = 5

	// DefaultScoreThreshold keeps every non-negative match. Callers raise
	// it to trade recall for precision.
	DefaultScoreThreshold float32 = 0.0
)

// Embedder is the slice of the embedding service the retriever needs.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Options tunes one retrieval call. Zero values fall back to the
// retriever's defaults.
type Options struct {
	TopK           int
	ScoreThreshold float32
	Filter         map[string]string
}

// Retriever performs semantic search over a tenant's ingested fragments.
type Retriever struct {
	embedder  Embedder
	store     vectorstore.Store
	logger    *slog.Logger
	topK      int
	threshold float32
}

// New creates a retriever with default TopK and score threshold.
func New(embedder Embedder, store vectorstore.Store, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder:  embedder,
		store:     store,
		logger:    logger,
		topK:      DefaultTopK,
		threshold: DefaultScoreThreshold,
	}
}

// SetDefaultTopK overrides the fallback result count used when a call
// does not specify TopK.
func (r *Retriever) SetDefaultTopK(k int) {
	if k > 0 {
		r.topK = k
	}
}

// Retrieve embeds the query and returns the tenant's most similar
// fragments, score descending. Scores are clamped to [0, 1] so callers
// can treat them as normalised relevance.
func (r *Retriever) Retrieve(ctx context.Context, tenantID, query string, opts Options) ([]rag.RetrievalResult, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: query is empty", rag.ErrInvalidRequest)
	}
	if opts.TopK <= 0 {
		opts.TopK = r.topK
	}
	if opts.ScoreThreshold == 0 {
		opts.ScoreThreshold = r.threshold
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := r.store.Search(ctx, tenantID, vectors[0], vectorstore.Query{
		TopK:           opts.TopK,
		ScoreThreshold: opts.ScoreThreshold,
		Filter:         opts.Filter,
	})
	if err != nil {
		return nil, fmt.Errorf("search vectors: %w", err)
	}

	results := make([]rag.RetrievalResult, 0, len(hits))
	for _, h := range hits {
		text, _ := h.Payload["text"].(string)
		results = append(results, rag.RetrievalResult{
			FragmentID: h.FragmentID,
			DocumentID: h.DocumentID,
			Text:       text,
			Score:      clampScore(h.Score),
			Metadata:   h.Payload,
		})
	}

	r.logger.Debug("retrieval complete",
		"tenant", tenantID,
		"top_k", opts.TopK,
		"results", len(results))

	return results, nil
}

// HybridRetrieve is reserved for combined dense and keyword search. It
// currently delegates to dense retrieval only.
func (r *Retriever) HybridRetrieve(ctx context.Context, tenantID, query string, opts Options) ([]rag.RetrievalResult, error) {
	return r.Retrieve(ctx, tenantID, query, opts)
}

// clampScore bounds cosine scores to [0, 1]. Negative similarity carries
// no useful relevance signal here.
func clampScore(s float32) float32 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

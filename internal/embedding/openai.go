package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/DavidOlmos03/rag-base/internal/rag"
)

const (
	// DefaultOpenAIModel is the embedding model used when none is
	// configured.
	DefaultOpenAIModel = "text-embedding-3-small"

	// DefaultOpenAIDimension is the vector size for text-embedding-3-small.
	DefaultOpenAIDimension = 1536
)

// OpenAIConfig holds configuration for the OpenAI embedding provider.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL overrides the API endpoint (optional; used for proxies and
	// tests).
	BaseURL string

	// Model is the embedding model (default: text-embedding-3-small).
	Model string

	// Dimension is the expected vector size (default: 1536).
	Dimension int
}

// OpenAIProvider generates embeddings via the OpenAI API. Rate-limit
// responses are retried with exponential backoff; other failures are
// permanent.
type OpenAIProvider struct {
	client openai.Client
	model  string
	dim    int
}

// NewOpenAIProvider creates an OpenAI embedding provider.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai embedding provider requires an API key", rag.ErrConfiguration)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultOpenAIDimension
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		dim:    cfg.Dimension,
	}, nil
}

func (p *OpenAIProvider) Dimension() int    { return p.dim }
func (p *OpenAIProvider) ModelName() string { return p.model }

// EmbedBatch generates embeddings for one batch with retry on rate limits.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var embeddings [][]float32

	operation := func() error {
		resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model: openai.EmbeddingModel(p.model),
		})
		if err != nil {
			if isRateLimitError(err) {
				return err // retried with backoff
			}
			return backoff.Permanent(err)
		}

		embeddings = make([][]float32, len(resp.Data))
		for i, data := range resp.Data {
			embeddings[i] = toFloat32(data.Embedding)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	return embeddings, nil
}

// isRateLimitError checks if the error is a rate limit error (HTTP 429).
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// toFloat32 converts the API's float64 vectors to float32 for storage.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}

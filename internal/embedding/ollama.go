package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Default configuration for the Ollama embedding provider.
const (
	DefaultOllamaBaseURL   = "http://localhost:11434"
	DefaultOllamaModel     = "nomic-embed-text"
	DefaultOllamaDimension = 768
	defaultOllamaTimeout   = 60 * time.Second
)

// OllamaConfig holds configuration for the Ollama embedding provider.
type OllamaConfig struct {
	BaseURL   string
	Model     string
	Dimension int
	Timeout   time.Duration
}

// OllamaProvider generates embeddings via a locally hosted Ollama server.
type OllamaProvider struct {
	client  *http.Client
	baseURL string
	model   string
	dim     int
}

// embedRequest is the Ollama /api/embed request format.
type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embedResponse is the Ollama /api/embed response format.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaProvider creates an Ollama embedding provider.
func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultOllamaDimension
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultOllamaTimeout
	}

	return &OllamaProvider{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		dim:     cfg.Dimension,
	}
}

func (p *OllamaProvider) Dimension() int    { return p.dim }
func (p *OllamaProvider) ModelName() string { return p.model }

func (p *OllamaProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	jsonBody, err := json.Marshal(embedRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		p.baseURL+"/api/embed",
		bytes.NewReader(jsonBody),
	)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("ollama error (status %d): failed to read response", resp.StatusCode)
		}
		return nil, fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(body))
	}

	var embResp embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(embResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs",
			len(embResp.Embeddings), len(texts))
	}
	return embResp.Embeddings, nil
}

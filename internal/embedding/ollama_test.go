package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaProvider_EmbedBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		assert.Equal(t, []string{"one", "two"}, req.Input)

		json.NewEncoder(w).Encode(embedResponse{
			Embeddings: [][]float32{{0.1, 0.2}, {0.3, 0.4}},
		})
	}))
	defer srv.Close()

	p := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL, Dimension: 2})

	vecs, err := p.EmbedBatch(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{0.1, 0.2}, vecs[0])
	assert.Equal(t, []float32{0.3, 0.4}, vecs[1])
}

func TestOllamaProvider_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL})

	_, err := p.EmbedBatch(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestOllamaProvider_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{1}}})
	}))
	defer srv.Close()

	p := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL})

	_, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	require.Error(t, err)
}

func TestOllamaProvider_Defaults(t *testing.T) {
	p := NewOllamaProvider(OllamaConfig{})
	assert.Equal(t, DefaultOllamaDimension, p.Dimension())
	assert.Equal(t, DefaultOllamaModel, p.ModelName())
}

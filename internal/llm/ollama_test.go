package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DavidOlmos03/rag-base/internal/rag"
)

func TestOllama_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)

		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.2", req.Model)
		assert.False(t, req.Stream)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Role)

		fmt.Fprint(w, `{
			"message": {"role": "assistant", "content": "the answer"},
			"done": true,
			"prompt_eval_count": 20,
			"eval_count": 3
		}`)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "llama3.2")

	resp, err := c.Generate(context.Background(), Request{System: "sys", User: "q"})
	require.NoError(t, err)
	assert.Equal(t, "the answer", resp.Text)
	assert.Equal(t, 20, resp.Usage.PromptTokens)
	assert.Equal(t, 3, resp.Usage.CompletionTokens)
}

func TestOllama_GenerateStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"message": {"content": "one "}, "done": false}`)
		fmt.Fprintln(w, `{"message": {"content": "two"}, "done": false}`)
		fmt.Fprintln(w, `{"message": {"content": ""}, "done": true, "prompt_eval_count": 7, "eval_count": 2}`)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "")

	stream, err := c.GenerateStream(context.Background(), Request{User: "q"})
	require.NoError(t, err)
	defer stream.Close()

	var text string
	var usage *Usage
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		text += chunk.Text
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
	}

	assert.Equal(t, "one two", text)
	require.NotNil(t, usage)
	assert.Equal(t, 7, usage.PromptTokens)
	assert.Equal(t, 2, usage.CompletionTokens)
}

func TestOllama_NoSystemMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		fmt.Fprint(w, `{"message": {"content": "ok"}, "done": true}`)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "")
	_, err := c.Generate(context.Background(), Request{User: "q"})
	require.NoError(t, err)
}

func TestOllama_NotFoundError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": "model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "missing-model")

	stream, err := c.GenerateStream(context.Background(), Request{User: "q"})
	require.Error(t, err)
	assert.Nil(t, stream)
	assert.ErrorIs(t, err, rag.ErrProviderUnavailable)
}

func TestOllama_Defaults(t *testing.T) {
	c := NewOllamaClient("", "")
	assert.Equal(t, "ollama", c.Provider())
	assert.Equal(t, DefaultOllamaChatModel, c.Model())
}

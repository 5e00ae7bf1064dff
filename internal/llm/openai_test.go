package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DavidOlmos03/rag-base/internal/rag"
)

func TestOpenAI_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Contains(t, r.Header.Get("Authorization"), "sk-test")

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "answer text"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 15, "completion_tokens": 5, "total_tokens": 20}
		}`)
	}))
	defer srv.Close()

	c, err := NewOpenAIClient("sk-test", srv.URL, "gpt-4o-mini")
	require.NoError(t, err)

	resp, err := c.Generate(context.Background(), Request{System: "sys", User: "q", MaxTokens: 100})
	require.NoError(t, err)
	assert.Equal(t, "answer text", resp.Text)
	assert.Equal(t, 15, resp.Usage.PromptTokens)
	assert.Equal(t, 5, resp.Usage.CompletionTokens)
}

func TestOpenAI_GenerateStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"str\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"eam\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[],\"usage\":{\"prompt_tokens\":8,\"completion_tokens\":2}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c, err := NewOpenAIClient("sk-test", srv.URL, "gpt-4o-mini")
	require.NoError(t, err)

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

	assert.Equal(t, "stream", text)
	require.NotNil(t, usage)
	assert.Equal(t, 8, usage.PromptTokens)
	assert.Equal(t, 2, usage.CompletionTokens)
}

func TestOpenAI_AuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		http.Error(w, `{"error": {"message": "invalid api key", "type": "invalid_request_error"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := NewOpenAIClient("sk-bad", srv.URL, "")
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), Request{User: "q"})
	require.Error(t, err)
	assert.ErrorIs(t, err, rag.ErrAuthentication)
}

func TestOpenAI_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIClient("", "", "")
	assert.ErrorIs(t, err, rag.ErrConfiguration)
}

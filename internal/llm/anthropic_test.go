package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DavidOlmos03/rag-base/internal/rag"
)

func TestAnthropic_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		require.Equal(t, "sk-ant-test", r.Header.Get("x-api-key"))
		require.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "be brief", req.System)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)
		assert.Equal(t, "hello", req.Messages[0].Content)
		assert.False(t, req.Stream)

		fmt.Fprint(w, `{
			"content": [{"type": "text", "text": "hi "}, {"type": "text", "text": "there"}],
			"usage": {"input_tokens": 12, "output_tokens": 4}
		}`)
	}))
	defer srv.Close()

	c, err := NewAnthropicClient("sk-ant-test", srv.URL, "claude-3-5-haiku-latest")
	require.NoError(t, err)

	resp, err := c.Generate(context.Background(), Request{System: "be brief", User: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Text)
	assert.Equal(t, 12, resp.Usage.PromptTokens)
	assert.Equal(t, 4, resp.Usage.CompletionTokens)
}

func TestAnthropic_GenerateStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: message_start\n")
		fmt.Fprint(w, "data: {\"type\": \"message_start\"}\n\n")
		fmt.Fprint(w, "event: content_block_delta\n")
		fmt.Fprint(w, "data: {\"type\": \"content_block_delta\", \"delta\": {\"type\": \"text_delta\", \"text\": \"hel\"}}\n\n")
		fmt.Fprint(w, "event: content_block_delta\n")
		fmt.Fprint(w, "data: {\"type\": \"content_block_delta\", \"delta\": {\"type\": \"text_delta\", \"text\": \"lo\"}}\n\n")
		fmt.Fprint(w, "event: message_delta\n")
		fmt.Fprint(w, "data: {\"type\": \"message_delta\", \"usage\": {\"input_tokens\": 9, \"output_tokens\": 2}}\n\n")
		fmt.Fprint(w, "event: message_stop\n")
		fmt.Fprint(w, "data: {\"type\": \"message_stop\"}\n\n")
	}))
	defer srv.Close()

	c, err := NewAnthropicClient("sk-ant-test", srv.URL, "")
	require.NoError(t, err)

	stream, err := c.GenerateStream(context.Background(), Request{User: "hello"})
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

	assert.Equal(t, "hello", text)
	require.NotNil(t, usage)
	assert.Equal(t, 9, usage.PromptTokens)
	assert.Equal(t, 2, usage.CompletionTokens)
}

func TestAnthropic_AuthError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error": {"type": "authentication_error"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := NewAnthropicClient("sk-bad", srv.URL, "")
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), Request{User: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, rag.ErrAuthentication)
	assert.Equal(t, int32(1), calls.Load(), "auth errors must not be retried")
}

func TestAnthropic_RateLimitRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, `{"error": {"type": "rate_limit_error"}}`, http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"content": [{"type": "text", "text": "ok"}], "usage": {"input_tokens": 1, "output_tokens": 1}}`)
	}))
	defer srv.Close()

	c, err := NewAnthropicClient("sk-ant-test", srv.URL, "")
	require.NoError(t, err)

	resp, err := c.Generate(context.Background(), Request{User: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAnthropic_InvalidRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": {"type": "invalid_request_error"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c, err := NewAnthropicClient("sk-ant-test", srv.URL, "")
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), Request{User: "x"})
	assert.ErrorIs(t, err, rag.ErrInvalidRequest)
}

func TestAnthropic_RequiresAPIKey(t *testing.T) {
	_, err := NewAnthropicClient("", "", "")
	assert.ErrorIs(t, err, rag.ErrConfiguration)
}

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/DavidOlmos03/rag-base/internal/rag"
)

const (
	// DefaultAnthropicBaseURL is the Anthropic API endpoint.
	DefaultAnthropicBaseURL = "https://api.anthropic.com"

	// DefaultAnthropicModel is used when no model is configured.
	DefaultAnthropicModel = "claude-3-5-haiku-latest"

	anthropicVersion        = "2023-06-01"
	defaultAnthropicTimeout = 120 * time.Second
)

// AnthropicClient talks to the Anthropic Messages API.
type AnthropicClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// NewAnthropicClient creates an Anthropic chat client.
func NewAnthropicClient(apiKey, baseURL, model string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: anthropic client requires an API key", rag.ErrConfiguration)
	}
	if baseURL == "" {
		baseURL = DefaultAnthropicBaseURL
	}
	if model == "" {
		model = DefaultAnthropicModel
	}

	return &AnthropicClient{
		httpClient: &http.Client{Timeout: defaultAnthropicTimeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
	}, nil
}

func (c *AnthropicClient) Provider() string { return "anthropic" }
func (c *AnthropicClient) Model() string    { return c.model }

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (c *AnthropicClient) send(ctx context.Context, req Request, stream bool) (*http.Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	body, err := json.Marshal(anthropicRequest{
		Model:       c.model,
		System:      req.System,
		Messages:    []anthropicMessage{{Role: "user", Content: req.User}},
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rag.ErrProviderUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		detail, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err != nil {
			detail = []byte("(unreadable error body)")
		}
		return nil, classifyStatus(resp.StatusCode, string(detail))
	}
	return resp, nil
}

func (c *AnthropicClient) Generate(ctx context.Context, req Request) (Response, error) {
	var out Response

	err := withRetry(ctx, func() error {
		resp, err := c.send(ctx, req, false)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var parsed anthropicResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return fmt.Errorf("%w: decode response: %v", rag.ErrProviderUnavailable, err)
		}

		var sb strings.Builder
		for _, block := range parsed.Content {
			if block.Type == "text" {
				sb.WriteString(block.Text)
			}
		}
		out = Response{
			Text: sb.String(),
			Usage: Usage{
				PromptTokens:     parsed.Usage.InputTokens,
				CompletionTokens: parsed.Usage.OutputTokens,
			},
		}
		return nil
	})

	return out, err
}

func (c *AnthropicClient) GenerateStream(ctx context.Context, req Request) (Stream, error) {
	resp, err := c.send(ctx, req, true)
	if err != nil {
		return nil, err
	}
	return &anthropicStream{
		body:    resp.Body,
		scanner: bufio.NewScanner(resp.Body),
	}, nil
}

// anthropicStream parses the Messages API server-sent event stream. Text
// arrives in content_block_delta events, usage in message_delta, and
// message_stop terminates the stream.
type anthropicStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner

	closeOnce sync.Once
	closeErr  error
}

type anthropicEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (s *anthropicStream) Recv() (Chunk, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}

		var event anthropicEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return Chunk{}, fmt.Errorf("%w: decode stream event: %v", rag.ErrProviderUnavailable, err)
		}

		switch event.Type {
		case "content_block_delta":
			if event.Delta.Type == "text_delta" {
				return Chunk{Text: event.Delta.Text}, nil
			}
		case "message_delta":
			if event.Usage.OutputTokens > 0 {
				return Chunk{Usage: &Usage{
					PromptTokens:     event.Usage.InputTokens,
					CompletionTokens: event.Usage.OutputTokens,
				}}, nil
			}
		case "message_stop":
			return Chunk{}, io.EOF
		case "error":
			return Chunk{}, fmt.Errorf("%w: stream error event: %s", rag.ErrProviderUnavailable, data)
		}
	}

	if err := s.scanner.Err(); err != nil {
		return Chunk{}, fmt.Errorf("%w: read stream: %v", rag.ErrProviderUnavailable, err)
	}
	return Chunk{}, io.EOF
}

func (s *anthropicStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}

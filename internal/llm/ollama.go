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
	// DefaultOllamaChatModel is used when no model is configured.
	DefaultOllamaChatModel = "llama3.2"

	defaultOllamaChatTimeout = 300 * time.Second
)

// OllamaClient talks to a local Ollama server's chat API. No API key is
// involved; authentication errors cannot occur.
type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

// NewOllamaClient creates an Ollama chat client.
func NewOllamaClient(baseURL, model string) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = DefaultOllamaChatModel
	}
	return &OllamaClient{
		httpClient: &http.Client{Timeout: defaultOllamaChatTimeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
	}
}

func (c *OllamaClient) Provider() string { return "ollama" }
func (c *OllamaClient) Model() string    { return c.model }

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// ollamaChatLine is one NDJSON line of the chat response. Non-streaming
// calls return a single line with done=true.
type ollamaChatLine struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done            bool `json:"done"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
}

func (c *OllamaClient) send(ctx context.Context, req Request, stream bool) (*http.Response, error) {
	messages := make([]ollamaMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, ollamaMessage{Role: "user", Content: req.User})

	body, err := json.Marshal(ollamaChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   stream,
		Options: ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

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

func (c *OllamaClient) Generate(ctx context.Context, req Request) (Response, error) {
	var out Response

	err := withRetry(ctx, func() error {
		resp, err := c.send(ctx, req, false)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var line ollamaChatLine
		if err := json.NewDecoder(resp.Body).Decode(&line); err != nil {
			return fmt.Errorf("%w: decode response: %v", rag.ErrProviderUnavailable, err)
		}

		out = Response{
			Text: line.Message.Content,
			Usage: Usage{
				PromptTokens:     line.PromptEvalCount,
				CompletionTokens: line.EvalCount,
			},
		}
		return nil
	})

	return out, err
}

func (c *OllamaClient) GenerateStream(ctx context.Context, req Request) (Stream, error) {
	resp, err := c.send(ctx, req, true)
	if err != nil {
		return nil, err
	}
	return &ollamaStream{
		body:    resp.Body,
		decoder: json.NewDecoder(bufio.NewReader(resp.Body)),
	}, nil
}

// ollamaStream reads the newline-delimited JSON chat stream. The final
// line carries done=true and token counts.
type ollamaStream struct {
	body    io.ReadCloser
	decoder *json.Decoder
	done    bool

	closeOnce sync.Once
	closeErr  error
}

func (s *ollamaStream) Recv() (Chunk, error) {
	if s.done {
		return Chunk{}, io.EOF
	}

	var line ollamaChatLine
	if err := s.decoder.Decode(&line); err != nil {
		if err == io.EOF {
			return Chunk{}, io.EOF
		}
		return Chunk{}, fmt.Errorf("%w: read stream: %v", rag.ErrProviderUnavailable, err)
	}

	if line.Done {
		s.done = true
		return Chunk{
			Text: line.Message.Content,
			Usage: &Usage{
				PromptTokens:     line.PromptEvalCount,
				CompletionTokens: line.EvalCount,
			},
		}, nil
	}
	return Chunk{Text: line.Message.Content}, nil
}

func (s *ollamaStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}

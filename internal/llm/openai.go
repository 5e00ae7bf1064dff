package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/DavidOlmos03/rag-base/internal/rag"
)

// DefaultOpenAIChatModel is used when no model is configured.
const DefaultOpenAIChatModel = "gpt-4o-mini"

// OpenAIClient talks to the OpenAI chat completions API.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient creates an OpenAI chat client. baseURL is optional and
// supports proxies and compatible servers.
func NewOpenAIClient(apiKey, baseURL, model string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: openai client requires an API key", rag.ErrConfiguration)
	}
	if model == "" {
		model = DefaultOpenAIChatModel
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAIClient{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

func (c *OpenAIClient) Provider() string { return "openai" }
func (c *OpenAIClient) Model() string    { return c.model }

func (c *OpenAIClient) params(req Request) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.User))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	return params
}

func (c *OpenAIClient) Generate(ctx context.Context, req Request) (Response, error) {
	var out Response

	err := withRetry(ctx, func() error {
		resp, err := c.client.Chat.Completions.New(ctx, c.params(req))
		if err != nil {
			return classifyOpenAIError(err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("%w: response has no choices", rag.ErrProviderUnavailable)
		}

		out = Response{
			Text: resp.Choices[0].Message.Content,
			Usage: Usage{
				PromptTokens:     int(resp.Usage.PromptTokens),
				CompletionTokens: int(resp.Usage.CompletionTokens),
			},
		}
		return nil
	})

	return out, err
}

func (c *OpenAIClient) GenerateStream(ctx context.Context, req Request) (Stream, error) {
	params := c.params(req)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	return &openaiStream{
		stream: c.client.Chat.Completions.NewStreaming(ctx, params),
	}, nil
}

type openaiStream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]

	closeOnce sync.Once
	closeErr  error
}

func (s *openaiStream) Recv() (Chunk, error) {
	for s.stream.Next() {
		chunk := s.stream.Current()

		// The usage-only final chunk has no choices.
		if len(chunk.Choices) == 0 {
			if chunk.Usage.CompletionTokens > 0 || chunk.Usage.PromptTokens > 0 {
				return Chunk{Usage: &Usage{
					PromptTokens:     int(chunk.Usage.PromptTokens),
					CompletionTokens: int(chunk.Usage.CompletionTokens),
				}}, nil
			}
			continue
		}
		if chunk.Choices[0].Delta.Content == "" {
			continue
		}
		return Chunk{Text: chunk.Choices[0].Delta.Content}, nil
	}

	if err := s.stream.Err(); err != nil {
		return Chunk{}, classifyOpenAIError(err)
	}
	return Chunk{}, io.EOF
}

func (s *openaiStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.stream.Close()
	})
	return s.closeErr
}

// classifyOpenAIError maps SDK errors onto the shared taxonomy. Transport
// errors without a status code count as provider unavailability.
func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.StatusCode, apiErr.Error())
	}
	return fmt.Errorf("%w: %v", rag.ErrProviderUnavailable, err)
}

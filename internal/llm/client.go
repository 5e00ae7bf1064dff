// Package llm provides chat-completion clients for OpenAI, Anthropic and
// Ollama behind one interface, with a shared error taxonomy and retry
// policy.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/DavidOlmos03/rag-base/internal/rag"
)

// Request is one generation call. System may be empty.
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Usage reports token consumption as counted by the provider.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Response is a complete, non-streamed generation.
type Response struct {
	Text  string
	Usage Usage
}

// Chunk is one increment of a streamed generation. Usage is only
// populated on the final chunk for providers that report it.
type Chunk struct {
	Text  string
	Usage *Usage
}

// Stream yields generation chunks. Recv returns io.EOF when the stream
// completes normally. Close releases the underlying connection and is
// safe to call more than once.
type Stream interface {
	Recv() (Chunk, error)
	Close() error
}

// Client generates text from one provider and model.
type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
	GenerateStream(ctx context.Context, req Request) (Stream, error)
	Provider() string
	Model() string
}

// classifyStatus maps provider HTTP status codes onto the shared error
// taxonomy so callers can react without knowing which provider ran.
func classifyStatus(status int, detail string) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", rag.ErrAuthentication, detail)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", rag.ErrRateLimited, detail)
	case status >= 500:
		return fmt.Errorf("%w: status %d: %s", rag.ErrProviderUnavailable, status, detail)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", rag.ErrInvalidRequest, detail)
	default:
		return fmt.Errorf("%w: unexpected status %d: %s", rag.ErrProviderUnavailable, status, detail)
	}
}

// retryable reports whether an error is worth retrying. Authentication
// and request errors never resolve on their own.
func retryable(err error) bool {
	return errors.Is(err, rag.ErrRateLimited) || errors.Is(err, rag.ErrProviderUnavailable)
}

// withRetry runs op with exponential backoff on transient failures.
func withRetry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	wrapped := func() error {
		err := op()
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.Retry(wrapped, backoff.WithContext(b, ctx))
}

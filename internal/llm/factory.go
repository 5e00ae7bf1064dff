package llm

import (
	"fmt"

	"github.com/DavidOlmos03/rag-base/internal/rag"
)

// Supported provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// New builds a client from a tenant's generation config. Unknown
// providers and missing credentials are configuration errors.
func New(cfg rag.GenerationConfig) (Client, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case ProviderAnthropic:
		return NewAnthropicClient(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case ProviderOllama:
		return NewOllamaClient(cfg.BaseURL, cfg.Model), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", rag.ErrConfiguration, cfg.Provider)
	}
}

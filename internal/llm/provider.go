package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ProviderConfig selects and configures a backend.
type ProviderConfig struct {
	Provider     string // anthropic, gemini, ollama, openai
	APIKey       string
	BaseURL      string
	Options      Options
	Retries      int
	RetryBackoff time.Duration
}

// New builds the configured backend, wrapped with the retry policy.
func New(ctx context.Context, pc ProviderConfig, logger *slog.Logger) (Client, error) {
	var c Client
	switch pc.Provider {
	case "anthropic":
		c = NewAnthropicClient(pc.APIKey, pc.BaseURL, pc.Options, logger)
	case "gemini", "":
		gc, err := NewGeminiClient(ctx, pc.APIKey, pc.BaseURL, pc.Options, logger)
		if err != nil {
			return nil, err
		}
		c = gc
	case "ollama":
		c = NewOllamaClient(pc.BaseURL, pc.Options, logger)
	case "openai":
		c = NewOpenAIClient(pc.APIKey, pc.BaseURL, pc.Options, logger)
	default:
		return nil, fmt.Errorf("unknown model provider %q", pc.Provider)
	}
	return WithRetries(c, pc.Retries, pc.RetryBackoff, logger), nil
}

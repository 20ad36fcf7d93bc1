package llm

import (
	"context"
	"fmt"
	"strings"
)

// NewClient creates a provider client from cfg. Clients that hold connections
// (Gemini) also implement io.Closer.
func NewClient(ctx context.Context, cfg Config) (Client, error) {
	var (
		client Client
		err    error
	)

	switch strings.ToLower(cfg.Provider) {
	case "openai":
		var c *openAIClient
		if c, err = newOpenAIClient(cfg); err == nil {
			client = c
		}
	case "anthropic", "":
		var c *anthropicClient
		if c, err = newAnthropicClient(cfg); err == nil {
			client = c
		}
	case "gemini":
		var c *geminiClient
		if c, err = newGeminiClient(ctx, cfg); err == nil {
			client = c
		}
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return client, nil
}

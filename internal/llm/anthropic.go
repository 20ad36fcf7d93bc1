package llm

import (
	"context"
	"net/http"
	"strings"
)

const anthropicVersion = "2023-06-01"

type messagesRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// anthropicClient sends the system prompt separately and joins the text blocks of the reply.
type anthropicClient struct {
	*restProvider
}

func newAnthropicClient(cfg Config) (*anthropicClient, error) {
	p, err := newRESTProvider("anthropic", "https://api.anthropic.com", "claude-3-5-haiku-latest", cfg, func(h http.Header) {
		h.Set("x-api-key", cfg.APIKey)
		h.Set("anthropic-version", anthropicVersion)
	})
	if err != nil {
		return nil, err
	}
	return &anthropicClient{restProvider: p}, nil
}

func (c *anthropicClient) Complete(ctx context.Context, prompt string) (string, error) {
	req := messagesRequest{
		Model:       c.model,
		System:      systemPrompt,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   c.maxToken,
		Temperature: c.temp,
	}

	var reply messagesResponse
	if err := c.post(ctx, "/v1/messages", req, &reply); err != nil {
		return "", err
	}

	var text strings.Builder
	for _, block := range reply.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", newError(KindInvalidResponse, "anthropic returned no text", nil)
	}
	return text.String(), nil
}

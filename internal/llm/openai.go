package llm

import (
	"context"
	"net/http"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// openAIClient talks to the chat completions endpoint in JSON mode.
type openAIClient struct {
	*restProvider
}

func newOpenAIClient(cfg Config) (*openAIClient, error) {
	p, err := newRESTProvider("OpenAI", "https://api.openai.com", "gpt-4o-mini", cfg, func(h http.Header) {
		h.Set("Authorization", "Bearer "+cfg.APIKey)
	})
	if err != nil {
		return nil, err
	}
	return &openAIClient{restProvider: p}, nil
}

func (c *openAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature:    c.temp,
		MaxTokens:      c.maxToken,
		ResponseFormat: map[string]string{"type": "json_object"},
	}

	var reply chatResponse
	if err := c.post(ctx, "/v1/chat/completions", req, &reply); err != nil {
		return "", err
	}
	for _, choice := range reply.Choices {
		if choice.Message.Content != "" {
			return choice.Message.Content, nil
		}
	}
	return "", newError(KindInvalidResponse, "OpenAI returned no completion", nil)
}

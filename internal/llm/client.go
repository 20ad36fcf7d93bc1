// Package llm is the generative-model fallback of the categorisation pipeline.
// It builds taxonomy-aware prompts, talks to Anthropic, OpenAI or Gemini, parses
// and validates their JSON replies, and tracks the daily usage quota.
package llm

//go:generate mockgen -source=client.go -destination=client_mock.go -package=llm

import (
	"context"
	"time"
)

// Client sends a single text prompt to a model and returns its text reply.
// Prompt construction and response parsing are the caller's responsibility.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config holds provider settings.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	Timeout     time.Duration
	RateLimit   int
	Temperature float64
	MaxTokens   int
}

const systemPrompt = "You are a UK personal finance assistant that categorises bank transactions. " +
	"You MUST respond with ONLY valid JSON. Do not include explanatory text or markdown formatting."

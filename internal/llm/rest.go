package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Veraticus/firetrack/internal/common"
)

const (
	defaultMaxTokens = 1024
	maxErrorBody     = 300
)

// restProvider holds what the JSON-over-HTTP providers have in common.
type restProvider struct {
	name     string
	baseURL  string
	http     *http.Client
	limiter  *rateLimiter
	auth     func(h http.Header)
	model    string
	maxToken int
	temp     float64
}

func newRESTProvider(name, defaultURL, defaultModel string, cfg Config, auth func(http.Header)) (*restProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s needs an API key", common.ErrMissingConfig, name)
	}
	p := &restProvider{
		name:     name,
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		http:     newHTTPClient(cfg.Timeout),
		limiter:  newRateLimiter(cfg.RateLimit),
		auth:     auth,
		model:    cfg.Model,
		maxToken: cfg.MaxTokens,
		temp:     cfg.Temperature,
	}
	if p.baseURL == "" {
		p.baseURL = defaultURL
	}
	if p.model == "" {
		p.model = defaultModel
	}
	if p.maxToken <= 0 {
		p.maxToken = defaultMaxTokens
	}
	return p, nil
}

// post waits for the rate limiter, sends payload to path and decodes a 200 reply into out.
func (p *restProvider) post(ctx context.Context, path string, payload, out any) error {
	if err := p.limiter.wait(ctx); err != nil {
		return err
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", p.name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build %s request: %w", p.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	p.auth(req.Header)

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", p.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s reply: %w", p.name, err)
	}
	if err := statusError(p.name, resp.StatusCode, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return newError(KindInvalidResponse, p.name+" returned an unreadable envelope", err)
	}
	return nil
}

// newHTTPClient builds the pooled HTTP client shared by the REST providers.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// statusError converts a non-200 provider response into an error. 429 wraps common.ErrRateLimit.
func statusError(provider string, status int, body []byte) error {
	switch status {
	case http.StatusOK:
		return nil
	case http.StatusTooManyRequests:
		return fmt.Errorf("%s rejected the call (status %d): %w", provider, status, common.ErrRateLimit)
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return newError(KindTimeout, fmt.Sprintf("%s timed out (status %d)", provider, status), nil)
	default:
		return fmt.Errorf("%s rejected the call (status %d): %s", provider, status, truncate(string(body), maxErrorBody))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

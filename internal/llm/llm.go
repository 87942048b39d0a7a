package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrModelUnavailable is returned when the endpoint reports the model
	// id as unknown for this key (a configurable set of statuses, 404 by default).
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrEmptyResponse is returned when the response carries no text.
	ErrEmptyResponse = errors.New("empty completion content")
)

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a chat-completion request.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

// Completer produces completion text for a chat request.
type Completer interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

// Client talks to an OpenAI-compatible chat-completions endpoint.
type Client struct {
	URL         string
	APIKey      string
	client      *http.Client
	limiter     *rate.Limiter
	unavailable map[int]bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithRequestsPerMinute throttles outbound requests. Zero or less disables throttling.
func WithRequestsPerMinute(n int) Option {
	return func(c *Client) {
		if n <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
	}
}

// WithUnavailableStatuses sets which response statuses mean ErrModelUnavailable.
func WithUnavailableStatuses(codes ...int) Option {
	return func(c *Client) {
		c.unavailable = make(map[int]bool, len(codes))
		for _, code := range codes {
			c.unavailable[code] = true
		}
	}
}

// NewClient creates a chat-completions client with the given per-call timeout.
func NewClient(url, apiKey string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		URL:         url,
		APIKey:      apiKey,
		client:      &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(rate.Inf, 1),
		unavailable: map[int]bool{http.StatusNotFound: true},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsConfigured checks if the API key is set.
func (c *Client) IsConfigured() bool {
	return c.APIKey != ""
}

// Complete sends the request and returns the trimmed first choice.
func (c *Client) Complete(ctx context.Context, req ChatRequest) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("generation API key not configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("generation API error: %w", err)
	}
	defer resp.Body.Close()

	if c.unavailable[resp.StatusCode] {
		log.Printf("Generation endpoint returned %d for model %q", resp.StatusCode, req.Model)
		return "", fmt.Errorf("%w: %q (status %d)", ErrModelUnavailable, req.Model, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("generation API returned %d: %s", resp.StatusCode, truncate(string(respBody), 500))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in response: %w", ErrEmptyResponse)
	}

	content := strings.TrimSpace(result.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

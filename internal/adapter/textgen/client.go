// Package textgen implements domain.AdviceGenerator against a Bedrock-style
// model invocation endpoint using the Anthropic messages format.
package textgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicVersion = "bedrock-2023-05-31"
	maxTokens        = 500
)

// Client drafts advisory text from a composed prompt. Generation outcomes
// are counted by the composer, which owns the fallback decision.
type Client struct {
	baseURL      string
	modelID      string
	systemPrompt string
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewClient creates a text generation client for the given model.
func NewClient(baseURL, modelID, systemPrompt string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		modelID:      modelID,
		systemPrompt: systemPrompt,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger,
	}
}

// Generate invokes the model with prompt and returns the first text block of
// the response.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(invokeRequest{
		AnthropicVersion: anthropicVersion,
		System:           c.systemPrompt,
		MaxTokens:        maxTokens,
		Messages: []message{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode generation request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/model/%s/invoke", c.baseURL, c.modelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("generation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("generation API error: status %d", resp.StatusCode)
	}

	var payload invokeResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode generation response: %w", err)
	}

	for _, block := range payload.Content {
		if text := strings.TrimSpace(block.Text); text != "" {
			c.logger.Debug("advisory generated", "length", len(text))
			return text, nil
		}
	}
	return "", errors.New("generation response has no text content")
}

// Model invocation request and response types.

type invokeRequest struct {
	AnthropicVersion string    `json:"anthropic_version"`
	System           string    `json:"system,omitempty"`
	MaxTokens        int       `json:"max_tokens"`
	Messages         []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type invokeResponse struct {
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

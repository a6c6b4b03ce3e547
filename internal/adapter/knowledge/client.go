// Package knowledge implements domain.SnippetRetriever against a
// Bedrock-style knowledge base retrieve endpoint.
package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/heat-advisory-service/internal/observability"
)

// Client retrieves supporting snippets for advisory composition. Retrieval
// is best-effort from the caller's point of view; the composer treats a
// failure here as "no supporting context", not as a dead message.
type Client struct {
	baseURL    string
	baseID     string
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a knowledge-base retrieval client.
func NewClient(baseURL, baseID string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		baseID:     baseID,
		httpClient: &http.Client{Timeout: timeout},
		metrics:    metrics,
		logger:     logger,
	}
}

// Retrieve returns the concatenated text of the top-k snippets for query.
// An empty result set is not an error.
func (c *Client) Retrieve(ctx context.Context, query string, k int) (string, error) {
	body, err := json.Marshal(retrieveRequest{
		RetrievalQuery: retrievalQuery{Text: query},
		RetrievalConfiguration: retrievalConfiguration{
			VectorSearchConfiguration: vectorSearchConfiguration{NumberOfResults: k},
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode retrieval request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/knowledgebases/%s/retrieve", c.baseURL, c.baseID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create retrieval request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RetrievalRequests.WithLabelValues("error").Inc()
		return "", fmt.Errorf("retrieval request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.RetrievalRequests.WithLabelValues("error").Inc()
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("retrieval API error: status %d", resp.StatusCode)
	}

	var payload retrieveResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.metrics.RetrievalRequests.WithLabelValues("error").Inc()
		return "", fmt.Errorf("decode retrieval response: %w", err)
	}

	var snippets []string
	for _, r := range payload.RetrievalResults {
		if text := strings.TrimSpace(r.Content.Text); text != "" {
			snippets = append(snippets, text)
		}
	}
	if len(snippets) == 0 {
		c.metrics.RetrievalRequests.WithLabelValues("empty").Inc()
		c.logger.Debug("retrieval returned no snippets", "query_length", len(query))
		return "", nil
	}

	c.metrics.RetrievalRequests.WithLabelValues("success").Inc()
	return strings.Join(snippets, "\n"), nil
}

// Knowledge base API request and response types.

type retrieveRequest struct {
	RetrievalQuery         retrievalQuery         `json:"retrievalQuery"`
	RetrievalConfiguration retrievalConfiguration `json:"retrievalConfiguration"`
}

type retrievalQuery struct {
	Text string `json:"text"`
}

type retrievalConfiguration struct {
	VectorSearchConfiguration vectorSearchConfiguration `json:"vectorSearchConfiguration"`
}

type vectorSearchConfiguration struct {
	NumberOfResults int `json:"numberOfResults"`
}

type retrieveResponse struct {
	RetrievalResults []retrievalResult `json:"retrievalResults"`
}

type retrievalResult struct {
	Content struct {
		Text string `json:"text"`
	} `json:"content"`
}

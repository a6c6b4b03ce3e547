// Package africastalking implements domain.SMSSender against the Africa's
// Talking messaging API.
package africastalking

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/heat-advisory-service/internal/observability"
)

const defaultBaseURL = "https://api.africastalking.com/version1/messaging"

// Client sends SMS messages through the Africa's Talking gateway. Response
// bodies carry recipient phone numbers, so they are never logged or echoed
// into errors.
type Client struct {
	apiKey     string
	username   string
	senderID   string
	baseURL    string
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an SMS gateway client.
func NewClient(apiKey, username, senderID string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		apiKey:   apiKey,
		username: username,
		senderID: senderID,
		baseURL:  defaultBaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
		metrics: metrics,
		logger:  logger,
	}
}

// Send dispatches one message to phone. An error means the gateway did not
// accept the message for delivery.
func (c *Client) Send(ctx context.Context, phone, message string) error {
	form := url.Values{
		"username": {c.username},
		"to":       {phone},
		"message":  {message},
	}
	if c.senderID != "" {
		form.Set("from", c.senderID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create SMS request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apiKey", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.SMSFailed.Inc()
		return fmt.Errorf("SMS request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.metrics.SMSFailed.Inc()
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("SMS gateway error: status %d", resp.StatusCode)
	}

	var payload sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		// Accepted by the gateway but the body did not parse; treat as sent.
		c.metrics.SMSSent.Inc()
		c.logger.Warn("unparseable SMS gateway response", "status", resp.StatusCode)
		return nil
	}

	for _, r := range payload.SMSMessageData.Recipients {
		if !acceptedStatus(r.StatusCode) {
			c.metrics.SMSFailed.Inc()
			return fmt.Errorf("SMS rejected: %s", r.Status)
		}
	}

	c.metrics.SMSSent.Inc()
	c.logger.Info("sms dispatched", "to", MaskPhone(phone), "length", len(message))
	return nil
}

// acceptedStatus reports whether a per-recipient status code means the
// gateway queued the message. 1xx codes are success; everything else
// (risk hold, insufficient balance, invalid number) is a failure.
func acceptedStatus(code int) bool {
	return code >= 100 && code < 200
}

// MaskPhone hides all but the last three digits of a phone number for logs.
func MaskPhone(phone string) string {
	if len(phone) <= 3 {
		return "***"
	}
	return strings.Repeat("*", len(phone)-3) + phone[len(phone)-3:]
}

// Africa's Talking API response types.

type sendResponse struct {
	SMSMessageData struct {
		Message    string      `json:"Message"`
		Recipients []recipient `json:"Recipients"`
	} `json:"SMSMessageData"`
}

type recipient struct {
	Status     string `json:"status"`
	StatusCode int    `json:"statusCode"`
	MessageID  string `json:"messageId"`
}

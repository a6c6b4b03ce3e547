// Package tomorrowio implements domain.ForecastProvider against the
// Tomorrow.io v4 forecast API.
package tomorrowio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/couchcryptid/heat-advisory-service/internal/domain"
	"github.com/couchcryptid/heat-advisory-service/internal/observability"
)

// Client fetches daily forecasts. Requests are wrapped in a circuit breaker
// so a provider outage trips fast instead of burning the daily call quota
// on timeouts.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	breaker    *gobreaker.CircuitBreaker
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Tomorrow.io forecast client.
func NewClient(apiKey string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "tomorrowio",
		MaxRequests: 3,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})
	return &Client{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    "https://api.tomorrow.io/v4/weather/forecast",
		breaker:    cb,
		metrics:    metrics,
		logger:     logger,
	}
}

// DailyForecast returns the first daily timeline entry for the coordinates.
func (c *Client) DailyForecast(ctx context.Context, lat, lon float64) (domain.DailyForecast, error) {
	params := url.Values{
		"location":  {fmt.Sprintf("%.6f,%.6f", lat, lon)},
		"apikey":    {c.apiKey},
		"timesteps": {"1d"},
	}

	start := time.Now()
	forecast, err := c.doRequest(ctx, c.baseURL+"?"+params.Encode())
	c.metrics.ForecastDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.ForecastRequests.WithLabelValues("error").Inc()
		return domain.DailyForecast{}, err
	}
	c.metrics.ForecastRequests.WithLabelValues("success").Inc()
	return forecast, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (domain.DailyForecast, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("forecast request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			// Drain without echoing the body; provider errors may include
			// the request URL with the API key.
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil, fmt.Errorf("forecast API error: status %d", resp.StatusCode)
		}

		var payload response
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return payload, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return domain.DailyForecast{}, fmt.Errorf("forecast circuit open: %w", err)
		}
		return domain.DailyForecast{}, err
	}

	payload, ok := result.(response)
	if !ok {
		return domain.DailyForecast{}, errors.New("unexpected result type from circuit breaker")
	}
	return mapResponse(payload)
}

func mapResponse(payload response) (domain.DailyForecast, error) {
	if len(payload.Timelines.Daily) == 0 {
		return domain.DailyForecast{}, errors.New("forecast response has no daily timeline")
	}

	day := payload.Timelines.Daily[0]
	values := make(map[string]float64, len(day.Values))
	for k, v := range day.Values {
		if f, ok := v.(float64); ok {
			values[k] = f
		}
	}
	if len(values) == 0 {
		return domain.DailyForecast{}, errors.New("forecast response has no numeric daily values")
	}

	date := day.Time
	if t, err := time.Parse(time.RFC3339, day.Time); err == nil {
		date = t.UTC().Format(domain.DateLayout)
	}
	return domain.DailyForecast{Date: date, Values: values}, nil
}

// Tomorrow.io API response types.

type response struct {
	Timelines struct {
		Daily []dailyEntry `json:"daily"`
	} `json:"timelines"`
}

type dailyEntry struct {
	Time   string         `json:"time"`
	Values map[string]any `json:"values"`
}

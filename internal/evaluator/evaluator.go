// Package evaluator checks queued locations against the daily forecast and
// forwards the ones the threshold policy triggers on.
package evaluator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/heat-advisory-service/internal/domain"
	"github.com/couchcryptid/heat-advisory-service/internal/observability"
)

// Evaluator is the pipeline handler for the location topic. Forecast
// failures skip the message; the location is re-queued by the next resolver
// scan, so a transient provider outage costs a day at worst.
type Evaluator struct {
	forecasts domain.ForecastProvider
	policy    domain.ThresholdPolicy
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates the evaluator handler.
func New(forecasts domain.ForecastProvider, policy domain.ThresholdPolicy, logger *slog.Logger, metrics *observability.Metrics) *Evaluator {
	return &Evaluator{
		forecasts: forecasts,
		policy:    policy,
		logger:    logger.With("stage", "evaluator"),
		metrics:   metrics,
	}
}

// Handle evaluates one location message. A below-threshold observation is a
// clean filter-out, not an error.
func (e *Evaluator) Handle(ctx context.Context, msg domain.InboundMessage) ([]domain.OutboundMessage, error) {
	loc, err := domain.ParseLocationMessage(msg.Value)
	if err != nil {
		return nil, err
	}

	forecast, err := e.forecasts.DailyForecast(ctx, loc.Latitude, loc.Longitude)
	if err != nil {
		return nil, fmt.Errorf("forecast for %s: %w", domain.LocationKey(loc.Latitude, loc.Longitude), err)
	}

	observed, ok := forecast.Field(e.policy.Field)
	if !ok {
		return nil, fmt.Errorf("forecast has no %q field", e.policy.Field)
	}

	if !e.policy.Allows(observed) {
		e.logger.Debug("below threshold",
			"contact_id", loc.ContactID,
			"observed", observed,
			"threshold", e.policy.Value,
		)
		return nil, nil
	}

	if e.policy.Bypass {
		e.logger.Info("threshold bypassed", "contact_id", loc.ContactID, "observed", observed)
	}

	result := domain.WeatherResult{LocationMessage: loc, TemperatureMax: observed}
	out, err := result.Outbound()
	if err != nil {
		return nil, err
	}
	return []domain.OutboundMessage{out}, nil
}

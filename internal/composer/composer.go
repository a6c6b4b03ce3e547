// Package composer turns triggered weather results into personalized
// advisory payloads for the notify topic.
package composer

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/heat-advisory-service/internal/domain"
	"github.com/couchcryptid/heat-advisory-service/internal/observability"
)

// snippetCount caps how many knowledge-base snippets ground one advisory.
const snippetCount = 3

// Composer is the pipeline handler for the weather-result topic. Both of
// its collaborators degrade rather than fail the message: a retrieval
// failure composes without supporting context, a generation failure
// substitutes the fixed fallback advice. A triggered alert always reaches
// the notify topic.
type Composer struct {
	retriever domain.SnippetRetriever
	generator domain.AdviceGenerator
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates the composer handler. retriever may be nil when no knowledge
// base is configured; advisories are then composed without context.
func New(retriever domain.SnippetRetriever, generator domain.AdviceGenerator, logger *slog.Logger, metrics *observability.Metrics) *Composer {
	return &Composer{
		retriever: retriever,
		generator: generator,
		logger:    logger.With("stage", "composer"),
		metrics:   metrics,
	}
}

// Handle composes one advisory.
func (c *Composer) Handle(ctx context.Context, msg domain.InboundMessage) ([]domain.OutboundMessage, error) {
	result, err := domain.ParseWeatherResult(msg.Value)
	if err != nil {
		return nil, err
	}

	query := domain.BuildRetrievalQuery(result.MaternalStatus, result.MedicalConditions, result.TemperatureMax)

	var snippets string
	if c.retriever != nil {
		snippets, err = c.retriever.Retrieve(ctx, query, snippetCount)
		if err != nil {
			c.logger.Warn("retrieval failed, composing without context",
				"error", err, "contact_id", result.ContactID)
			snippets = ""
		}
	}

	prompt := domain.BuildAdvisoryPrompt(result, snippets)

	advice, err := c.generator.Generate(ctx, prompt)
	if err != nil {
		c.logger.Warn("generation failed, using fallback advice",
			"error", err, "contact_id", result.ContactID)
		c.metrics.GenerationRequests.WithLabelValues("fallback").Inc()
		advice = domain.FallbackAdvice
	} else {
		c.metrics.GenerationRequests.WithLabelValues("success").Inc()
	}

	delivery := domain.DeliveryMessage{
		ContactID:         result.ContactID,
		Latitude:          result.Latitude,
		Longitude:         result.Longitude,
		TodayDate:         result.TodayDate,
		TemperatureMax:    result.TemperatureMax,
		MaternalStatus:    result.MaternalStatus,
		MedicalConditions: result.MedicalConditions,
		AdviceText:        advice,
		Language:          result.Language,
		PhoneNumber:       result.PhoneNumber,
		FacilityName:      result.FacilityName,
	}
	out, err := delivery.Outbound()
	if err != nil {
		return nil, err
	}
	return []domain.OutboundMessage{out}, nil
}

// Package resolver implements the scheduled scan that turns the recipient
// store into a stream of unique location messages.
package resolver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/heat-advisory-service/internal/domain"
	"github.com/couchcryptid/heat-advisory-service/internal/observability"
	"github.com/couchcryptid/heat-advisory-service/internal/pipeline"
)

// Resolver scans recipient profiles, deduplicates them by location grid
// cell, and queues one location message per cell. A store error aborts the
// run; the next scheduled scan starts over, and downstream dedup by
// last-alert date keeps the rerun harmless.
type Resolver struct {
	store     domain.RecipientStore
	publisher pipeline.Publisher
	pageSize  int
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// Report summarizes one completed scan.
type Report struct {
	Scanned int
	Queued  int
	Date    string
}

// New creates a resolver over the given store and location-topic publisher.
func New(store domain.RecipientStore, publisher pipeline.Publisher, pageSize int, logger *slog.Logger, metrics *observability.Metrics) *Resolver {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Resolver{
		store:     store,
		publisher: publisher,
		pageSize:  pageSize,
		logger:    logger.With("stage", "resolver"),
		metrics:   metrics,
	}
}

// Run performs one full scan. todayOverride pins the calendar date for the
// scan; empty means the current UTC date.
func (r *Resolver) Run(ctx context.Context, todayOverride string) (Report, error) {
	today := todayOverride
	if today == "" {
		today = domain.Today()
	}
	r.logger.Info("scan started", "date", today)

	seen := make(map[string]struct{})
	report := Report{Date: today}
	token := ""

	for {
		page, err := r.store.ScanPage(ctx, token, r.pageSize)
		if err != nil {
			return report, fmt.Errorf("scanning recipients: %w", err)
		}

		var outs []domain.OutboundMessage
		for _, p := range page.Profiles {
			report.Scanned++
			r.metrics.RecipientsScanned.Inc()

			if !p.HasLocation() {
				r.logger.Debug("skipping recipient without coordinates", "contact_id", p.ContactID)
				continue
			}
			if p.LastAlertDate == today {
				r.logger.Debug("skipping recipient already alerted today", "contact_id", p.ContactID)
				continue
			}

			key := domain.LocationKey(p.Latitude, p.Longitude)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			out, err := domain.NewLocationMessage(p, today).Outbound()
			if err != nil {
				return report, fmt.Errorf("serializing location for %s: %w", p.ContactID, err)
			}
			outs = append(outs, out)
		}

		if len(outs) > 0 {
			if err := r.publisher.Publish(ctx, outs); err != nil {
				return report, fmt.Errorf("publishing locations: %w", err)
			}
			report.Queued += len(outs)
			r.metrics.LocationsQueued.Add(float64(len(outs)))
		}

		if page.NextToken == "" {
			break
		}
		token = page.NextToken
	}

	r.logger.Info("scan complete", "date", today, "scanned", report.Scanned, "queued", report.Queued)
	return report, nil
}

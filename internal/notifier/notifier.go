// Package notifier is the terminal stage: it delivers composed advisories
// through the SMS gateway.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/couchcryptid/heat-advisory-service/internal/adapter/africastalking"
	"github.com/couchcryptid/heat-advisory-service/internal/domain"
	"github.com/couchcryptid/heat-advisory-service/internal/observability"
)

// AlertMarker stamps a recipient's last alert date after a successful send.
// Optional; when absent the next resolver scan relies on the loader keeping
// last_alert_date current out of band.
type AlertMarker interface {
	MarkAlerted(ctx context.Context, contactID, date string) error
}

// Notifier is the pipeline handler for the notify topic. A failed or
// invalid delivery is counted and skipped; one bad number never blocks the
// partition behind it.
type Notifier struct {
	sender  domain.SMSSender
	marker  AlertMarker
	logger  *slog.Logger
	metrics *observability.Metrics

	processed atomic.Int64
	failed    atomic.Int64
}

// New creates the notifier handler. marker may be nil to disable the
// last-alert-date write-back.
func New(sender domain.SMSSender, marker AlertMarker, logger *slog.Logger, metrics *observability.Metrics) *Notifier {
	return &Notifier{
		sender:  sender,
		marker:  marker,
		logger:  logger.With("stage", "notifier"),
		metrics: metrics,
	}
}

// Processed returns how many deliveries succeeded since start.
func (n *Notifier) Processed() int64 { return n.processed.Load() }

// Failed returns how many deliveries failed since start.
func (n *Notifier) Failed() int64 { return n.failed.Load() }

// Handle delivers one advisory. It never returns outbound messages.
func (n *Notifier) Handle(ctx context.Context, msg domain.InboundMessage) ([]domain.OutboundMessage, error) {
	delivery, err := domain.ParseDeliveryMessage(msg.Value)
	if err != nil {
		n.failed.Add(1)
		return nil, err
	}

	if delivery.PhoneNumber == "" {
		n.failed.Add(1)
		n.metrics.SMSFailed.Inc()
		return nil, fmt.Errorf("delivery for %s has no phone number", delivery.ContactID)
	}
	if delivery.AdviceText == "" {
		n.failed.Add(1)
		n.metrics.SMSFailed.Inc()
		return nil, fmt.Errorf("delivery for %s has no advice text", delivery.ContactID)
	}

	if err := n.sender.Send(ctx, delivery.PhoneNumber, delivery.AdviceText); err != nil {
		n.failed.Add(1)
		return nil, fmt.Errorf("sending to %s: %w", africastalking.MaskPhone(delivery.PhoneNumber), err)
	}

	n.processed.Add(1)
	n.logger.Info("advisory delivered",
		"contact_id", delivery.ContactID,
		"to", africastalking.MaskPhone(delivery.PhoneNumber),
		"language", delivery.Language,
	)

	if n.marker != nil {
		// The SMS is already out; a failed stamp only risks a duplicate
		// alert tomorrow, so it does not fail the message.
		if err := n.markAlerted(ctx, delivery); err != nil {
			n.logger.Warn("last-alert write-back failed", "error", err, "contact_id", delivery.ContactID)
		}
	}
	return nil, nil
}

func (n *Notifier) markAlerted(ctx context.Context, delivery domain.DeliveryMessage) error {
	if delivery.ContactID == "" {
		return errors.New("delivery has no contact_id")
	}
	date := delivery.TodayDate
	if date == "" {
		date = domain.Today()
	}
	return n.marker.MarkAlerted(ctx, delivery.ContactID, date)
}

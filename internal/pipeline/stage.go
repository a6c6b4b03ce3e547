package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/heat-advisory-service/internal/domain"
	"github.com/couchcryptid/heat-advisory-service/internal/observability"
)

// BatchExtractor reads up to batchSize inbound messages from a topic.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.InboundMessage, error)
}

// Handler processes one inbound message into zero or more outbound
// messages. A returned error means "skip this message": it is logged,
// counted, and committed so the queue does not redeliver a poison pill.
// Returning no messages with a nil error is a clean filter-out.
type Handler interface {
	Handle(ctx context.Context, msg domain.InboundMessage) ([]domain.OutboundMessage, error)
}

// Publisher writes outbound messages to the stage's sink topic.
type Publisher interface {
	Publish(ctx context.Context, msgs []domain.OutboundMessage) error
}

// Stage is one consume-handle-publish loop of the alert pipeline. A nil
// publisher makes the stage terminal (the notifier's side effect is the
// SMS gateway, not a topic).
type Stage struct {
	name      string
	extractor BatchExtractor
	handler   Handler
	publisher Publisher
	batchSize int
	logger    *slog.Logger
	metrics   *observability.Metrics
	running   atomic.Bool
}

// NewStage assembles a stage loop. batchSize caps how many messages one
// cycle consumes; the evaluator uses this as forecast-quota admission
// control.
func NewStage(name string, e BatchExtractor, h Handler, p Publisher, batchSize int, logger *slog.Logger, metrics *observability.Metrics) *Stage {
	return &Stage{
		name:      name,
		extractor: e,
		handler:   h,
		publisher: p,
		batchSize: batchSize,
		logger:    logger.With("stage", name),
		metrics:   metrics,
	}
}

// CheckReadiness returns nil once the stage loop is running.
func (s *Stage) CheckReadiness(_ context.Context) error {
	if !s.running.Load() {
		return fmt.Errorf("stage %s is not running", s.name)
	}
	return nil
}

// Run executes the stage loop until the context is cancelled.
func (s *Stage) Run(ctx context.Context) error {
	s.logger.Info("stage started", "batch_size", s.batchSize)
	s.running.Store(true)
	s.metrics.StageRunning.WithLabelValues(s.name).Set(1)
	defer func() {
		s.running.Store(false)
		s.metrics.StageRunning.WithLabelValues(s.name).Set(0)
	}()

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	// Keeps retry storms short while avoiding tight loops during broker
	// outages.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stage stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !s.processBatch(ctx, &backoff, maxBackoff) {
			return nil
		}
	}
}

// processBatch runs one consume-handle-publish cycle. Returns false if the
// stage should stop.
func (s *Stage) processBatch(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	start := time.Now()

	batch, err := s.extractor.ExtractBatch(ctx, s.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		s.logger.Error("extract batch failed", "error", err)
		return s.backoffOrStop(ctx, backoff, maxBackoff)
	}

	if len(batch) == 0 {
		return ctx.Err() == nil
	}

	s.metrics.MessagesConsumed.WithLabelValues(s.name).Add(float64(len(batch)))
	*backoff = 200 * time.Millisecond

	outBatch := make([]domain.OutboundMessage, 0, len(batch))
	// Commits are deferred until the batch's outputs are published. Consumer
	// group commits are cumulative per partition, so committing a skipped
	// message mid-batch would also mark every earlier handled-but-unpublished
	// message as consumed.
	toCommit := make([]domain.InboundMessage, 0, len(batch))

	for _, msg := range batch {
		outs, err := s.handler.Handle(ctx, msg)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			s.logger.Warn("handle failed, skipping message",
				"error", err,
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
			)
			s.metrics.MessagesSkipped.WithLabelValues(s.name).Inc()
			toCommit = append(toCommit, msg)
			continue
		}
		outBatch = append(outBatch, outs...)
		toCommit = append(toCommit, msg)
	}

	if s.publisher != nil && len(outBatch) > 0 {
		if err := s.publisher.Publish(ctx, outBatch); err != nil {
			// Nothing was committed; the whole batch redelivers, skipped
			// messages included. Handlers are stateless per message, so the
			// retry is safe.
			s.logger.Error("publish batch failed", "error", err, "batch_size", len(outBatch))
			return s.backoffOrStop(ctx, backoff, maxBackoff)
		}
	}
	s.metrics.MessagesProduced.WithLabelValues(s.name).Add(float64(len(outBatch)))

	for _, msg := range toCommit {
		s.commitOffset(ctx, msg)
	}

	s.metrics.BatchDuration.WithLabelValues(s.name).Observe(time.Since(start).Seconds())
	return true
}

// backoffOrStop checks for context cancellation, sleeps with the current
// backoff, and advances the backoff. Returns false if the stage should stop.
func (s *Stage) backoffOrStop(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (s *Stage) commitOffset(ctx context.Context, msg domain.InboundMessage) {
	if msg.Commit == nil {
		return
	}
	if err := msg.Commit(ctx); err != nil {
		s.logger.Warn("commit offset failed", "error", err,
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
	}
}

// MultiReadiness aggregates stage readiness for the HTTP readyz endpoint.
type MultiReadiness []*Stage

func (m MultiReadiness) CheckReadiness(ctx context.Context) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.CheckReadiness(ctx))
	}
	return errors.Join(errs...)
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

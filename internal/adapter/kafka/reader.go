package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/heat-advisory-service/internal/domain"
)

// Reader consumes messages from one topic within a consumer group.
// It implements pipeline.BatchExtractor.
type Reader struct {
	reader  *kafkago.Reader
	maxWait time.Duration
	logger  *slog.Logger
}

// NewReader creates a Kafka consumer for the given topic and group.
// maxWait bounds how long ExtractBatch waits for additional messages once
// the first one has arrived.
func NewReader(brokers []string, topic, groupID string, maxWait time.Duration, logger *slog.Logger) *Reader {
	if maxWait <= 0 {
		maxWait = 500 * time.Millisecond
	}
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafkago.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return &Reader{reader: r, maxWait: maxWait, logger: logger}
}

// ExtractBatch blocks for the first available message, then drains up to
// batchSize messages, waiting at most maxWait for each additional one.
// Offsets are not committed here; each message carries a Commit closure the
// caller invokes once the message's side effects are durable.
func (r *Reader) ExtractBatch(ctx context.Context, batchSize int) ([]domain.InboundMessage, error) {
	if batchSize <= 0 {
		batchSize = 1
	}

	msgs := make([]domain.InboundMessage, 0, batchSize)
	for len(msgs) < batchSize {
		fetchCtx := ctx
		var cancel context.CancelFunc
		if len(msgs) > 0 {
			fetchCtx, cancel = context.WithTimeout(ctx, r.maxWait)
		}

		m, err := r.reader.FetchMessage(fetchCtx)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			// A drain timeout with messages in hand is a full batch, not
			// an error.
			if len(msgs) > 0 && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				break
			}
			return msgs, err
		}
		msgs = append(msgs, r.mapMessage(m))
	}
	return msgs, nil
}

// Close shuts down the consumer and leaves the group.
func (r *Reader) Close() error {
	return r.reader.Close()
}

func (r *Reader) mapMessage(m kafkago.Message) domain.InboundMessage {
	headers := make(map[string]string, len(m.Headers))
	for _, h := range m.Headers {
		headers[h.Key] = string(h.Value)
	}
	return domain.InboundMessage{
		Key:       m.Key,
		Value:     m.Value,
		Headers:   headers,
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Timestamp: m.Time,
		Commit: func(ctx context.Context) error {
			return r.reader.CommitMessages(ctx, m)
		},
	}
}

//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	kafkaadapter "github.com/couchcryptid/heat-advisory-service/internal/adapter/kafka"
	"github.com/couchcryptid/heat-advisory-service/internal/composer"
	"github.com/couchcryptid/heat-advisory-service/internal/domain"
	"github.com/couchcryptid/heat-advisory-service/internal/evaluator"
	"github.com/couchcryptid/heat-advisory-service/internal/notifier"
	"github.com/couchcryptid/heat-advisory-service/internal/observability"
	"github.com/couchcryptid/heat-advisory-service/internal/pipeline"
)

const (
	locationTopic = "test-alert-locations"
	resultTopic   = "test-alert-weather-results"
	notifyTopic   = "test-alert-notify"
)

// --- infrastructure helpers ---

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("test-cluster"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func uniqueGroup(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

// --- fake collaborators ---

type fakeForecasts struct {
	temperatureMax float64
}

func (f *fakeForecasts) DailyForecast(context.Context, float64, float64) (domain.DailyForecast, error) {
	return domain.DailyForecast{
		Date:   "2026-08-29",
		Values: map[string]float64{"temperatureMax": f.temperatureMax},
	}, nil
}

type fakeGenerator struct{}

func (fakeGenerator) Generate(_ context.Context, _ string) (string, error) {
	return "Stay hydrated and rest in the shade at midday.", nil
}

type recordingSender struct {
	mu   sync.Mutex
	sent []string
	done chan struct{}
}

func (s *recordingSender) Send(_ context.Context, phone, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, phone)
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	return nil
}

// TestReaderWriterRoundTrip verifies the adapter layer round-trips a
// location message with its headers and commit closure intact.
func TestReaderWriterRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, locationTopic)

	writer := kafkaadapter.NewWriter([]string{broker}, locationTopic, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	loc := domain.LocationMessage{
		Latitude:       -1.2864,
		Longitude:      36.8172,
		TodayDate:      "2026-08-29",
		ContactID:      "c-1",
		Language:       "sw",
		MaternalStatus: domain.StatusAntenatal,
		PhoneNumber:    "+254700111222",
	}
	out, err := loc.Outbound()
	require.NoError(t, err)
	require.NoError(t, writer.Publish(ctx, []domain.OutboundMessage{out}))

	reader := kafkaadapter.NewReader([]string{broker}, locationTopic, uniqueGroup("test-reader"), 500*time.Millisecond, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	// Retry because the consumer group may need time to rebalance before
	// partitions are assigned and messages become available.
	var batch []domain.InboundMessage
	for len(batch) == 0 {
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for location message")
		}
	}
	require.Len(t, batch, 1)

	msg := batch[0]
	assert.Equal(t, []byte("-1.286,36.817"), msg.Key)
	assert.Equal(t, "resolver", msg.Headers["stage"])
	_, err = time.Parse(time.RFC3339, msg.Headers["published_at"])
	assert.NoError(t, err)

	parsed, err := domain.ParseLocationMessage(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, "c-1", parsed.ContactID)

	require.NotNil(t, msg.Commit)
	require.NoError(t, msg.Commit(ctx))
}

// TestPipelineEndToEnd wires the evaluator, composer, and notifier stages
// over real topics and verifies a queued location becomes a delivered SMS.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, locationTopic)
	createTopic(t, broker, resultTopic)
	createTopic(t, broker, notifyTopic)

	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()

	locationWriter := kafkaadapter.NewWriter([]string{broker}, locationTopic, logger)
	resultWriter := kafkaadapter.NewWriter([]string{broker}, resultTopic, logger)
	notifyWriter := kafkaadapter.NewWriter([]string{broker}, notifyTopic, logger)
	t.Cleanup(func() {
		_ = locationWriter.Close()
		_ = resultWriter.Close()
		_ = notifyWriter.Close()
	})

	locationReader := kafkaadapter.NewReader([]string{broker}, locationTopic, uniqueGroup("evaluator"), 500*time.Millisecond, logger)
	resultReader := kafkaadapter.NewReader([]string{broker}, resultTopic, uniqueGroup("composer"), 500*time.Millisecond, logger)
	notifyReader := kafkaadapter.NewReader([]string{broker}, notifyTopic, uniqueGroup("notifier"), 500*time.Millisecond, logger)
	t.Cleanup(func() {
		_ = locationReader.Close()
		_ = resultReader.Close()
		_ = notifyReader.Close()
	})

	policy := domain.ThresholdPolicy{Field: "temperature", Operator: domain.OpGTE, Value: 30}
	sender := &recordingSender{done: make(chan struct{})}
	delivered := sender.done

	stages := []*pipeline.Stage{
		pipeline.NewStage("evaluator", locationReader,
			evaluator.New(&fakeForecasts{temperatureMax: 34.5}, policy, logger, metrics),
			resultWriter, 10, logger, metrics),
		pipeline.NewStage("composer", resultReader,
			composer.New(nil, fakeGenerator{}, logger, metrics),
			notifyWriter, 10, logger, metrics),
		pipeline.NewStage("notifier", notifyReader,
			notifier.New(sender, nil, logger, metrics),
			nil, 10, logger, metrics),
	}

	stageCtx, stopStages := context.WithCancel(ctx)
	errCh := make(chan error, len(stages))
	for _, s := range stages {
		go func(s *pipeline.Stage) { errCh <- s.Run(stageCtx) }(s)
	}

	// Queue one location, the way a resolver scan would.
	loc := domain.LocationMessage{
		Latitude:       -1.2864,
		Longitude:      36.8172,
		TodayDate:      "2026-08-29",
		ContactID:      "c-1",
		Language:       "en",
		MaternalStatus: domain.StatusAntenatal,
		PhoneNumber:    "+254700111222",
	}
	out, err := loc.Outbound()
	require.NoError(t, err)
	require.NoError(t, locationWriter.Publish(ctx, []domain.OutboundMessage{out}))

	select {
	case <-delivered:
	case <-ctx.Done():
		t.Fatal("timed out waiting for SMS delivery")
	}

	stopStages()
	for range stages {
		require.NoError(t, <-errCh)
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "+254700111222", sender.sent[0])
}

// TestPipelinePoisonPill verifies that an unparseable location message is
// skipped and does not block the message behind it.
func TestPipelinePoisonPill(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, locationTopic)
	createTopic(t, broker, resultTopic)

	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()

	locationReader := kafkaadapter.NewReader([]string{broker}, locationTopic, uniqueGroup("poison"), 500*time.Millisecond, logger)
	resultWriter := kafkaadapter.NewWriter([]string{broker}, resultTopic, logger)
	t.Cleanup(func() {
		_ = locationReader.Close()
		_ = resultWriter.Close()
	})

	policy := domain.ThresholdPolicy{Field: "temperature", Operator: domain.OpGTE, Value: 30}
	stage := pipeline.NewStage("evaluator", locationReader,
		evaluator.New(&fakeForecasts{temperatureMax: 34.5}, policy, logger, metrics),
		resultWriter, 10, logger, metrics)

	stageCtx, stopStage := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- stage.Run(stageCtx) }()

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: locationTopic}
	t.Cleanup(func() { _ = producer.Close() })

	good := domain.LocationMessage{
		Latitude:  -1.2864,
		Longitude: 36.8172,
		TodayDate: "2026-08-29",
		ContactID: "c-ok",
	}
	goodPayload, err := json.Marshal(good)
	require.NoError(t, err)

	require.NoError(t, producer.WriteMessages(ctx,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{")},
		kafkago.Message{Key: []byte("good"), Value: goodPayload},
	))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       resultTopic,
		GroupID:     uniqueGroup("poison-sink"),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	readCtx, readCancel := context.WithTimeout(ctx, 60*time.Second)
	msg, err := consumer.ReadMessage(readCtx)
	readCancel()
	require.NoError(t, err, "read from result topic")

	result, err := domain.ParseWeatherResult(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, "c-ok", result.ContactID)
	assert.Equal(t, 34.5, result.TemperatureMax)

	// No second result should arrive; the poison pill was skipped.
	readCtx, readCancel = context.WithTimeout(ctx, 5*time.Second)
	_, err = consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no result for the poison pill")

	stopStage()
	require.NoError(t, <-errCh)
}

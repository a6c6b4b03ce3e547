package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/heat-advisory-service/internal/adapter/http"
	"github.com/couchcryptid/heat-advisory-service/internal/domain"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockDrainer struct {
	batch []domain.InboundMessage
	err   error
}

func (m *mockDrainer) ExtractBatch(_ context.Context, _ int) ([]domain.InboundMessage, error) {
	return m.batch, m.err
}

func newTestServer(readyErr error, drainer httpadapter.MessageDrainer) *httpadapter.Server {
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, drainer, slog.Default())
}

func TestHealthzReturns200(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	srv := newTestServer(fmt.Errorf("not ready yet"), nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "not ready yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func deliveryInbound(t *testing.T, d domain.DeliveryMessage, committed *atomic.Int64) domain.InboundMessage {
	t.Helper()
	data, err := json.Marshal(d)
	require.NoError(t, err)
	return domain.InboundMessage{
		Value: data,
		Commit: func(context.Context) error {
			committed.Add(1)
			return nil
		},
	}
}

func TestMessagesReturnsDrainedAdvisories(t *testing.T) {
	var committed atomic.Int64
	drainer := &mockDrainer{batch: []domain.InboundMessage{
		deliveryInbound(t, domain.DeliveryMessage{
			ContactID:      "c-1",
			Latitude:       -1.2864,
			Longitude:      36.8172,
			TemperatureMax: 33.4,
			MaternalStatus: domain.StatusAntenatal,
			AdviceText:     "Stay hydrated today.",
			Language:       "sw",
			FacilityName:   "Pumwani",
		}, &committed),
	}}
	srv := newTestServer(nil, drainer)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/messages", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Messages []map[string]any `json:"messages"`
		Count    int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Messages, 1)

	item := body.Messages[0]
	assert.NotEmpty(t, item["id"])
	assert.Equal(t, "Stay hydrated today.", item["advice"])
	assert.Equal(t, 33.4, item["temperature"])
	assert.Equal(t, "Pumwani", item["facility"])
	assert.Equal(t, "sw", item["language"])
	assert.Equal(t, -1.2864, item["latitude"])
	assert.Equal(t, 36.8172, item["longitude"])
	assert.Equal(t, "antenatal", item["maternal_status"])
	assert.NotEmpty(t, item["timestamp"])

	assert.Equal(t, int64(1), committed.Load(), "drained messages are consumed")
}

func TestMessagesEmptyTopicReturnsEmptyList(t *testing.T) {
	drainer := &mockDrainer{err: context.DeadlineExceeded}
	srv := newTestServer(nil, drainer)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/messages", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Messages []map[string]any `json:"messages"`
		Count    int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Zero(t, body.Count)
	assert.NotNil(t, body.Messages)
}

func TestMessagesSkipsUnparseableDeliveries(t *testing.T) {
	var committed atomic.Int64
	bad := domain.InboundMessage{
		Value: []byte("not json"),
		Commit: func(context.Context) error {
			committed.Add(1)
			return nil
		},
	}
	good := deliveryInbound(t, domain.DeliveryMessage{ContactID: "c-2", AdviceText: "ok"}, &committed)

	drainer := &mockDrainer{batch: []domain.InboundMessage{bad, good}}
	srv := newTestServer(nil, drainer)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/messages", nil)

	srv.ServeHTTP(rec, req)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, int64(2), committed.Load(), "bad payloads are consumed too")
}

func TestMessagesDrainError(t *testing.T) {
	drainer := &mockDrainer{err: errors.New("broker down")}
	srv := newTestServer(nil, drainer)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/messages", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["error"])
}

func TestMessagesRouteDisabledWithoutDrainer(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/messages", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// Package http exposes the service's operational endpoints and the
// dashboard message poller.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/heat-advisory-service/internal/domain"
)

// pollBatchLimit caps how many advisories one dashboard poll consumes.
const pollBatchLimit = 10

// pollWait bounds how long a poll blocks waiting for the first advisory.
const pollWait = 2 * time.Second

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// MessageDrainer reads a batch of delivery messages from the notify topic.
// The dashboard poller uses its own consumer group so polling never steals
// messages from the notifier stage.
type MessageDrainer interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.InboundMessage, error)
}

// Server exposes health, readiness, metrics, and message-poll routes.
type Server struct {
	httpServer *http.Server
	drainer    MessageDrainer
	logger     *slog.Logger
}

// NewServer creates the HTTP server. drainer may be nil to disable the
// /messages route.
func NewServer(addr string, ready ReadinessChecker, drainer MessageDrainer, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		drainer: drainer,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	if drainer != nil {
		mux.HandleFunc("GET /messages", s.handleMessages)
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// pollItem is one advisory as shown on the dashboard.
type pollItem struct {
	ID                string  `json:"id"`
	Advice            string  `json:"advice"`
	Temperature       float64 `json:"temperature"`
	Facility          string  `json:"facility,omitempty"`
	Language          string  `json:"language"`
	Latitude          float64 `json:"latitude"`
	Longitude         float64 `json:"longitude"`
	MaternalStatus    string  `json:"maternal_status"`
	MedicalConditions string  `json:"medical_conditions,omitempty"`
	Timestamp         string  `json:"timestamp"`
}

type pollResponse struct {
	Messages []pollItem `json:"messages"`
	Count    int        `json:"count"`
}

// handleMessages drains up to pollBatchLimit advisories from the notify
// topic and returns them. An idle topic yields an empty list, not an error.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pollWait)
	defer cancel()

	batch, err := s.drainer.ExtractBatch(ctx, pollBatchLimit)
	if err != nil && len(batch) == 0 && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		s.logger.Error("draining notify topic failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read messages"})
		return
	}

	items := make([]pollItem, 0, len(batch))
	for _, msg := range batch {
		delivery, err := domain.ParseDeliveryMessage(msg.Value)
		if err != nil {
			s.logger.Warn("skipping unparseable delivery in poll", "error", err, "offset", msg.Offset)
			s.commit(r.Context(), msg)
			continue
		}

		ts := msg.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		items = append(items, pollItem{
			ID:                uuid.NewString(),
			Advice:            delivery.AdviceText,
			Temperature:       delivery.TemperatureMax,
			Facility:          delivery.FacilityName,
			Language:          delivery.Language,
			Latitude:          delivery.Latitude,
			Longitude:         delivery.Longitude,
			MaternalStatus:    string(delivery.MaternalStatus),
			MedicalConditions: delivery.MedicalConditions,
			Timestamp:         ts.UTC().Format(time.RFC3339),
		})
		s.commit(r.Context(), msg)
	}

	writeJSON(w, http.StatusOK, pollResponse{Messages: items, Count: len(items)})
}

func (s *Server) commit(ctx context.Context, msg domain.InboundMessage) {
	if msg.Commit == nil {
		return
	}
	if err := msg.Commit(ctx); err != nil {
		s.logger.Warn("commit after poll failed", "error", err, "offset", msg.Offset)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}

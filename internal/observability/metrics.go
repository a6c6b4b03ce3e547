package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// alert pipeline. Stage-labelled vectors use the stage names resolver,
// evaluator, composer, and notifier.
type Metrics struct {
	MessagesConsumed *prometheus.CounterVec // labels: stage
	MessagesProduced *prometheus.CounterVec // labels: stage
	MessagesSkipped  *prometheus.CounterVec // labels: stage
	StageRunning     *prometheus.GaugeVec   // labels: stage
	BatchDuration    *prometheus.HistogramVec

	// Resolver scan metrics.
	RecipientsScanned prometheus.Counter
	LocationsQueued   prometheus.Counter

	// External call metrics.
	ForecastRequests   *prometheus.CounterVec // labels: outcome={success,error}
	ForecastDuration   prometheus.Histogram
	RetrievalRequests  *prometheus.CounterVec // labels: outcome={success,error,empty}
	GenerationRequests *prometheus.CounterVec // labels: outcome={success,fallback}
	SMSSent            prometheus.Counter
	SMSFailed          prometheus.Counter

	// ThresholdBypass is 1 while the demo/bypass flag is active so a bypass
	// pass is never indistinguishable from a real threshold pass.
	ThresholdBypass prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.MessagesConsumed,
		m.MessagesProduced,
		m.MessagesSkipped,
		m.StageRunning,
		m.BatchDuration,
		m.RecipientsScanned,
		m.LocationsQueued,
		m.ForecastRequests,
		m.ForecastDuration,
		m.RetrievalRequests,
		m.GenerationRequests,
		m.SMSSent,
		m.SMSFailed,
		m.ThresholdBypass,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		MessagesConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heat_alert",
			Name:      "messages_consumed_total",
			Help:      "Total messages read from a stage's source topic.",
		}, []string{"stage"}),
		MessagesProduced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heat_alert",
			Name:      "messages_produced_total",
			Help:      "Total messages written to a stage's sink topic.",
		}, []string{"stage"}),
		MessagesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heat_alert",
			Name:      "messages_skipped_total",
			Help:      "Messages skipped after a per-message handling failure.",
		}, []string{"stage"}),
		StageRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "heat_alert",
			Name:      "stage_running",
			Help:      "1 while a stage loop is active, 0 when shut down.",
		}, []string{"stage"}),
		BatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "heat_alert",
			Name:      "batch_duration_seconds",
			Help:      "Duration of one consume-handle-publish cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		RecipientsScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "heat_alert",
			Name:      "recipients_scanned_total",
			Help:      "Recipient profiles examined by resolver scans.",
		}),
		LocationsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "heat_alert",
			Name:      "locations_queued_total",
			Help:      "Unique location messages published by resolver scans.",
		}),
		ForecastRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heat_alert",
			Name:      "forecast_requests_total",
			Help:      "Forecast provider requests by outcome.",
		}, []string{"outcome"}),
		ForecastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "heat_alert",
			Name:      "forecast_request_duration_seconds",
			Help:      "Forecast provider request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		RetrievalRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heat_alert",
			Name:      "retrieval_requests_total",
			Help:      "Knowledge-base retrieval requests by outcome.",
		}, []string{"outcome"}),
		GenerationRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heat_alert",
			Name:      "generation_requests_total",
			Help:      "Advisory generation requests by outcome; fallback counts substituted advisories.",
		}, []string{"outcome"}),
		SMSSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "heat_alert",
			Name:      "sms_sent_total",
			Help:      "SMS messages accepted by the gateway.",
		}),
		SMSFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "heat_alert",
			Name:      "sms_failed_total",
			Help:      "SMS messages rejected, invalid, or failed at the gateway.",
		}),
		ThresholdBypass: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "heat_alert",
			Name:      "threshold_bypass_enabled",
			Help:      "1 while the demo/bypass mode forwards all observations.",
		}),
	}
}

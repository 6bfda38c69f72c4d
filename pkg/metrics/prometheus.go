package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Transfer outcomes used as the "outcome" label.
const (
	OutcomeCompleted = "completed"
	OutcomeRejected  = "rejected"
	OutcomeTimeout   = "timeout"
	OutcomeFailed    = "failed"
)

type MetricsCollector struct {
	registry         *prometheus.Registry
	transfers        *prometheus.CounterVec
	transferDuration prometheus.Histogram
	flagged          *prometheus.CounterVec
	fraudFallbacks   prometheus.Counter
	anomalyScores    prometheus.Histogram
	lockWait         prometheus.Histogram
	alertsDropped    prometheus.Counter
	logger           *slog.Logger
}

func NewMetricsCollector(logger *slog.Logger) *MetricsCollector {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()

	return &MetricsCollector{
		registry: registry,
		transfers: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_transfers_total",
			Help: "Total number of transfer attempts by outcome",
		}, []string{"outcome"}),
		transferDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_transfer_duration_seconds",
			Help:    "Time taken to process a transfer",
			Buckets: prometheus.DefBuckets,
		}),
		flagged: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_transfers_flagged_total",
			Help: "Transfers flagged as suspicious by verdict source",
		}, []string{"source"}),
		fraudFallbacks: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "fraud_scorer_fallbacks_total",
			Help: "Times the anomaly scorer failed and the pipeline failed open",
		}),
		anomalyScores: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "fraud_anomaly_score",
			Help:    "Distribution of anomaly scores, lower is more unusual",
			Buckets: []float64{-0.8, -0.7, -0.6, -0.55, -0.5, -0.45, -0.4, -0.3},
		}),
		lockWait: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_lock_wait_seconds",
			Help:    "Time spent waiting for account locks",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		alertsDropped: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "fraud_alerts_dropped_total",
			Help: "Fraud alerts dropped because the notification queue was full",
		}),
		logger: logger,
	}
}

func (m *MetricsCollector) RecordTransfer(outcome string, duration time.Duration) {
	m.transfers.WithLabelValues(outcome).Inc()
	m.transferDuration.Observe(duration.Seconds())
}

func (m *MetricsCollector) RecordFlagged(source string) {
	m.flagged.WithLabelValues(source).Inc()
}

func (m *MetricsCollector) RecordFraudFallback() {
	m.fraudFallbacks.Inc()
}

func (m *MetricsCollector) ObserveAnomalyScore(score float64) {
	m.anomalyScores.Observe(score)
}

func (m *MetricsCollector) ObserveLockWait(d time.Duration) {
	m.lockWait.Observe(d.Seconds())
}

func (m *MetricsCollector) RecordAlertDropped() {
	m.alertsDropped.Inc()
}

func (m *MetricsCollector) Registry() *prometheus.Registry {
	return m.registry
}

func (m *MetricsCollector) GetHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// NewServer returns an unstarted server exposing /metrics.
func (m *MetricsCollector) NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.GetHandler())

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (m *MetricsCollector) Shutdown(ctx context.Context, server *http.Server) error {
	if server == nil {
		return nil
	}
	err := server.Shutdown(ctx)
	m.logger.Info("Metrics server shutdown complete")
	return err
}

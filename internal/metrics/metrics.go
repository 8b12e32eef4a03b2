// Package metrics exposes Prometheus metrics and a health endpoint for the
// analysis bot.
package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics holds all Prometheus metrics for the analysis pipeline.
type Metrics struct {
	CyclesTotal       prometheus.Counter
	CycleDur          prometheus.Histogram
	FetchDur          prometheus.Histogram
	FetchErrorsTotal  *prometheus.CounterVec // labels: symbol
	FetchRetriesTotal prometheus.Counter
	MalformedTotal    *prometheus.CounterVec // labels: symbol
	CyclesSkipped     *prometheus.CounterVec // labels: symbol, reason

	CandlesIngested  prometheus.Counter
	CandlesRejected  *prometheus.CounterVec // labels: reason
	WindowLen        *prometheus.GaugeVec   // labels: symbol
	StreamReconnects prometheus.Counter

	AlertsEmitted    *prometheus.CounterVec // labels: kind
	AlertsSuppressed prometheus.Counter
	DispatchErrors   prometheus.Counter
}

// New registers and returns all metrics on the default registry.
func New() *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tabot_cycles_total",
			Help: "Total analysis cycles started",
		}),
		CycleDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tabot_cycle_duration_seconds",
			Help:    "Per-symbol cycle duration",
			Buckets: prometheus.DefBuckets,
		}),
		FetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tabot_fetch_duration_seconds",
			Help:    "Kline fetch duration",
			Buckets: prometheus.DefBuckets,
		}),
		FetchErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabot_fetch_errors_total",
			Help: "Kline fetch failures after all retries",
		}, []string{"symbol"}),
		FetchRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tabot_fetch_retries_total",
			Help: "Kline fetch retry attempts",
		}),
		MalformedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabot_malformed_responses_total",
			Help: "Kline responses rejected at the schema boundary",
		}, []string{"symbol"}),
		CyclesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabot_cycles_skipped_total",
			Help: "Per-symbol cycles skipped",
		}, []string{"symbol", "reason"}),
		CandlesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tabot_candles_ingested_total",
			Help: "Candles accepted or refreshed in the window store",
		}),
		CandlesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabot_candles_rejected_total",
			Help: "Candles rejected by the window store",
		}, []string{"reason"}),
		WindowLen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tabot_window_length",
			Help: "Current candle window length",
		}, []string{"symbol"}),
		StreamReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tabot_stream_reconnects_total",
			Help: "Kline WebSocket reconnection attempts",
		}),
		AlertsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabot_alerts_emitted_total",
			Help: "Alerts emitted after cooldown filtering",
		}, []string{"kind"}),
		AlertsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tabot_alerts_suppressed_total",
			Help: "Level alerts suppressed by cooldown",
		}),
		DispatchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tabot_dispatch_errors_total",
			Help: "Notification delivery failures",
		}),
	}

	prometheus.MustRegister(
		m.CyclesTotal, m.CycleDur, m.FetchDur, m.FetchErrorsTotal,
		m.FetchRetriesTotal, m.MalformedTotal, m.CyclesSkipped,
		m.CandlesIngested, m.CandlesRejected, m.WindowLen, m.StreamReconnects,
		m.AlertsEmitted, m.AlertsSuppressed, m.DispatchErrors,
	)
	return m
}

// HealthStatus tracks liveness facts served at /healthz.
type HealthStatus struct {
	mu            sync.RWMutex
	lastCycleTime time.Time
	lastCycleOK   bool
	symbols       []string
}

// NewHealthStatus creates an empty health tracker.
func NewHealthStatus(symbols []string) *HealthStatus {
	return &HealthStatus{symbols: symbols}
}

// SetCycleResult records the outcome of the most recent scheduler cycle.
func (h *HealthStatus) SetCycleResult(t time.Time, ok bool) {
	h.mu.Lock()
	h.lastCycleTime = t
	h.lastCycleOK = ok
	h.mu.Unlock()
}

func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	payload := map[string]interface{}{
		"status":     "ok",
		"symbols":    h.symbols,
		"last_cycle": h.lastCycleTime.UTC().Format(time.RFC3339),
		"cycle_ok":   h.lastCycleOK,
	}
	h.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

// Server serves /metrics and /healthz.
type Server struct {
	srv *http.Server
	log zerolog.Logger
}

// NewServer creates the metrics HTTP server on addr.
func NewServer(addr string, health *HealthStatus, log zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", health)
	return &Server{
		srv: &http.Server{Addr: addr, Handler: mux},
		log: log,
	}
}

// Start runs the server in the background.
func (s *Server) Start() {
	go func() {
		s.log.Info().Str("addr", s.srv.Addr).Msg("metrics server listening")
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}

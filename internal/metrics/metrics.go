// Package metrics exposes scan and cache telemetry to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mikey/bgc-lifecycle/internal/core"
)

const namespace = "bgc_lifecycle"

// Metrics implements core.ScanObserver on a private registry
type Metrics struct {
	registry *prometheus.Registry

	ScansTotal        *prometheus.CounterVec
	ScanFailures      *prometheus.CounterVec
	ScanDuration      *prometheus.HistogramVec
	AccountsScanned   prometheus.Gauge
	AccountsFailed    prometheus.Counter
	MessagesScanned   prometheus.Counter
	NewEventsFound    prometheus.Counter
	CacheReads        *prometheus.CounterVec
	LastSuccessfulRun prometheus.Gauge
}

// New creates the metrics and registers them with a new registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ScansTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "runs_total",
			Help:      "Total number of successful scans by mode",
		}, []string{"mode"}),
		ScanFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "failures_total",
			Help:      "Total number of scans that produced no snapshot, by error kind",
		}, []string{"kind"}),
		ScanDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "duration_seconds",
			Help:      "Scan duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"mode"}),
		AccountsScanned: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "accounts_scanned",
			Help:      "Accounts scanned successfully by the last scan",
		}),
		AccountsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "accounts_failed_total",
			Help:      "Total number of per-account scan failures",
		}),
		MessagesScanned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "messages_scanned_total",
			Help:      "Total number of mailbox messages read",
		}),
		NewEventsFound: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "new_events_total",
			Help:      "Total number of first-seen lifecycle events",
		}),
		CacheReads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "reads_total",
			Help:      "Total number of cache reads by state",
		}, []string{"state"}),
		LastSuccessfulRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful scan",
		}),
	}
}

// Registry returns the registry holding the metrics
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ScanCompleted records a successful scan
func (m *Metrics) ScanCompleted(result *core.ScanResult, elapsed time.Duration) {
	mode := string(result.Mode)
	m.ScansTotal.WithLabelValues(mode).Inc()
	m.ScanDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
	m.AccountsScanned.Set(float64(result.AccountsScanned))
	m.AccountsFailed.Add(float64(result.Errors))
	m.MessagesScanned.Add(float64(result.MessagesScanned))
	m.NewEventsFound.Add(float64(result.NewEventsFound))
	m.LastSuccessfulRun.Set(float64(result.FinishedAt.Unix()))
}

// ScanFailed records a scan that produced no snapshot
func (m *Metrics) ScanFailed(err error) {
	m.ScanFailures.WithLabelValues(string(core.KindOf(err))).Inc()
}

// CacheServed records a cache read
func (m *Metrics) CacheServed(state string) {
	m.CacheReads.WithLabelValues(state).Inc()
}

// Server serves the metrics endpoint
type Server struct {
	metrics    *Metrics
	addr       string
	logger     *zap.Logger
	httpServer *http.Server
}

// NewServer creates a metrics server
func NewServer(m *Metrics, addr string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{metrics: m, addr: addr, logger: logger}
}

// Start listens on the configured address
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	s.httpServer = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	s.logger.Info("Metrics endpoint starting", zap.String("address", listener.Addr().String()))

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the metrics server down
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

package observability

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/trialworks/ars-backend/internal/pkg/logger"
)

// Metrics is the process metrics registry. Every method is nil-receiver safe
// so call sites stay unguarded when metrics are disabled.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	versionOps        *prometheus.CounterVec
	mergeOutcomes     *prometheus.CounterVec
	conflictsDetected *prometheus.CounterVec
	diffLatency       prometheus.Histogram
	sseClients        prometheus.Gauge

	sloCompliance *prometheus.GaugeVec
	sloBudget     *prometheus.GaugeVec
	sloBurn       *prometheus.GaugeVec

	// plain counters feeding the SLO evaluator's rolling windows
	apiLatencyThreshold float64
	sloAPITotal         atomic.Uint64
	sloAPIError         atomic.Uint64
	sloAPIGood          atomic.Uint64
	sloMergeTotal       atomic.Uint64
	sloMergeFailed      atomic.Uint64
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return false
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func Current() *Metrics {
	return instance
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		f := promauto.With(reg)
		instance = &Metrics{
			registry: reg,

			apiRequests: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ars", Subsystem: "api", Name: "requests_total",
				Help: "API requests by method/route/status.",
			}, []string{"method", "route", "status"}),
			apiLatency: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "ars", Subsystem: "api", Name: "request_duration_seconds",
				Help:    "API request latency in seconds by method/route/status.",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			}, []string{"method", "route", "status"}),
			apiInflight: f.NewGauge(prometheus.GaugeOpts{
				Namespace: "ars", Subsystem: "api", Name: "inflight_requests",
				Help: "In-flight API requests.",
			}),

			versionOps: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ars", Subsystem: "versioning", Name: "operations_total",
				Help: "Snapshots materialized, by the action that produced them.",
			}, []string{"action"}),
			mergeOutcomes: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ars", Subsystem: "versioning", Name: "merge_outcomes_total",
				Help: "Merge attempts by outcome and mode (auto or manual).",
			}, []string{"outcome", "mode"}),
			conflictsDetected: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ars", Subsystem: "versioning", Name: "conflicts_detected_total",
				Help: "Conflicts found when merge requests are opened, by type.",
			}, []string{"type"}),
			diffLatency: f.NewHistogram(prometheus.HistogramOpts{
				Namespace: "ars", Subsystem: "versioning", Name: "diff_duration_seconds",
				Help:    "Structural diff latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			}),
			sseClients: f.NewGauge(prometheus.GaugeOpts{
				Namespace: "ars", Subsystem: "events", Name: "sse_clients",
				Help: "Connected SSE clients.",
			}),

			sloCompliance: f.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "ars", Subsystem: "slo", Name: "compliance",
				Help: "Rolling-window SLI per SLO.",
			}, []string{"slo", "window"}),
			sloBudget: f.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "ars", Subsystem: "slo", Name: "error_budget_remaining",
				Help: "Remaining error budget fraction per SLO.",
			}, []string{"slo", "window"}),
			sloBurn: f.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "ars", Subsystem: "slo", Name: "burn_rate",
				Help: "Error-budget burn rate per SLO.",
			}, []string{"slo", "window"}),

			apiLatencyThreshold: parseFloatEnv("SLO_API_LATENCY_THRESHOLD_SECONDS", 0.5),
		}
		if log != nil {
			log.Info("metrics registry initialized")
		}
	})
	return instance
}

// =========================

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route, status).Observe(dur.Seconds())

	m.sloAPITotal.Add(1)
	if strings.HasPrefix(status, "5") {
		m.sloAPIError.Add(1)
	}
	if dur.Seconds() <= m.apiLatencyThreshold {
		m.sloAPIGood.Add(1)
	}
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

// IncVersionOp counts one materialized snapshot under the change-log action
// that produced it.
func (m *Metrics) IncVersionOp(action string) {
	if m == nil || action == "" {
		return
	}
	m.versionOps.WithLabelValues(action).Inc()
}

// IncMergeOutcome counts one merge attempt. Outcome "merged" is a success;
// anything else drains the merge-success SLO budget.
func (m *Metrics) IncMergeOutcome(outcome, mode string) {
	if m == nil {
		return
	}
	m.mergeOutcomes.WithLabelValues(outcome, mode).Inc()

	m.sloMergeTotal.Add(1)
	if outcome != "merged" {
		m.sloMergeFailed.Add(1)
	}
}

func (m *Metrics) AddConflictsDetected(conflictType string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.conflictsDetected.WithLabelValues(conflictType).Add(float64(n))
}

func (m *Metrics) ObserveDiff(dur time.Duration) {
	if m == nil {
		return
	}
	m.diffLatency.Observe(dur.Seconds())
}

func (m *Metrics) SSEClientInc() {
	if m == nil {
		return
	}
	m.sseClients.Inc()
}

func (m *Metrics) SSEClientDec() {
	if m == nil {
		return
	}
	m.sseClients.Dec()
}

// =========================

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RegisterPostgresCollector exposes database/sql pool stats for the gorm
// connection on the registry.
func (m *Metrics) RegisterPostgresCollector(log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		if log != nil {
			log.Warn("postgres metrics collector skipped", "error", err)
		}
		return
	}
	if err := m.registry.Register(collectors.NewDBStatsCollector(sqlDB, "ars")); err != nil {
		if log != nil {
			log.Warn("postgres metrics collector registration failed", "error", err)
		}
	}
}

// StartServer serves /metrics on its own listener when a dedicated metrics
// address is configured. The main router also mounts Handler, so this is
// optional.
func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
	if log != nil {
		log.Info("metrics server listening", "addr", addr)
	}
}

func parseFloatEnv(key string, fallback float64) float64 {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	if f, err := strconv.ParseFloat(val, 64); err == nil {
		return f
	}
	return fallback
}

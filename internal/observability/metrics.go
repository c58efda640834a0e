// Package observability provides Prometheus metrics and lightweight
// cycle tracing shared by every SOMS service.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the counters and histograms exported on /metrics.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	BrainCyclesTotal    *prometheus.CounterVec
	BrainCycleDuration  prometheus.Histogram
	ToolCallsTotal      *prometheus.CounterVec
	VoiceStockLevel     prometheus.Gauge
}

// New registers and returns the standard SOMS metric set against reg.
func New(reg prometheus.Registerer, service string) *Metrics {
	factory := promauto.With(reg)
	constLabels := prometheus.Labels{"service": service}

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "soms_http_requests_total",
			Help:        "Total HTTP requests handled.",
			ConstLabels: constLabels,
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "soms_http_request_duration_seconds",
			Help:        "HTTP request latency in seconds.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"method", "path"}),
		BrainCyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "soms_brain_cycles_total",
			Help:        "Total ReAct cycles run, by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		BrainCycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "soms_brain_cycle_duration_seconds",
			Help:        "Wall-clock duration of a full ReAct cycle.",
			ConstLabels: constLabels,
			Buckets:     []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		ToolCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "soms_tool_calls_total",
			Help:        "Total tool invocations, by tool name and outcome.",
			ConstLabels: constLabels,
		}, []string{"tool", "outcome"}),
		VoiceStockLevel: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "soms_voice_rejection_stock",
			Help:        "Current count of pre-generated rejection utterances.",
			ConstLabels: constLabels,
		}),
	}
}

// Handler returns the HTTP handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// statusRecorder captures the status code written by a wrapped handler,
// the same minimal shape internal/httpmw.RequestLogger uses.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Middleware records HTTPRequestsTotal/HTTPRequestDuration for every
// request a service handles. The "path" label is the raw URL path
// (r.URL.Path), not a route pattern, since this middleware sits outside
// chi's route match; ids embedded in paths therefore each get their own
// series.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		status := strconv.Itoa(rec.status)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Analysis metrics
	analysesTotal    *prometheus.CounterVec
	analysisDuration prometheus.Histogram
	stageDuration    *prometheus.HistogramVec
	tradesSimulated  prometheus.Counter
	signalsSkipped   *prometheus.CounterVec
	jobsActive       prometheus.Gauge
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	// Analysis metrics
	r.analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgelab_analyses_total",
			Help: "Total number of analysis runs",
		},
		[]string{"status"},
	)
	r.analysisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "edgelab_analysis_duration_seconds",
			Help:    "Analysis run duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
	r.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edgelab_stage_duration_seconds",
			Help:    "Duration of one analysis stage in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)
	r.tradesSimulated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "edgelab_trades_simulated_total",
			Help: "Total number of simulated trades",
		},
	)
	r.signalsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgelab_signals_skipped_total",
			Help: "Total number of signals skipped by the trade simulator",
		},
		[]string{"reason"},
	)
	r.jobsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "edgelab_jobs_active",
			Help: "Number of analysis jobs currently running",
		},
	)

	reg.MustRegister(r.analysesTotal)
	reg.MustRegister(r.analysisDuration)
	reg.MustRegister(r.stageDuration)
	reg.MustRegister(r.tradesSimulated)
	reg.MustRegister(r.signalsSkipped)
	reg.MustRegister(r.jobsActive)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// RecordAnalysis records a finished analysis run.
func (r *Registry) RecordAnalysis(status string, duration float64) {
	r.analysesTotal.WithLabelValues(status).Inc()
	r.analysisDuration.Observe(duration)
}

// RecordStage records the duration of one analysis stage.
func (r *Registry) RecordStage(stage string, duration float64) {
	r.stageDuration.WithLabelValues(stage).Observe(duration)
}

// RecordTrades adds simulated trades.
func (r *Registry) RecordTrades(n int) {
	r.tradesSimulated.Add(float64(n))
}

// RecordSkipped adds skipped signals for a reason.
func (r *Registry) RecordSkipped(reason string, n int) {
	r.signalsSkipped.WithLabelValues(reason).Add(float64(n))
}

// JobStarted increments the active job gauge.
func (r *Registry) JobStarted() {
	r.jobsActive.Inc()
}

// JobFinished decrements the active job gauge.
func (r *Registry) JobFinished() {
	r.jobsActive.Dec()
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}

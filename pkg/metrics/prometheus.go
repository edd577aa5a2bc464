package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the global metric container.
type Metrics struct {
	// gRPC metrics
	GRPCRequestsTotal    *prometheus.CounterVec
	GRPCRequestDuration  *prometheus.HistogramVec
	GRPCRequestsInFlight prometheus.Gauge

	// Business metrics
	DispatchJobsTotal    *prometheus.CounterVec
	DispatchFanoutSize   *prometheus.HistogramVec
	SourceCallsTotal     *prometheus.CounterVec
	SourceCallDuration   *prometheus.HistogramVec
	SourceExcluded       *prometheus.GaugeVec
	JobResultsAppended   *prometheus.CounterVec
	BookingsTotal        *prometheus.CounterVec
	IdempotencyHitsTotal prometheus.Counter

	// System metrics
	MemoryUsage *prometheus.GaugeVec
	Goroutines  prometheus.Gauge

	// Service info
	ServiceInfo *prometheus.GaugeVec
}

var defaultMetrics *Metrics

// InitMetrics registers and returns the metric container.
func InitMetrics(namespace, subsystem string) *Metrics {
	m := &Metrics{
		// gRPC metrics
		GRPCRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "grpc_requests_total",
				Help:      "Total number of gRPC requests",
			},
			[]string{"method", "status"},
		),

		GRPCRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "grpc_request_duration_seconds",
				Help:      "Duration of gRPC requests",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method"},
		),

		GRPCRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "grpc_requests_in_flight",
				Help:      "Current number of gRPC requests being processed",
			},
		),

		// Business metrics
		DispatchJobsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "dispatch_jobs_total",
				Help:      "Total number of availability fan-out jobs",
			},
			[]string{"outcome"},
		),

		DispatchFanoutSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "dispatch_fanout_size",
				Help:      "Number of sources contacted per job",
				Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 34},
			},
			[]string{"kind"},
		),

		SourceCallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "source_calls_total",
				Help:      "Total number of source adapter calls",
			},
			[]string{"source_id", "operation", "status"},
		),

		SourceCallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "source_call_duration_seconds",
				Help:      "Duration of source adapter calls",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"source_id", "operation"},
		),

		SourceExcluded: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "source_excluded",
				Help:      "1 while the source is excluded from fan-out by health backoff",
			},
			[]string{"source_id"},
		),

		JobResultsAppended: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "job_results_appended_total",
				Help:      "Total number of results appended to fan-in buffers",
			},
			[]string{"kind", "status"},
		),

		BookingsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "bookings_total",
				Help:      "Total number of booking commands",
			},
			[]string{"operation", "status"},
		),

		IdempotencyHitsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "idempotency_hits_total",
				Help:      "Booking creates answered from the idempotency store",
			},
		),

		// System metrics
		MemoryUsage: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "memory_usage_bytes",
				Help:      "Current memory usage",
			},
			[]string{"type"},
		),

		Goroutines: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "goroutines",
				Help:      "Current number of goroutines",
			},
		),

		ServiceInfo: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "service_info",
				Help:      "Service information",
			},
			[]string{"version", "environment"},
		),
	}

	defaultMetrics = m
	return m
}

// Get returns the global metric container.
func Get() *Metrics {
	if defaultMetrics == nil {
		return InitMetrics("carbroker", "")
	}
	return defaultMetrics
}

// RecordGRPCRequest records one gRPC request.
func (m *Metrics) RecordGRPCRequest(method string, status string, duration time.Duration) {
	m.GRPCRequestsTotal.WithLabelValues(method, status).Inc()
	m.GRPCRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordDispatchJob records one completed availability fan-out.
func (m *Metrics) RecordDispatchJob(outcome string, fanout int) {
	m.DispatchJobsTotal.WithLabelValues(outcome).Inc()
	m.DispatchFanoutSize.WithLabelValues("availability").Observe(float64(fanout))
}

// RecordSourceCall records one adapter call outcome.
func (m *Metrics) RecordSourceCall(sourceID, operation, status string, duration time.Duration) {
	m.SourceCallsTotal.WithLabelValues(sourceID, operation, status).Inc()
	m.SourceCallDuration.WithLabelValues(sourceID, operation).Observe(duration.Seconds())
}

// SetSourceExcluded flips the exclusion gauge for a source.
func (m *Metrics) SetSourceExcluded(sourceID string, excluded bool) {
	v := 0.0
	if excluded {
		v = 1.0
	}
	m.SourceExcluded.WithLabelValues(sourceID).Set(v)
}

// RecordResultAppended records one result row appended to a job.
func (m *Metrics) RecordResultAppended(kind, status string) {
	m.JobResultsAppended.WithLabelValues(kind, status).Inc()
}

// RecordBooking records one booking command outcome.
func (m *Metrics) RecordBooking(operation, status string) {
	m.BookingsTotal.WithLabelValues(operation, status).Inc()
}

// SetServiceInfo sets the service info gauge.
func (m *Metrics) SetServiceInfo(version, environment string) {
	m.ServiceInfo.WithLabelValues(version, environment).Set(1)
}

// Handler returns the HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartMetricsServer starts the metrics HTTP server.
func StartMetricsServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK")) //nolint:errcheck // health endpoint, write errors are not actionable
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}

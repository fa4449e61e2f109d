package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpRequestsTotal     *prometheus.CounterVec
	httpLatencySeconds    *prometheus.HistogramVec
	httpErrorsTotal       *prometheus.CounterVec
	gradingRunsTotal      *prometheus.CounterVec
	gatewayLatencySeconds *prometheus.HistogramVec
	storeWriteFailures    *prometheus.CounterVec
	streamClientsActive   *prometheus.GaugeVec
)

// RegisterMetrics initialises the Prometheus collectors used by the desk.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_http_requests_total",
			Help: "Total number of desk API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grader_http_latency_seconds",
			Help:    "Latency distribution for desk API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_http_errors_total",
			Help: "Total number of error responses returned by the desk API.",
		}, []string{"method", "route", "status"})

		gradingRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_runs_total",
			Help: "Grading submissions by outcome (applied, superseded, failed, rejected).",
		}, []string{"outcome"})

		gatewayLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grader_gateway_latency_seconds",
			Help:    "Latency of calls to the remote grading service.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"operation", "result"})

		storeWriteFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_store_write_failures_total",
			Help: "Local store writes that failed, by backend and reason.",
		}, []string{"backend", "reason"})

		streamClientsActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "grader_stream_clients_active",
			Help: "Connected websocket and SSE clients.",
		}, []string{"stream"})

		prometheus.MustRegister(httpRequestsTotal, httpLatencySeconds, httpErrorsTotal,
			gradingRunsTotal, gatewayLatencySeconds, storeWriteFailures, streamClientsActive)
	})
}

// HTTPRequests exposes the counter for desk API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for desk API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for desk API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// GradingRuns exposes the grading outcome counter.
func GradingRuns() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingRunsTotal
}

// GatewayLatency exposes the remote call histogram.
func GatewayLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return gatewayLatencySeconds
}

// StoreWriteFailures exposes the local store failure counter.
func StoreWriteFailures() *prometheus.CounterVec {
	RegisterMetrics()
	return storeWriteFailures
}

// StreamClients exposes the connected stream client gauge.
func StreamClients() *prometheus.GaugeVec {
	RegisterMetrics()
	return streamClientsActive
}

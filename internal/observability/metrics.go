package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequestsTotal  *prometheus.CounterVec
	httpLatencySeconds *prometheus.HistogramVec

	directoryRequestsTotal *prometheus.CounterVec
	directoryLatency       *prometheus.HistogramVec

	tutorExchangesTotal *prometheus.CounterVec
	tutorTokensTotal    *prometheus.CounterVec

	authLoginsTotal *prometheus.CounterVec

	syncRunsTotal      *prometheus.CounterVec
	syncRecordsUpdated prometheus.Counter
)

// RegisterMetrics initialises the Prometheus collectors used across the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sma_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sma_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		directoryRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sma_directory_requests_total",
			Help: "Total number of calls made to the external directory.",
		}, []string{"doctype", "operation", "outcome"})

		directoryLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sma_directory_latency_seconds",
			Help:    "Latency distribution for external directory calls.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"doctype", "operation"})

		tutorExchangesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sma_tutor_exchanges_total",
			Help: "Total number of AI tutor exchanges by outcome.",
		}, []string{"outcome"})

		tutorTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sma_tutor_tokens_total",
			Help: "Total provider tokens consumed by the AI tutor.",
		}, []string{"kind"})

		authLoginsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sma_auth_logins_total",
			Help: "Total login attempts by outcome.",
		}, []string{"outcome"})

		syncRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sma_sync_runs_total",
			Help: "Total synchronization runs by outcome.",
		}, []string{"outcome"})

		syncRecordsUpdated = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sma_sync_records_updated_total",
			Help: "Total cache rows written by the synchronization daemon.",
		})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			directoryRequestsTotal,
			directoryLatency,
			tutorExchangesTotal,
			tutorTokensTotal,
			authLoginsTotal,
			syncRunsTotal,
			syncRecordsUpdated,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// DirectoryRequests exposes the counter for external directory calls.
func DirectoryRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return directoryRequestsTotal
}

// DirectoryLatency exposes the latency histogram for external directory calls.
func DirectoryLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return directoryLatency
}

// TutorExchanges exposes the counter for AI tutor exchanges.
func TutorExchanges() *prometheus.CounterVec {
	RegisterMetrics()
	return tutorExchangesTotal
}

// TutorTokens exposes the counter for AI tutor token consumption.
func TutorTokens() *prometheus.CounterVec {
	RegisterMetrics()
	return tutorTokensTotal
}

// AuthLogins exposes the counter for login attempts.
func AuthLogins() *prometheus.CounterVec {
	RegisterMetrics()
	return authLoginsTotal
}

// SyncRuns exposes the counter for synchronization runs.
func SyncRuns() *prometheus.CounterVec {
	RegisterMetrics()
	return syncRunsTotal
}

// SyncRecordsUpdated exposes the counter for cache rows written during sync.
func SyncRecordsUpdated() prometheus.Counter {
	RegisterMetrics()
	return syncRecordsUpdated
}

// Package metrics provides Prometheus instrumentation for echoes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled     bool
	serviceName string

	// HTTP metrics
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	// Gateway metrics
	gatewayCallsTotal   *prometheus.CounterVec
	gatewayCallDuration *prometheus.HistogramVec
	schedulerQueueDepth prometheus.Gauge

	// Sync metrics
	syncFetchTotal  *prometheus.CounterVec
	syncPollTotal   *prometheus.CounterVec
	pieceFetchTotal *prometheus.CounterVec

	// Cache and wallet metrics
	cacheOpsTotal           *prometheus.CounterVec
	walletTransactionsTotal *prometheus.CounterVec
)

// Init initializes the metrics system.
func Init(enabledFlag bool, svcName string) {
	enabled = enabledFlag
	serviceName = svcName

	if !enabled {
		return
	}

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	gatewayCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_calls_total",
			Help: "Total number of contract getter calls made to the indexing API",
		},
		[]string{"method", "status"},
	)

	// Includes the time spent queued behind the scheduler.
	gatewayCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_call_duration_seconds",
			Help:    "Contract getter call latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"method"},
	)

	schedulerQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_queue_depth",
			Help: "Number of getter calls waiting for their turn",
		},
	)

	syncFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_fetch_total",
			Help: "Total number of full contract info fetches",
		},
		[]string{"result"},
	)

	syncPollTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_poll_total",
			Help: "Total number of vault poll ticks",
		},
		[]string{"result"},
	)

	pieceFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "piece_fetch_total",
			Help: "Total number of per-piece content fetches",
		},
		[]string{"result"},
	)

	cacheOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_ops_total",
			Help: "Total number of local piece cache operations",
		},
		[]string{"op", "status"},
	)

	walletTransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_transactions_total",
			Help: "Total number of create-piece transactions submitted",
		},
		[]string{"status"},
	)

	// Note: Go runtime metrics (goroutines, memory, GC) are automatically
	// collected by prometheus/client_golang - no custom collector needed
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	if !enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.Handler()
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	return enabled
}

// ServiceName returns the configured service name for metric labels.
func ServiceName() string {
	return serviceName
}

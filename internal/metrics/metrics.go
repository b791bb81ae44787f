package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Batches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ippool_batches_total",
			Help: "Total number of pipelines acknowledged by the store, by action",
		},
		[]string{"action"},
	)

	Commands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ippool_commands_total",
			Help: "Total number of commands sent to the store, by action",
		},
		[]string{"action"},
	)

	Addresses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ippool_addresses_processed_total",
			Help: "Number of addresses/prefixes whose replies were processed, by action",
		},
		[]string{"action"},
	)

	Changed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ippool_leases_changed_total",
			Help: "Number of leases added, removed or released",
		},
		[]string{"action"},
	)

	BatchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ippool_batch_latency_seconds",
			Help:    "Round trip time of one pipeline in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	Redirects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ippool_redirects_total",
		Help: "Number of times a batch was replayed after the owning shard moved",
	})

	OperationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ippool_operation_failures_total",
			Help: "Number of operations aborted, by action",
		},
		[]string{"action"},
	)
)

// StartMetricsServer exposes the registry on listenAddr, useful to follow
// progress of long running operations.
func StartMetricsServer(listenAddr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("Metrics server error: %v\n", err)
		}
	}()
	return nil
}

// WriteTextfile dumps the registry in the text exposition format, for
// collection by a node exporter textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}

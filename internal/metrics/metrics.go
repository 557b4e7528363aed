// Package metrics exposes Prometheus collectors for download runs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "svaha"

var (
	SymbolsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "download",
		Name:      "symbols_total",
		Help:      "Symbols resolved by outcome.",
	}, []string{"outcome"})

	FilesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "files_written_total",
		Help:      "Output files written by format.",
	}, []string{"format"})

	BytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "bytes_written_total",
		Help:      "Bytes of output data written.",
	})

	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "provider",
		Name:      "requests_total",
		Help:      "Market-data provider requests by endpoint and result.",
	}, []string{"endpoint", "result"})

	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "provider",
		Name:      "request_duration_seconds",
		Help:      "Market-data provider request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint"})

	RunsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "download",
		Name:      "runs_active",
		Help:      "Download runs currently executing.",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	UpstreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fieldscan",
			Subsystem: "upstream",
			Name:      "latency_seconds",
			Help:      "Latency of market data upstream calls",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"source", "endpoint"},
	)

	UpstreamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fieldscan",
			Subsystem: "upstream",
			Name:      "errors_total",
			Help:      "Failed market data upstream calls",
		},
		[]string{"source", "endpoint"},
	)

	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fieldscan",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Series cache lookups by result",
		},
		[]string{"result"},
	)
)

// Register adds the collectors to the default registry once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(UpstreamLatency, UpstreamErrors, CacheLookups)
	})
}

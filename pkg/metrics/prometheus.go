package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	tickersTotal  *prometheus.CounterVec
	signalsTotal  *prometheus.CounterVec
	tradesTotal   *prometheus.CounterVec
	tradePnL      *prometheus.HistogramVec
	errorsTotal   *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	scanProcessed prometheus.Gauge
	scanTotal     prometheus.Gauge
}

// New creates a recorder on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registering on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		tickersTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldscan_tickers_total",
				Help: "Tickers processed by scan mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		signalsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldscan_signals_total",
				Help: "Signals emitted by scan mode",
			},
			[]string{"mode"},
		),
		tradesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldscan_trades_total",
				Help: "Resolved trades by exit status",
			},
			[]string{"status"},
		),
		tradePnL: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fieldscan_trade_pnl_percent",
				Help:    "Profit or loss percent of resolved trades",
				Buckets: []float64{-20, -10, -5, -2, -1, 0, 1, 2, 5, 10, 20, 50},
			},
			[]string{"status"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldscan_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fieldscan_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		scanProcessed: f.NewGauge(prometheus.GaugeOpts{
			Name: "fieldscan_scan_processed",
			Help: "Tickers processed by the current or last scan",
		}),
		scanTotal: f.NewGauge(prometheus.GaugeOpts{
			Name: "fieldscan_scan_total",
			Help: "Tickers in the current or last scan universe",
		}),
	}
}

// RecordTicker counts one finished ticker. outcome is ok, skipped or failed.
func (r *Recorder) RecordTicker(mode, outcome string) {
	r.tickersTotal.WithLabelValues(mode, outcome).Inc()
}

func (r *Recorder) RecordSignals(mode string, n int) {
	if n <= 0 {
		return
	}
	r.signalsTotal.WithLabelValues(mode).Add(float64(n))
}

func (r *Recorder) RecordTrade(status string, pnlPct float64) {
	r.tradesTotal.WithLabelValues(status).Inc()
	r.tradePnL.WithLabelValues(status).Observe(pnlPct)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordProgress(processed, total int) {
	r.scanProcessed.Set(float64(processed))
	r.scanTotal.Set(float64(total))
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordTicker(string, string)   {}
func (Nop) RecordSignals(string, int)     {}
func (Nop) RecordTrade(string, float64)   {}
func (Nop) RecordError(string)            {}
func (Nop) RecordLatency(string, float64) {}
func (Nop) RecordProgress(int, int)       {}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "shrimpcast"

// Recorder exports forecasting activity: how many forecasts each method
// produced, which error kinds the engine hit, the last price seen per series
// and how long each engine operation took.
type Recorder struct {
	forecasts *prometheus.CounterVec
	failures  *prometheus.CounterVec
	lastPrice *prometheus.GaugeVec
	duration  *prometheus.HistogramVec
}

func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers on reg. Tests pass prometheus.NewRegistry().
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		forecasts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine", Name: "forecasts_total",
			Help: "Forecasts produced by kind (public, dispatch) and method.",
		}, []string{"kind", "method"}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine", Name: "failures_total",
			Help: "Engine failures by kind, e.g. insufficient_data or not_viable.",
		}, []string{"kind"}),
		lastPrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "prices", Name: "last",
			Help: "Last stored price per caliber and series, in currency per pound.",
		}, []string{"caliber", "series"}),
		// Fits run in memory over a few hundred points; store reads dominate
		// the upper buckets.
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "engine", Name: "operation_seconds",
			Help:    "Duration of forecasting operations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"operation"}),
	}
}

func (r *Recorder) RecordForecast(kind, method string) {
	r.forecasts.WithLabelValues(kind, method).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.failures.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordLastPrice(caliber, series string, price float64) {
	r.lastPrice.WithLabelValues(caliber, series).Set(price)
}

func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.duration.WithLabelValues(op).Observe(seconds)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordForecast(string, string)           {}
func (Nop) RecordError(string)                      {}
func (Nop) RecordLastPrice(string, string, float64) {}
func (Nop) RecordLatency(string, float64)           {}

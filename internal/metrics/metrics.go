package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Forecast paths reported by ForecastsTotal.
const (
	PathModel    = "model"
	PathExternal = "external"
	PathFallback = "fallback"
)

// Metrics exposes Prometheus collectors for forecast activity.
type Metrics struct {
	forecasts      *prometheus.CounterVec
	sourceDuration *prometheus.HistogramVec
	sourceFailures prometheus.Counter
	storedEvents   prometheus.Gauge
	lowConfidence  prometheus.Gauge
}

// MustNew registers the collectors with reg and panics on duplicate
// registration. Tests should pass a fresh prometheus.NewRegistry().
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		forecasts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cyclecal",
				Subsystem: "forecast",
				Name:      "computed_total",
				Help:      "Forecasts computed, by the path that produced them.",
			},
			[]string{"path"},
		),
		sourceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "cyclecal",
				Subsystem: "textgen",
				Name:      "request_duration_seconds",
				Help:      "Latency of external text prediction requests.",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
			},
			[]string{"status"},
		),
		sourceFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "cyclecal",
				Subsystem: "textgen",
				Name:      "failures_total",
				Help:      "External text prediction requests that failed or timed out.",
			},
		),
		storedEvents: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "cyclecal",
				Subsystem: "store",
				Name:      "events",
				Help:      "Number of events in the last forecast snapshot.",
			},
		),
		lowConfidence: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "cyclecal",
				Subsystem: "forecast",
				Name:      "low_confidence",
				Help:      "1 if the latest forecast has no recorded data behind it.",
			},
		),
	}
	reg.MustRegister(m.forecasts, m.sourceDuration, m.sourceFailures, m.storedEvents, m.lowConfidence)
	return m
}

// ObserveForecast records one computed forecast. Safe on a nil receiver.
func (m *Metrics) ObserveForecast(path string, events int, lowConfidence bool) {
	if m == nil {
		return
	}
	m.forecasts.WithLabelValues(path).Inc()
	m.storedEvents.Set(float64(events))
	if lowConfidence {
		m.lowConfidence.Set(1)
	} else {
		m.lowConfidence.Set(0)
	}
}

// ObserveSource records one external text request.
func (m *Metrics) ObserveSource(seconds float64, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		m.sourceFailures.Inc()
	}
	m.sourceDuration.WithLabelValues(status).Observe(seconds)
}

package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsObserve(t *testing.T) {
	m := MustNew(prometheus.NewRegistry())

	m.ObserveForecast(PathModel, 4, false)
	m.ObserveForecast(PathFallback, 4, true)
	m.ObserveSource(1.2, errors.New("timeout"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.forecasts.WithLabelValues(PathModel)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.forecasts.WithLabelValues(PathFallback)))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.storedEvents))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lowConfidence))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sourceFailures))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveForecast(PathModel, 1, false)
		m.ObserveSource(0.1, nil)
	})
}

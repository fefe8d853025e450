package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "test")

	m.Tick("ok", 0.2)
	m.Tick("error", 0.1)
	m.Skipped(ReasonNoQuote)
	m.Skipped(ReasonNoQuote)
	m.SampleRecorded()
	m.AlertTriggered()
	m.NotificationFailed()
	m.CacheHit("/alerts")
	m.CacheMiss("/alerts")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TicksTotal.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CoinsSkipped.WithLabelValues(ReasonNoQuote)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SamplesRecorded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsTriggered))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits.WithLabelValues("/alerts")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMisses.WithLabelValues("/alerts")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Tick("ok", 1)
		m.Skipped(ReasonStore)
		m.SampleRecorded()
		m.AlertTriggered()
		m.NotificationFailed()
		m.CacheHit("x")
		m.CacheMiss("x")
		m.Request("x", "200")
		m.Limited()
	})
}

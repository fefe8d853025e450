package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Skip reasons recorded by CoinsSkipped.
const (
	ReasonNoQuote   = "no_quote"
	ReasonTransport = "transport"
	ReasonMalformed = "malformed"
	ReasonCoinGone  = "coin_gone"
	ReasonStore     = "store"
	ReasonDeadline  = "deadline"
)

// Metrics groups the collectors of the service. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	TicksTotal           *prometheus.CounterVec
	TickDuration         prometheus.Histogram
	SamplesRecorded      prometheus.Counter
	CoinsSkipped         *prometheus.CounterVec
	AlertsTriggered      prometheus.Counter
	NotificationFailures prometheus.Counter
	CacheHits            *prometheus.CounterVec
	CacheMisses          *prometheus.CounterVec
	HTTPRequests         *prometheus.CounterVec
	RateLimited          prometheus.Counter
}

// New registers every collector on reg.
func New(reg prometheus.Registerer, instance string) *Metrics {
	labels := prometheus.Labels{"instance": instance}
	m := &Metrics{
		TicksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "price_cycle_ticks_total",
				Help:        "Total number of price update ticks by result",
				ConstLabels: labels,
			},
			[]string{"result"},
		),
		TickDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:        "price_cycle_tick_duration_seconds",
				Help:        "Duration of a full price update tick",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
		),
		SamplesRecorded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name:        "price_samples_recorded_total",
				Help:        "Total number of committed price samples",
				ConstLabels: labels,
			},
		),
		CoinsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "price_cycle_coins_skipped_total",
				Help:        "Coins skipped during a tick by reason",
				ConstLabels: labels,
			},
			[]string{"reason"},
		),
		AlertsTriggered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name:        "alerts_triggered_total",
				Help:        "Total number of alerts that fired and were removed",
				ConstLabels: labels,
			},
		),
		NotificationFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name:        "alert_notification_failures_total",
				Help:        "Total number of alert emails that could not be sent",
				ConstLabels: labels,
			},
		),
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "cache_hits_total",
				Help:        "Total number of cache hits",
				ConstLabels: labels,
			},
			[]string{"endpoint"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "cache_misses_total",
				Help:        "Total number of cache misses",
				ConstLabels: labels,
			},
			[]string{"endpoint"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests by route and status",
				ConstLabels: labels,
			},
			[]string{"route", "code"},
		),
		RateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name:        "http_rate_limited_total",
				Help:        "Total number of requests rejected by the rate limiter",
				ConstLabels: labels,
			},
		),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.TickDuration,
		m.SamplesRecorded,
		m.CoinsSkipped,
		m.AlertsTriggered,
		m.NotificationFailures,
		m.CacheHits,
		m.CacheMisses,
		m.HTTPRequests,
		m.RateLimited,
	)
	return m
}

func (m *Metrics) Tick(result string, seconds float64) {
	if m == nil {
		return
	}
	m.TicksTotal.WithLabelValues(result).Inc()
	m.TickDuration.Observe(seconds)
}

func (m *Metrics) Skipped(reason string) {
	if m == nil {
		return
	}
	m.CoinsSkipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) SampleRecorded() {
	if m == nil {
		return
	}
	m.SamplesRecorded.Inc()
}

func (m *Metrics) AlertTriggered() {
	if m == nil {
		return
	}
	m.AlertsTriggered.Inc()
}

func (m *Metrics) NotificationFailed() {
	if m == nil {
		return
	}
	m.NotificationFailures.Inc()
}

func (m *Metrics) CacheHit(endpoint string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) CacheMiss(endpoint string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) Request(route, code string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, code).Inc()
}

func (m *Metrics) Limited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}

package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pricealerts/internal/cache"
	"pricealerts/internal/metrics"
	"pricealerts/internal/scheduler"
	"pricealerts/internal/service"
)

// Deps are the collaborators of the HTTP surface. Cache, Limiter, DB and
// Status are optional.
type Deps struct {
	Coins    *service.CoinService
	Alerts   *service.AlertService
	Cache    *cache.Cache
	Streams  *Streams
	Limiter  Limiter
	DB       Pinger
	Status   func() scheduler.Status
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

func NewRouter(d Deps) http.Handler {
	coins := NewCoinHandler(d.Coins, d.Logger)
	alerts := NewAlertHandler(d.Alerts, d.Cache, d.Logger)

	mux := http.NewServeMux()

	mux.HandleFunc("POST /coins", coins.Create)
	mux.HandleFunc("POST /coins/{$}", coins.Create)
	mux.HandleFunc("GET /coins", coins.List)
	mux.HandleFunc("GET /coins/{id}", coins.Detail)

	mux.HandleFunc("GET /alerts", alerts.Browse)
	mux.HandleFunc("POST /alerts", alerts.Create)
	mux.HandleFunc("GET /alerts/{id}", alerts.Get)
	mux.HandleFunc("PUT /alerts/{id}", alerts.Update)
	mux.HandleFunc("DELETE /alerts/{id}", alerts.Delete)

	if d.Streams != nil {
		mux.Handle("GET /alerts/stream", d.Streams.Alerts)
		mux.Handle("GET /prices/stream", d.Streams.Prices)
	}

	mux.HandleFunc("GET /healthz", Health(d.DB, d.Status))
	if d.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	return Instrument(d.Metrics, RateLimit(d.Limiter, d.Metrics, d.Logger, mux))
}

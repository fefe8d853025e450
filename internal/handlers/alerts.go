package handlers

import (
	"context"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"pricealerts/internal/cache"
	"pricealerts/internal/models"
	"pricealerts/internal/service"
	"pricealerts/internal/tracing"
)

const (
	alertsEndpoint = "/alerts"
	alertsCacheTTL = 30 * time.Second
)

type AlertsResponse struct {
	Alerts []models.Alert `json:"alerts"`
}

// AlertHandler serves the alert CRUD endpoints. Listings are cached when a
// response cache is configured.
type AlertHandler struct {
	alerts *service.AlertService
	cache  *cache.Cache
	logger *zap.Logger
}

// NewAlertHandler builds the handler. responses may be nil.
func NewAlertHandler(alerts *service.AlertService, responses *cache.Cache, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{alerts: alerts, cache: responses, logger: logger}
}

// Browse lists every alert.
func (h *AlertHandler) Browse(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.Tracer().Start(r.Context(), "BrowseAlertsHandler")
	defer span.End()

	traceID := span.SpanContext().TraceID().String()
	cacheKey := cache.KeyFor(cache.AlertsPrefix, r.URL.Query())

	if h.cache != nil {
		cached, ok, err := h.cache.Get(ctx, cacheKey, alertsEndpoint)
		switch {
		case err != nil:
			h.logger.Warn("Failed to read cached response",
				zap.String("trace_id", traceID),
				zap.String("cache_key", cacheKey),
				zap.Error(err),
			)
		case ok:
			h.logger.Debug("Cache hit for /alerts",
				zap.String("trace_id", traceID),
				zap.String("cache_key", cacheKey),
			)
			writeRaw(w, http.StatusOK, []byte(cached))
			return
		}
	}

	alerts, err := h.alerts.List(ctx)
	if err != nil {
		fail(w, h.logger, span, "Browse alerts", err)
		return
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}

	body, err := json.Marshal(AlertsResponse{Alerts: alerts})
	if err != nil {
		fail(w, h.logger, span, "Browse alerts", err)
		return
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, cacheKey, string(body), alertsCacheTTL); err != nil {
			h.logger.Warn("Failed to store response in cache",
				zap.String("trace_id", traceID),
				zap.String("cache_key", cacheKey),
				zap.Error(err),
			)
		}
	}
	writeRaw(w, http.StatusOK, body)
}

func (h *AlertHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.Tracer().Start(r.Context(), "CreateAlertHandler")
	defer span.End()

	var in service.AlertInput
	if err := decodeBody(w, r, &in); err != nil {
		fail(w, h.logger, span, "Create alert", err)
		return
	}

	alert, err := h.alerts.Create(ctx, in)
	if err != nil {
		fail(w, h.logger, span, "Create alert", err)
		return
	}
	h.invalidate(r)

	h.logger.Info("Alert created",
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("alert_id", alert.ID.String()),
		zap.String("alert_type", string(alert.Direction)),
	)
	writeJSON(w, http.StatusCreated, alert)
}

func (h *AlertHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.Tracer().Start(r.Context(), "GetAlertHandler")
	defer span.End()

	alert, err := h.alerts.Get(ctx, r.PathValue("id"))
	if err != nil {
		fail(w, h.logger, span, "Get alert", err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (h *AlertHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.Tracer().Start(r.Context(), "UpdateAlertHandler")
	defer span.End()

	var patch service.AlertPatch
	if err := decodeBody(w, r, &patch); err != nil {
		fail(w, h.logger, span, "Update alert", err)
		return
	}

	alert, err := h.alerts.Update(ctx, r.PathValue("id"), patch)
	if err != nil {
		fail(w, h.logger, span, "Update alert", err)
		return
	}
	h.invalidate(r)
	writeJSON(w, http.StatusOK, alert)
}

func (h *AlertHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.Tracer().Start(r.Context(), "DeleteAlertHandler")
	defer span.End()

	if err := h.alerts.Delete(ctx, r.PathValue("id")); err != nil {
		fail(w, h.logger, span, "Delete alert", err)
		return
	}
	h.invalidate(r)
	w.WriteHeader(http.StatusNoContent)
}

// invalidate drops cached listings after a write, ignoring request
// cancellation.
func (h *AlertHandler) invalidate(r *http.Request) {
	if h.cache == nil {
		return
	}
	h.cache.InvalidateByPrefix(context.WithoutCancel(r.Context()), cache.AlertsPrefix, alertsEndpoint)
}

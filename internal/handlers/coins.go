package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"pricealerts/internal/models"
	"pricealerts/internal/service"
	"pricealerts/internal/tracing"
	"pricealerts/internal/validation"
)

type CreateCoinRequest struct {
	Name string `json:"name"`
}

type CoinsResponse struct {
	Coins []models.Coin `json:"coins"`
}

// CoinHandler serves the /coins endpoints.
type CoinHandler struct {
	coins  *service.CoinService
	logger *zap.Logger
}

func NewCoinHandler(coins *service.CoinService, logger *zap.Logger) *CoinHandler {
	return &CoinHandler{coins: coins, logger: logger}
}

func (h *CoinHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.Tracer().Start(r.Context(), "CreateCoinHandler")
	defer span.End()

	var req CreateCoinRequest
	if err := decodeBody(w, r, &req); err != nil {
		fail(w, h.logger, span, "Create coin", err)
		return
	}

	coin, err := h.coins.Create(ctx, req.Name)
	if err != nil {
		fail(w, h.logger, span, "Create coin", err)
		return
	}

	h.logger.Info("Coin created",
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("coin_id", coin.ID.String()),
		zap.String("symbol", coin.Symbol),
	)
	writeJSON(w, http.StatusCreated, coin)
}

func (h *CoinHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.Tracer().Start(r.Context(), "ListCoinsHandler")
	defer span.End()

	coins, err := h.coins.List(ctx)
	if err != nil {
		fail(w, h.logger, span, "List coins", err)
		return
	}
	if coins == nil {
		coins = []models.Coin{}
	}
	writeJSON(w, http.StatusOK, CoinsResponse{Coins: coins})
}

// Detail serves GET /coins/{id}?start_timestamp=&end_timestamp=.
func (h *CoinHandler) Detail(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.Tracer().Start(r.Context(), "CoinDetailHandler")
	defer span.End()

	query := r.URL.Query()
	start, err := validation.Timestamp("start_timestamp", query.Get("start_timestamp"))
	if err != nil {
		fail(w, h.logger, span, "Coin detail", err)
		return
	}
	end, err := validation.Timestamp("end_timestamp", query.Get("end_timestamp"))
	if err != nil {
		fail(w, h.logger, span, "Coin detail", err)
		return
	}

	detail, err := h.coins.Detail(ctx, r.PathValue("id"), start, end)
	if err != nil {
		fail(w, h.logger, span, "Coin detail", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

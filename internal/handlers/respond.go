// Package handlers exposes the coin and alert use cases over HTTP, plus the
// live alert (SSE) and price (WebSocket) streams.
package handlers

import (
	"errors"
	"io"
	"net/http"

	json "github.com/goccy/go-json"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"pricealerts/internal/exchange"
	"pricealerts/internal/service"
	"pricealerts/internal/validation"
)

const maxBodySize = 1 << 20

// Response is the error envelope.
type Response struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Failed to encode JSON response", http.StatusInternalServerError)
		return
	}
	writeRaw(w, status, body)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Response{Message: msg})
}

// decodeBody reads a JSON request body into v. Malformed bodies are
// reported as validation failures.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return &validation.Error{Field: "body", Kind: validation.KindInvalidBody, Message: "request body could not be read"}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &validation.Error{Field: "body", Kind: validation.KindInvalidBody, Message: "invalid request body"}
	}
	return nil
}

// statusFor maps use case errors onto HTTP status codes.
func statusFor(err error) int {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrCoinExists),
		errors.Is(err, service.ErrAlertExists),
		errors.Is(err, service.ErrNoCurrentPrice):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrCoinNotQuotable),
		errors.Is(err, service.ErrCoinNotFound),
		errors.Is(err, service.ErrAlertNotFound):
		return http.StatusNotFound
	case errors.Is(err, exchange.ErrTransport), errors.Is(err, exchange.ErrMalformedQuote):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as a JSON message. Unexpected errors are logged and
// hidden from the client.
func fail(w http.ResponseWriter, logger *zap.Logger, span trace.Span, op string, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		logger.Error(op+" failed",
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Error(err),
		)
		msg = "internal server error"
	case http.StatusBadGateway:
		logger.Warn(op+" failed on the exchange",
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Error(err),
		)
		msg = "exchange unavailable"
	}
	writeMessage(w, status, msg)
}

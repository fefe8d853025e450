// Package exchange fetches last traded prices from the OKX v5 public REST API.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL    = "https://www.okx.com"
	DefaultInstSuffix = "-USD-SWAP"

	tickerPath  = "/api/v5/market/ticker"
	successCode = "0"
	maxBodySize = 1 << 20
)

var (
	// ErrNoQuote means the exchange answered but has no tradable data for the
	// instrument. It is not a transport failure.
	ErrNoQuote = errors.New("no quote available")
	// ErrTransport matches every *TransportError.
	ErrTransport = errors.New("quote transport error")
	// ErrMalformedQuote means the response body could not be understood.
	ErrMalformedQuote = errors.New("malformed quote response")
)

// TransportError wraps a failed or non-2xx ticker request for one instrument.
type TransportError struct {
	InstID string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("quote request for %s: unexpected status %d", e.InstID, e.Status)
	}
	return fmt.Sprintf("quote request for %s: %v", e.InstID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// Quote is the latest ticker snapshot of one instrument.
type Quote struct {
	InstID string
	Last   decimal.Decimal
	Time   time.Time
}

// tickerResponse maps GET /api/v5/market/ticker.
//
//	{"code":"0","msg":"","data":[{"instId":"BTC-USD-SWAP","last":"60000.1","ts":"1718107200000"}]}
type tickerResponse struct {
	Code string       `json:"code"`
	Msg  string       `json:"msg"`
	Data []tickerData `json:"data"`
}

type tickerData struct {
	InstID string `json:"instId" validate:"required"`
	Last   string `json:"last" validate:"required,numeric"`
	Ts     string `json:"ts" validate:"omitempty,numeric"`
}

// Client queries the OKX ticker endpoint. It is safe for concurrent use.
type Client struct {
	baseURL    string
	instSuffix string
	client     *http.Client
	validate   *validator.Validate
	logger     *zap.Logger
}

// NewClient builds a client against baseURL. Every request is bounded by
// timeout.
func NewClient(baseURL, instSuffix string, timeout time.Duration, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if instSuffix == "" {
		instSuffix = DefaultInstSuffix
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		instSuffix: instSuffix,
		client:     &http.Client{Timeout: timeout},
		validate:   validator.New(),
		logger:     logger,
	}
}

// InstID builds the instrument identifier for a coin symbol.
func (c *Client) InstID(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol)) + c.instSuffix
}

// FetchQuote issues a single ticker request. It does not retry.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (*Quote, error) {
	if strings.TrimSpace(symbol) == "" {
		return nil, errors.New("fetch quote: empty symbol")
	}
	instID := c.InstID(symbol)
	endpoint := c.baseURL + tickerPath + "?instId=" + url.QueryEscape(instID)

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &TransportError{InstID: instID, Err: err}
	}
	request.Header.Set("Accept", "application/json")

	start := time.Now()
	response, err := c.client.Do(request)
	if err != nil {
		c.logger.Warn("quote request failed", zap.String("inst_id", instID), zap.Error(err))
		return nil, &TransportError{InstID: instID, Err: err}
	}
	defer response.Body.Close()

	c.logger.Debug(
		"quote request complete",
		zap.String("inst_id", instID),
		zap.Int("status", response.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, maxBodySize))
		return nil, &TransportError{InstID: instID, Status: response.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, maxBodySize))
	if err != nil {
		return nil, &TransportError{InstID: instID, Err: err}
	}

	return c.decode(instID, body)
}

func (c *Client) decode(instID string, body []byte) (*Quote, error) {
	var payload tickerResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedQuote, instID, err)
	}
	if payload.Code != successCode || len(payload.Data) == 0 {
		c.logger.Debug("no quote for instrument",
			zap.String("inst_id", instID),
			zap.String("code", payload.Code),
			zap.String("msg", payload.Msg),
		)
		return nil, fmt.Errorf("%w: %s (code %q)", ErrNoQuote, instID, payload.Code)
	}

	data := payload.Data[0]
	if err := c.validate.Struct(data); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedQuote, instID, err)
	}
	last, err := decimal.NewFromString(data.Last)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: last %q: %v", ErrMalformedQuote, instID, data.Last, err)
	}
	if !last.IsPositive() {
		return nil, fmt.Errorf("%w: %s: last price %s", ErrNoQuote, instID, last)
	}

	quote := &Quote{InstID: data.InstID, Last: last}
	if data.Ts != "" {
		if ms, err := strconv.ParseInt(data.Ts, 10, 64); err == nil {
			quote.Time = time.UnixMilli(ms).UTC()
		}
	}
	return quote, nil
}

// Quotable reports whether the exchange currently quotes the symbol. Only
// ErrNoQuote maps to false; transport failures are returned as errors.
func (c *Client) Quotable(ctx context.Context, symbol string) (bool, error) {
	_, err := c.FetchQuote(ctx, symbol)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNoQuote):
		return false, nil
	default:
		return false, err
	}
}

package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricealerts/internal/config"
	"pricealerts/internal/handlers"
	"pricealerts/internal/models"
)

func okxServer(t *testing.T, price *atomic.Value) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		instID := r.URL.Query().Get("instId")
		fmt.Fprintf(w, `{"code":"0","msg":"","data":[{"instId":%q,"last":%q,"ts":"%d"}]}`,
			instID, price.Load().(string), time.Now().UnixMilli())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(okxURL string) config.Config {
	return config.Config{
		AppHost:         "127.0.0.1",
		AppPort:         8000,
		InstanceID:      "test",
		LogLevel:        "error",
		LogFormat:       "json",
		StoreDriver:     config.DriverMemory,
		OKXBaseURL:      okxURL,
		OKXTimeout:      time.Second,
		OKXInstSuffix:   "-USD-SWAP",
		PollInterval:    20 * time.Millisecond,
		PollTickTimeout: time.Second,
		PollWorkers:     2,
		ServiceName:     "pricealerts-test",
	}
}

func call(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAlertFiresEndToEnd(t *testing.T) {
	var price atomic.Value
	price.Store("100")
	okx := okxServer(t, &price)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := New(ctx, testConfig(okx.URL))
	require.NoError(t, err)
	defer a.Shutdown()
	h := a.server.Handler

	rec := call(t, h, http.MethodPost, "/coins", `{"name":"eth"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var coin models.Coin
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &coin))

	a.scheduler.Start(ctx)
	require.Eventually(t, func() bool { return a.scheduler.Status().Runs >= 1 }, 2*time.Second, 10*time.Millisecond)

	rec = call(t, h, http.MethodPost, "/alerts", fmt.Sprintf(`{"email":"a@b.io","threshold_price":90,"coin_id":%q}`, coin.ID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var alert models.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &alert))
	assert.Equal(t, models.DirectionDecrease, alert.Direction)

	price.Store("85")
	require.Eventually(t, func() bool {
		rec := call(t, h, http.MethodGet, "/alerts", "")
		var list handlers.AlertsResponse
		return json.Unmarshal(rec.Body.Bytes(), &list) == nil && len(list.Alerts) == 0
	}, 2*time.Second, 20*time.Millisecond)

	rec = call(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var health handlers.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	require.NotNil(t, health.Scheduler)
	assert.Equal(t, "price-cycle", health.Scheduler.Name)
	assert.GreaterOrEqual(t, health.Scheduler.Runs, 2)
	assert.Equal(t, "n/a", health.Database)
}

func TestNewFailsOnUnreachableRedis(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.RedisAddr = "127.0.0.1:1"

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestShutdownWithoutRun(t *testing.T) {
	a, err := New(context.Background(), testConfig("http://127.0.0.1:1"))
	require.NoError(t, err)
	assert.NotPanics(t, a.Shutdown)
}

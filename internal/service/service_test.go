package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricealerts/internal/database/memory"
	"pricealerts/internal/models"
	"pricealerts/internal/validation"
)

type fakeQuoter struct {
	quotable map[string]bool
	err      error
	calls    int
}

func (q *fakeQuoter) Quotable(_ context.Context, symbol string) (bool, error) {
	q.calls++
	if q.err != nil {
		return false, q.err
	}
	return q.quotable[symbol], nil
}

type fakeCache map[uuid.UUID]decimal.Decimal

func (c fakeCache) Latest(_ context.Context, id uuid.UUID) (decimal.Decimal, bool, error) {
	p, ok := c[id]
	return p, ok, nil
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func strPtr(s string) *string { return &s }

func seedPrice(t *testing.T, store models.Store, coinID uuid.UUID, price string) {
	t.Helper()
	require.NoError(t, store.WithTx(context.Background(), func(tx models.Tx) error {
		_, err := tx.InsertSample(context.Background(), coinID, decimal.RequireFromString(price))
		return err
	}))
}

func TestCoinCreate(t *testing.T) {
	store := memory.New()
	quoter := &fakeQuoter{quotable: map[string]bool{"ETH": true}}
	svc := NewCoinService(store, quoter)
	ctx := context.Background()

	coin, err := svc.Create(ctx, " eth ")
	require.NoError(t, err)
	assert.Equal(t, "ETH", coin.Symbol)
	assert.NotEqual(t, uuid.Nil, coin.ID)

	_, err = svc.Create(ctx, "ETH")
	assert.ErrorIs(t, err, ErrCoinExists)
	assert.Equal(t, 1, quoter.calls, "duplicates must not reach the exchange")

	_, err = svc.Create(ctx, "NOPE")
	assert.ErrorIs(t, err, ErrCoinNotQuotable)

	coins, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, coins, 1)
}

func TestCoinCreateValidation(t *testing.T) {
	svc := NewCoinService(memory.New(), &fakeQuoter{})
	_, err := svc.Create(context.Background(), "")
	assert.True(t, validation.IsKind(err, validation.KindRequired))
}

func TestCoinCreateExchangeDown(t *testing.T) {
	svc := NewCoinService(memory.New(), &fakeQuoter{err: errors.New("connection refused")})
	_, err := svc.Create(context.Background(), "BTC")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCoinNotQuotable)

	coins, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, coins)
}

func TestCoinDetail(t *testing.T) {
	base := time.Date(2024, 6, 11, 12, 0, 0, 0, time.UTC)
	clock := base
	store := memory.New(memory.WithClock(func() time.Time { return clock }))
	coins := NewCoinService(store, &fakeQuoter{quotable: map[string]bool{"ETH": true}})
	alerts := NewAlertService(store, nil)
	ctx := context.Background()

	coin, err := coins.Create(ctx, "ETH")
	require.NoError(t, err)

	clock = base.Add(-10 * time.Minute)
	seedPrice(t, store, coin.ID, "90")
	clock = base.Add(-time.Minute)
	seedPrice(t, store, coin.ID, "100")

	alert, err := alerts.Create(ctx, AlertInput{Email: "a@b.co", ThresholdPrice: dec("120"), CoinID: coin.ID.String()})
	require.NoError(t, err)

	coins.now = func() time.Time { return base }
	detail, err := coins.Detail(ctx, coin.ID.String(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ETH", detail.Name)
	assert.Equal(t, []uuid.UUID{alert.ID}, detail.AlertIDs)
	require.Len(t, detail.Prices, 1)
	assert.True(t, decimal.NewFromInt(100).Equal(detail.Prices[0].Price))

	start := float64(base.Add(-time.Hour).Unix())
	detail, err = coins.Detail(ctx, coin.ID.String(), &start, nil)
	require.NoError(t, err)
	assert.Len(t, detail.Prices, 2)

	future := float64(base.Add(time.Hour).Unix())
	_, err = coins.Detail(ctx, coin.ID.String(), nil, &future)
	assert.True(t, validation.IsKind(err, validation.KindFutureTimestamp))

	_, err = coins.Detail(ctx, uuid.NewString(), nil, nil)
	assert.ErrorIs(t, err, ErrCoinNotFound)

	_, err = coins.Detail(ctx, "nope", nil, nil)
	assert.True(t, validation.IsKind(err, validation.KindInvalidID))
}

func newAlertFixture(t *testing.T) (*AlertService, models.Store, models.Coin) {
	t.Helper()
	store := memory.New()
	coin := models.Coin{Symbol: "ETH"}
	require.NoError(t, store.WithTx(context.Background(), func(tx models.Tx) error {
		return tx.CreateCoin(context.Background(), &coin)
	}))
	return NewAlertService(store, nil), store, coin
}

func TestAlertCreateDerivesDirection(t *testing.T) {
	svc, store, coin := newAlertFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, AlertInput{Email: "a@b.co", ThresholdPrice: dec("90"), CoinID: coin.ID.String()})
	assert.ErrorIs(t, err, ErrNoCurrentPrice)

	seedPrice(t, store, coin.ID, "100")

	alert, err := svc.Create(ctx, AlertInput{Email: "a@b.co", ThresholdPrice: dec("90"), CoinID: coin.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, models.DirectionDecrease, alert.Direction)

	alert, err = svc.Create(ctx, AlertInput{Email: "a@b.co", ThresholdPrice: dec("110"), CoinID: coin.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, models.DirectionIncrease, alert.Direction)

	alert, err = svc.Create(ctx, AlertInput{Email: "a@b.co", ThresholdPrice: dec("100"), CoinID: coin.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, models.DirectionDecrease, alert.Direction)
}

func TestAlertCreateDuplicate(t *testing.T) {
	svc, store, coin := newAlertFixture(t)
	ctx := context.Background()
	seedPrice(t, store, coin.ID, "100")

	in := AlertInput{Email: "a@b.co", ThresholdPrice: dec("90"), CoinID: coin.ID.String()}
	_, err := svc.Create(ctx, in)
	require.NoError(t, err)
	_, err = svc.Create(ctx, in)
	assert.ErrorIs(t, err, ErrAlertExists)

	alerts, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestAlertCreateValidation(t *testing.T) {
	svc, _, coin := newAlertFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   AlertInput
		kind validation.Kind
	}{
		{"missing at", AlertInput{Email: "ab.co", ThresholdPrice: dec("1"), CoinID: coin.ID.String()}, validation.KindInvalidEmail},
		{"bad shape", AlertInput{Email: "a@b", ThresholdPrice: dec("1"), CoinID: coin.ID.String()}, validation.KindInvalidEmail},
		{"negative", AlertInput{Email: "a@b.co", ThresholdPrice: dec("-1"), CoinID: coin.ID.String()}, validation.KindNegativeThreshold},
		{"missing threshold", AlertInput{Email: "a@b.co", CoinID: coin.ID.String()}, validation.KindRequired},
		{"bad coin id", AlertInput{Email: "a@b.co", ThresholdPrice: dec("1"), CoinID: "0"}, validation.KindInvalidID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.in)
			require.Error(t, err)
			assert.True(t, validation.IsKind(err, tt.kind), err.Error())
		})
	}

	_, err := svc.Create(ctx, AlertInput{Email: "a@b.co", ThresholdPrice: dec("1"), CoinID: uuid.NewString()})
	assert.ErrorIs(t, err, ErrCoinNotFound)
}

func TestAlertCreateUsesCachedPrice(t *testing.T) {
	store := memory.New()
	coin := models.Coin{Symbol: "BTC"}
	require.NoError(t, store.WithTx(context.Background(), func(tx models.Tx) error {
		return tx.CreateCoin(context.Background(), &coin)
	}))
	svc := NewAlertService(store, fakeCache{coin.ID: decimal.NewFromInt(60000)})

	alert, err := svc.Create(context.Background(), AlertInput{Email: "a@b.co", ThresholdPrice: dec("70000"), CoinID: coin.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, models.DirectionIncrease, alert.Direction)
}

func TestAlertUpdate(t *testing.T) {
	svc, store, coin := newAlertFixture(t)
	ctx := context.Background()
	seedPrice(t, store, coin.ID, "100")

	alert, err := svc.Create(ctx, AlertInput{Email: "a@b.co", ThresholdPrice: dec("90"), CoinID: coin.ID.String()})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, alert.ID.String(), AlertPatch{ThresholdPrice: dec("150")})
	require.NoError(t, err)
	assert.Equal(t, models.DirectionIncrease, updated.Direction)
	assert.Equal(t, "a@b.co", updated.Email)

	updated, err = svc.Update(ctx, alert.ID.String(), AlertPatch{Email: strPtr("c@d.io")})
	require.NoError(t, err)
	assert.Equal(t, "c@d.io", updated.Email)
	assert.Equal(t, models.DirectionIncrease, updated.Direction)

	_, err = svc.Update(ctx, alert.ID.String(), AlertPatch{Email: strPtr("broken")})
	assert.True(t, validation.IsKind(err, validation.KindInvalidEmail))

	_, err = svc.Update(ctx, alert.ID.String(), AlertPatch{CoinID: strPtr(uuid.NewString())})
	assert.True(t, validation.IsKind(err, validation.KindUnknownCoin))

	_, err = svc.Update(ctx, uuid.NewString(), AlertPatch{Email: strPtr("c@d.io")})
	assert.ErrorIs(t, err, ErrAlertNotFound)
}

func TestAlertUpdateConflict(t *testing.T) {
	svc, store, coin := newAlertFixture(t)
	ctx := context.Background()
	seedPrice(t, store, coin.ID, "100")

	_, err := svc.Create(ctx, AlertInput{Email: "a@b.co", ThresholdPrice: dec("90"), CoinID: coin.ID.String()})
	require.NoError(t, err)
	other, err := svc.Create(ctx, AlertInput{Email: "a@b.co", ThresholdPrice: dec("80"), CoinID: coin.ID.String()})
	require.NoError(t, err)

	_, err = svc.Update(ctx, other.ID.String(), AlertPatch{ThresholdPrice: dec("90")})
	assert.ErrorIs(t, err, ErrAlertExists)
}

func TestAlertUpdateToCoinWithoutPrice(t *testing.T) {
	svc, store, coin := newAlertFixture(t)
	ctx := context.Background()
	seedPrice(t, store, coin.ID, "100")

	fresh := models.Coin{Symbol: "NEW"}
	require.NoError(t, store.WithTx(ctx, func(tx models.Tx) error { return tx.CreateCoin(ctx, &fresh) }))

	alert, err := svc.Create(ctx, AlertInput{Email: "a@b.co", ThresholdPrice: dec("90"), CoinID: coin.ID.String()})
	require.NoError(t, err)

	_, err = svc.Update(ctx, alert.ID.String(), AlertPatch{CoinID: strPtr(fresh.ID.String())})
	assert.ErrorIs(t, err, ErrNoCurrentPrice)
}

func TestAlertGetAndDelete(t *testing.T) {
	svc, store, coin := newAlertFixture(t)
	ctx := context.Background()
	seedPrice(t, store, coin.ID, "100")

	alert, err := svc.Create(ctx, AlertInput{Email: "a@b.co", ThresholdPrice: dec("90"), CoinID: coin.ID.String()})
	require.NoError(t, err)

	got, err := svc.Get(ctx, alert.ID.String())
	require.NoError(t, err)
	assert.Equal(t, alert.ID, got.ID)

	require.NoError(t, svc.Delete(ctx, alert.ID.String()))
	assert.ErrorIs(t, svc.Delete(ctx, alert.ID.String()), ErrAlertNotFound)

	_, err = svc.Get(ctx, alert.ID.String())
	assert.ErrorIs(t, err, ErrAlertNotFound)

	err = svc.Delete(ctx, "not-a-uuid")
	assert.True(t, validation.IsKind(err, validation.KindInvalidID))
}

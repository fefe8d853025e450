package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Tx is a unit of work over coins, samples and alerts. It is only valid
// inside the callback passed to Store.WithTx or Store.WithReadTx.
type Tx interface {
	ListCoins(ctx context.Context) ([]Coin, error)
	GetCoin(ctx context.Context, id uuid.UUID) (*Coin, error)
	GetCoinBySymbol(ctx context.Context, symbol string) (*Coin, error)
	CreateCoin(ctx context.Context, coin *Coin) error

	// InsertSample records a price for the coin. The observation time is
	// assigned by the store clock.
	InsertSample(ctx context.Context, coinID uuid.UUID, price decimal.Decimal) (*PriceSample, error)
	LatestPrice(ctx context.Context, coinID uuid.UUID) (decimal.Decimal, error)
	ListSamples(ctx context.Context, coinID uuid.UUID, from, to time.Time) ([]PriceSample, error)

	ListAlerts(ctx context.Context) ([]Alert, error)
	ListAlertsByCoin(ctx context.Context, coinID uuid.UUID) ([]Alert, error)
	GetAlert(ctx context.Context, id uuid.UUID) (*Alert, error)
	CreateAlert(ctx context.Context, alert *Alert) error
	UpdateAlert(ctx context.Context, alert *Alert) error
	DeleteAlert(ctx context.Context, id uuid.UUID) error

	RecordFailedNotification(ctx context.Context, n *FailedNotification) error
}

// Store hands out transactions. fn's error rolls the transaction back,
// a nil return commits it.
type Store interface {
	WithTx(ctx context.Context, fn func(Tx) error) error
	WithReadTx(ctx context.Context, fn func(Tx) error) error
	Close() error
}

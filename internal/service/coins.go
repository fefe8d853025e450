package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pricealerts/internal/models"
	"pricealerts/internal/validation"
)

// Quoter checks whether the exchange lists a symbol.
type Quoter interface {
	Quotable(ctx context.Context, symbol string) (bool, error)
}

// PricePoint is one recorded sample in a coin detail.
type PricePoint struct {
	Price    decimal.Decimal `json:"price"`
	Timedate time.Time       `json:"timedate"`
}

// CoinDetail is a coin with the ids of its alerts and a window of its
// price history.
type CoinDetail struct {
	Name     string       `json:"name"`
	AlertIDs []uuid.UUID  `json:"alert_ids"`
	Prices   []PricePoint `json:"prices"`
}

// CoinService implements coin registration, listing and detail.
type CoinService struct {
	store  models.Store
	quoter Quoter
	now    func() time.Time
}

func NewCoinService(store models.Store, quoter Quoter) *CoinService {
	return &CoinService{store: store, quoter: quoter, now: time.Now}
}

// Create registers a coin. Duplicates are rejected before the exchange is
// contacted.
func (s *CoinService) Create(ctx context.Context, name string) (*models.Coin, error) {
	symbol, err := validation.Symbol(name)
	if err != nil {
		return nil, err
	}

	err = s.store.WithReadTx(ctx, func(tx models.Tx) error {
		_, err := tx.GetCoinBySymbol(ctx, symbol)
		return err
	})
	switch {
	case err == nil:
		return nil, ErrCoinExists
	case !errors.Is(err, models.ErrNotFound):
		return nil, err
	}

	ok, err := s.quoter.Quotable(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("check %s on exchange: %w", symbol, err)
	}
	if !ok {
		return nil, ErrCoinNotQuotable
	}

	coin := &models.Coin{ID: uuid.New(), Symbol: symbol}
	err = s.store.WithTx(ctx, func(tx models.Tx) error {
		return tx.CreateCoin(ctx, coin)
	})
	if errors.Is(err, models.ErrConflict) {
		return nil, ErrCoinExists
	}
	if err != nil {
		return nil, err
	}
	return coin, nil
}

// List returns every tracked coin.
func (s *CoinService) List(ctx context.Context) ([]models.Coin, error) {
	var coins []models.Coin
	err := s.store.WithReadTx(ctx, func(tx models.Tx) error {
		var err error
		coins, err = tx.ListCoins(ctx)
		return err
	})
	return coins, err
}

// Detail returns the coin with its prices between start and end, given as
// Unix seconds. Missing bounds default to the last validation.DefaultWindow.
func (s *CoinService) Detail(ctx context.Context, rawID string, start, end *float64) (*CoinDetail, error) {
	id, err := validation.ID("coin_id", rawID)
	if err != nil {
		return nil, err
	}
	from, to, err := validation.TimeRange(start, end, s.now())
	if err != nil {
		return nil, err
	}

	detail := &CoinDetail{AlertIDs: []uuid.UUID{}, Prices: []PricePoint{}}
	err = s.store.WithReadTx(ctx, func(tx models.Tx) error {
		coin, err := tx.GetCoin(ctx, id)
		if err != nil {
			return err
		}
		detail.Name = coin.Symbol

		alerts, err := tx.ListAlertsByCoin(ctx, id)
		if err != nil {
			return err
		}
		for _, a := range alerts {
			detail.AlertIDs = append(detail.AlertIDs, a.ID)
		}

		samples, err := tx.ListSamples(ctx, id, from, to)
		if err != nil {
			return err
		}
		for _, p := range samples {
			detail.Prices = append(detail.Prices, PricePoint{Price: p.Price, Timedate: p.ObservedAt})
		}
		return nil
	})
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrCoinNotFound
	}
	if err != nil {
		return nil, err
	}
	return detail, nil
}

package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pricealerts/internal/models"
	"pricealerts/internal/validation"
)

// PriceCache answers current price lookups ahead of the database.
type PriceCache interface {
	Latest(ctx context.Context, coinID uuid.UUID) (decimal.Decimal, bool, error)
}

// AlertInput is the raw request for a new alert.
type AlertInput struct {
	Email          string           `json:"email"`
	ThresholdPrice *decimal.Decimal `json:"threshold_price"`
	CoinID         string           `json:"coin_id"`
}

// AlertPatch carries the fields of a partial update. Nil fields are kept.
type AlertPatch struct {
	Email          *string          `json:"email"`
	ThresholdPrice *decimal.Decimal `json:"threshold_price"`
	CoinID         *string          `json:"coin_id"`
}

// AlertService implements the alert use cases. Every write goes through a
// single store transaction.
type AlertService struct {
	store models.Store
	cache PriceCache
}

// NewAlertService builds the alert use cases. cache may be nil.
func NewAlertService(store models.Store, cache PriceCache) *AlertService {
	return &AlertService{store: store, cache: cache}
}

// Create validates the input and derives the direction from the coin's
// current price.
func (s *AlertService) Create(ctx context.Context, in AlertInput) (*models.Alert, error) {
	email, err := validation.Email(in.Email)
	if err != nil {
		return nil, err
	}
	if in.ThresholdPrice == nil {
		return nil, validation.Required("threshold_price")
	}
	if err := validation.Threshold(*in.ThresholdPrice); err != nil {
		return nil, err
	}
	coinID, err := validation.ID("coin_id", in.CoinID)
	if err != nil {
		return nil, err
	}

	alert := &models.Alert{
		ID:             uuid.New(),
		CoinID:         coinID,
		ThresholdPrice: *in.ThresholdPrice,
		Email:          email,
	}
	err = s.store.WithTx(ctx, func(tx models.Tx) error {
		if _, err := tx.GetCoin(ctx, coinID); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return ErrCoinNotFound
			}
			return err
		}
		current, err := s.currentPrice(ctx, tx, coinID)
		if err != nil {
			return err
		}
		alert.Direction = validation.Direction(alert.ThresholdPrice, current)

		if err := tx.CreateAlert(ctx, alert); err != nil {
			switch {
			case errors.Is(err, models.ErrConflict):
				return ErrAlertExists
			case errors.Is(err, models.ErrNotFound):
				return ErrCoinNotFound
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return alert, nil
}

func (s *AlertService) List(ctx context.Context) ([]models.Alert, error) {
	var alerts []models.Alert
	err := s.store.WithReadTx(ctx, func(tx models.Tx) error {
		var err error
		alerts, err = tx.ListAlerts(ctx)
		return err
	})
	return alerts, err
}

func (s *AlertService) Get(ctx context.Context, rawID string) (*models.Alert, error) {
	id, err := validation.ID("alert_id", rawID)
	if err != nil {
		return nil, err
	}
	var alert *models.Alert
	err = s.store.WithReadTx(ctx, func(tx models.Tx) error {
		var err error
		alert, err = tx.GetAlert(ctx, id)
		return err
	})
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrAlertNotFound
	}
	return alert, err
}

// Update applies a partial update. The direction is derived again from the
// current price when the threshold or the coin changes.
func (s *AlertService) Update(ctx context.Context, rawID string, patch AlertPatch) (*models.Alert, error) {
	id, err := validation.ID("alert_id", rawID)
	if err != nil {
		return nil, err
	}

	var (
		email  string
		coinID uuid.UUID
	)
	if patch.Email != nil {
		if email, err = validation.Email(*patch.Email); err != nil {
			return nil, err
		}
	}
	if patch.ThresholdPrice != nil {
		if err := validation.Threshold(*patch.ThresholdPrice); err != nil {
			return nil, err
		}
	}
	if patch.CoinID != nil {
		if coinID, err = validation.ID("coin_id", *patch.CoinID); err != nil {
			return nil, err
		}
	}

	var updated *models.Alert
	err = s.store.WithTx(ctx, func(tx models.Tx) error {
		alert, err := tx.GetAlert(ctx, id)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return ErrAlertNotFound
			}
			return err
		}

		rederive := false
		if patch.Email != nil {
			alert.Email = email
		}
		if patch.ThresholdPrice != nil {
			alert.ThresholdPrice = *patch.ThresholdPrice
			rederive = true
		}
		if patch.CoinID != nil && coinID != alert.CoinID {
			if _, err := tx.GetCoin(ctx, coinID); err != nil {
				if errors.Is(err, models.ErrNotFound) {
					return &validation.Error{Field: "coin_id", Kind: validation.KindUnknownCoin, Message: "coin does not exist"}
				}
				return err
			}
			alert.CoinID = coinID
			rederive = true
		}

		if rederive {
			current, err := s.currentPrice(ctx, tx, alert.CoinID)
			if err != nil {
				return err
			}
			alert.Direction = validation.Direction(alert.ThresholdPrice, current)
		}

		if err := tx.UpdateAlert(ctx, alert); err != nil {
			switch {
			case errors.Is(err, models.ErrConflict):
				return ErrAlertExists
			case errors.Is(err, models.ErrNotFound):
				return ErrAlertNotFound
			}
			return err
		}
		updated = alert
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes an alert by id.
func (s *AlertService) Delete(ctx context.Context, rawID string) error {
	id, err := validation.ID("alert_id", rawID)
	if err != nil {
		return err
	}
	err = s.store.WithTx(ctx, func(tx models.Tx) error {
		return tx.DeleteAlert(ctx, id)
	})
	if errors.Is(err, models.ErrNotFound) {
		return ErrAlertNotFound
	}
	return err
}

func (s *AlertService) currentPrice(ctx context.Context, tx models.Tx, coinID uuid.UUID) (decimal.Decimal, error) {
	if s.cache != nil {
		if price, ok, err := s.cache.Latest(ctx, coinID); err == nil && ok {
			return price, nil
		}
	}
	price, err := tx.LatestPrice(ctx, coinID)
	if errors.Is(err, models.ErrNotFound) {
		return decimal.Zero, ErrNoCurrentPrice
	}
	return price, err
}

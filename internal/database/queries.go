package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"pricealerts/internal/models"
)

const (
	queryListCoins  = `SELECT id, name FROM coins ORDER BY name`
	queryGetCoin    = `SELECT id, name FROM coins WHERE id = $1`
	queryCoinByName = `SELECT id, name FROM coins WHERE name = $1`
	queryInsertCoin = `INSERT INTO coins (id, name) VALUES ($1, $2)`

	queryInsertSample = `INSERT INTO coins_prices (id, coin_id, price, timedate) VALUES ($1, $2, $3, $4)`
	queryLatestPrice  = `SELECT price FROM coins_prices WHERE coin_id = $1 ORDER BY timedate DESC LIMIT 1`
	queryListSamples  = `
		SELECT id, coin_id, price, timedate
		FROM coins_prices
		WHERE coin_id = $1 AND timedate >= $2 AND timedate <= $3
		ORDER BY timedate`

	alertColumns           = `id, coin_id, threshold_price, email, alert_type`
	queryListAlerts        = `SELECT ` + alertColumns + ` FROM alerts ORDER BY id`
	queryListAlertsByCoin  = `SELECT ` + alertColumns + ` FROM alerts WHERE coin_id = $1 ORDER BY id`
	queryGetAlert          = `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`
	queryInsertAlert       = `INSERT INTO alerts (` + alertColumns + `) VALUES ($1, $2, $3, $4, $5)`
	queryUpdateAlert       = `UPDATE alerts SET coin_id = $1, threshold_price = $2, email = $3, alert_type = $4 WHERE id = $5`
	queryDeleteAlert       = `DELETE FROM alerts WHERE id = $1`
	queryInsertFailedEmail = `
		INSERT INTO failed_notifications (id, alert_id, recipient, subject, body, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
)

type txn struct {
	tx  *sqlx.Tx
	now func() time.Time
}

func (t *txn) ListCoins(ctx context.Context) ([]models.Coin, error) {
	coins := []models.Coin{}
	if err := t.tx.SelectContext(ctx, &coins, queryListCoins); err != nil {
		return nil, fmt.Errorf("list coins: %w", err)
	}
	return coins, nil
}

func (t *txn) GetCoin(ctx context.Context, id uuid.UUID) (*models.Coin, error) {
	var coin models.Coin
	if err := t.tx.GetContext(ctx, &coin, queryGetCoin, id); err != nil {
		return nil, classify(err)
	}
	return &coin, nil
}

func (t *txn) GetCoinBySymbol(ctx context.Context, symbol string) (*models.Coin, error) {
	var coin models.Coin
	if err := t.tx.GetContext(ctx, &coin, queryCoinByName, symbol); err != nil {
		return nil, classify(err)
	}
	return &coin, nil
}

func (t *txn) CreateCoin(ctx context.Context, coin *models.Coin) error {
	if coin.ID == uuid.Nil {
		coin.ID = uuid.New()
	}
	if _, err := t.tx.ExecContext(ctx, queryInsertCoin, coin.ID, coin.Symbol); err != nil {
		return classify(err)
	}
	return nil
}

func (t *txn) InsertSample(ctx context.Context, coinID uuid.UUID, price decimal.Decimal) (*models.PriceSample, error) {
	sample := &models.PriceSample{
		ID:         uuid.New(),
		CoinID:     coinID,
		Price:      price,
		ObservedAt: t.now().UTC(),
	}
	if _, err := t.tx.ExecContext(ctx, queryInsertSample, sample.ID, sample.CoinID, sample.Price, sample.ObservedAt); err != nil {
		return nil, classify(err)
	}
	return sample, nil
}

func (t *txn) LatestPrice(ctx context.Context, coinID uuid.UUID) (decimal.Decimal, error) {
	var price decimal.Decimal
	if err := t.tx.GetContext(ctx, &price, queryLatestPrice, coinID); err != nil {
		return decimal.Zero, classify(err)
	}
	return price, nil
}

func (t *txn) ListSamples(ctx context.Context, coinID uuid.UUID, from, to time.Time) ([]models.PriceSample, error) {
	samples := []models.PriceSample{}
	if err := t.tx.SelectContext(ctx, &samples, queryListSamples, coinID, from.UTC(), to.UTC()); err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	return samples, nil
}

func (t *txn) ListAlerts(ctx context.Context) ([]models.Alert, error) {
	alerts := []models.Alert{}
	if err := t.tx.SelectContext(ctx, &alerts, queryListAlerts); err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return alerts, nil
}

func (t *txn) ListAlertsByCoin(ctx context.Context, coinID uuid.UUID) ([]models.Alert, error) {
	alerts := []models.Alert{}
	if err := t.tx.SelectContext(ctx, &alerts, queryListAlertsByCoin, coinID); err != nil {
		return nil, fmt.Errorf("list alerts for coin %s: %w", coinID, err)
	}
	return alerts, nil
}

func (t *txn) GetAlert(ctx context.Context, id uuid.UUID) (*models.Alert, error) {
	var alert models.Alert
	if err := t.tx.GetContext(ctx, &alert, queryGetAlert, id); err != nil {
		return nil, classify(err)
	}
	return &alert, nil
}

func (t *txn) CreateAlert(ctx context.Context, alert *models.Alert) error {
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	_, err := t.tx.ExecContext(ctx, queryInsertAlert,
		alert.ID,
		alert.CoinID,
		alert.ThresholdPrice,
		alert.Email,
		alert.Direction,
	)
	return classify(err)
}

func (t *txn) UpdateAlert(ctx context.Context, alert *models.Alert) error {
	result, err := t.tx.ExecContext(ctx, queryUpdateAlert,
		alert.CoinID,
		alert.ThresholdPrice,
		alert.Email,
		alert.Direction,
		alert.ID,
	)
	if err != nil {
		return classify(err)
	}
	return expectOne(result)
}

func (t *txn) DeleteAlert(ctx context.Context, id uuid.UUID) error {
	result, err := t.tx.ExecContext(ctx, queryDeleteAlert, id)
	if err != nil {
		return classify(err)
	}
	return expectOne(result)
}

func (t *txn) RecordFailedNotification(ctx context.Context, n *models.FailedNotification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = t.now().UTC()
	}
	_, err := t.tx.ExecContext(ctx, queryInsertFailedEmail,
		n.ID,
		n.AlertID,
		n.Recipient,
		n.Subject,
		n.Body,
		n.Reason,
		n.CreatedAt,
	)
	return classify(err)
}

func expectOne(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrNotFound
	}
	return nil
}

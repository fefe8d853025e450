package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS coins (
		id UUID PRIMARY KEY,
		name VARCHAR(50) NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS coins_prices (
		id UUID PRIMARY KEY,
		coin_id UUID NOT NULL REFERENCES coins(id) ON DELETE CASCADE,
		price NUMERIC NOT NULL CHECK (price > 0),
		timedate TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ix_coins_prices_timedate ON coins_prices (timedate)`,
	`CREATE INDEX IF NOT EXISTS ix_coins_prices_coin_id ON coins_prices (coin_id)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id UUID PRIMARY KEY,
		email VARCHAR(320) NOT NULL,
		coin_id UUID NOT NULL REFERENCES coins(id) ON DELETE CASCADE,
		alert_type VARCHAR(3) NOT NULL CHECK (alert_type IN ('inc', 'dec')),
		threshold_price NUMERIC NOT NULL CHECK (threshold_price >= 0),
		CONSTRAINT coin_alert_type UNIQUE (email, coin_id, alert_type, threshold_price)
	)`,
	`CREATE TABLE IF NOT EXISTS failed_notifications (
		id UUID PRIMARY KEY,
		alert_id UUID NOT NULL,
		recipient VARCHAR(320) NOT NULL,
		subject TEXT NOT NULL,
		body TEXT NOT NULL,
		reason TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate creates any missing tables and indexes. It is safe to run on
// every start.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Direction is the side from which an alert's threshold is expected to be crossed
type Direction string

const (
	// DirectionIncrease fires once the price rises to the threshold or above
	DirectionIncrease Direction = "inc"
	// DirectionDecrease fires once the price falls to the threshold or below
	DirectionDecrease Direction = "dec"
)

// Valid reports whether d is one of the known directions
func (d Direction) Valid() bool {
	return d == DirectionIncrease || d == DirectionDecrease
}

// Coin represents a tracked cryptocurrency
type Coin struct {
	ID     uuid.UUID `json:"id" db:"id"`
	Symbol string    `json:"name" db:"name"`
}

// PriceSample is one observed price of a coin
type PriceSample struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	CoinID     uuid.UUID       `json:"coin_id" db:"coin_id"`
	Price      decimal.Decimal `json:"price" db:"price"`
	ObservedAt time.Time       `json:"timedate" db:"timedate"`
}

// Alert represents a price alert for a cryptocurrency
type Alert struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	CoinID         uuid.UUID       `json:"coin_id" db:"coin_id"`
	ThresholdPrice decimal.Decimal `json:"threshold_price" db:"threshold_price"`
	Email          string          `json:"email" db:"email"`
	Direction      Direction       `json:"alert_type" db:"alert_type"`
}

// FailedNotification keeps a notification that could not be delivered
// after its alert was already resolved.
type FailedNotification struct {
	ID        uuid.UUID `db:"id"`
	AlertID   uuid.UUID `db:"alert_id"`
	Recipient string    `db:"recipient"`
	Subject   string    `db:"subject"`
	Body      string    `db:"body"`
	Reason    string    `db:"reason"`
	CreatedAt time.Time `db:"created_at"`
}

// PriceUpdate is published after a sample is committed
type PriceUpdate struct {
	CoinID    uuid.UUID       `json:"coin_id"`
	Exchange  string          `json:"exchange"`
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// AlertEvent is published after an alert fired and was removed
type AlertEvent struct {
	AlertID   uuid.UUID       `json:"alert_id"`
	Symbol    string          `json:"symbol"`
	Email     string          `json:"email"`
	Threshold decimal.Decimal `json:"threshold"`
	Price     decimal.Decimal `json:"price"`
	Triggered Direction       `json:"triggered"`
	Timestamp time.Time       `json:"timestamp"`
}

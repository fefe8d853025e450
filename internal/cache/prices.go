package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"pricealerts/internal/models"
)

const (
	latestPricePrefix = "price:latest:"
	// DefaultPriceTTL keeps a price usable for a while after polling stops.
	DefaultPriceTTL = 5 * time.Minute
)

// PriceCache keeps the most recent committed price of each coin.
type PriceCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPriceCache(client *redis.Client, ttl time.Duration) *PriceCache {
	if ttl <= 0 {
		ttl = DefaultPriceTTL
	}
	return &PriceCache{client: client, ttl: ttl}
}

func (p *PriceCache) SetLatest(ctx context.Context, update models.PriceUpdate) error {
	return p.client.Set(ctx, latestPricePrefix+update.CoinID.String(), update.Price.String(), p.ttl).Err()
}

// Latest returns the cached price. ok is false on a miss.
func (p *PriceCache) Latest(ctx context.Context, coinID uuid.UUID) (decimal.Decimal, bool, error) {
	raw, err := p.client.Get(ctx, latestPricePrefix+coinID.String()).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, err
	}
	return price, true, nil
}

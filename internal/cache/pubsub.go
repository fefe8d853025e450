package cache

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"pricealerts/internal/models"
)

// Channels carrying events between the poller and the streaming endpoints.
const (
	AlertsChannel = "price_alerts"
	PricesChannel = "price_updates"
)

// Publisher fans committed prices and fired alerts out over Redis. It also
// refreshes the latest price cache and drops cached alert listings.
type Publisher struct {
	client *redis.Client
	prices *PriceCache
	cache  *Cache
}

func NewPublisher(client *redis.Client, prices *PriceCache, cache *Cache) *Publisher {
	return &Publisher{client: client, prices: prices, cache: cache}
}

func (p *Publisher) PublishPrice(ctx context.Context, update models.PriceUpdate) error {
	if err := p.prices.SetLatest(ctx, update); err != nil {
		return fmt.Errorf("cache latest price: %w", err)
	}
	return p.publish(ctx, PricesChannel, update)
}

func (p *Publisher) PublishAlert(ctx context.Context, event models.AlertEvent) error {
	p.cache.InvalidateByPrefix(ctx, AlertsPrefix, "/alerts")
	return p.publish(ctx, AlertsChannel, event)
}

func (p *Publisher) publish(ctx context.Context, channel string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, channel, payload).Err()
}

// Subscriber is a confirmed subscription to one channel.
type Subscriber struct {
	pubsub  *redis.PubSub
	channel string
	logger  *zap.Logger
}

func Subscribe(ctx context.Context, client *redis.Client, channel string, logger *zap.Logger) (*Subscriber, error) {
	pubsub := client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	logger.Info("Subscribed to Redis channel", zap.String("channel", channel))
	return &Subscriber{pubsub: pubsub, channel: channel, logger: logger}, nil
}

func (s *Subscriber) ReceiveMessage(ctx context.Context) (*redis.Message, error) {
	return s.pubsub.ReceiveMessage(ctx)
}

// Relay hands every payload to handle until ctx is cancelled or the
// subscription is closed. go-redis keeps the connection alive with health
// checks and resubscribes after a reconnect.
func (s *Subscriber) Relay(ctx context.Context, handle func([]byte)) {
	msgs := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				s.logger.Info("Redis subscription closed", zap.String("channel", s.channel))
				return
			}
			handle([]byte(msg.Payload))
		}
	}
}

func (s *Subscriber) Close() error {
	return s.pubsub.Close()
}

// Package alerting runs the price update cycle: one quote per tracked coin,
// one committed sample, and one-shot delivery of every alert the new price
// satisfies.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"pricealerts/internal/exchange"
	"pricealerts/internal/metrics"
	"pricealerts/internal/models"
	"pricealerts/internal/notify"
	"pricealerts/internal/tracing"
)

// DefaultWorkers bounds the number of coins processed at once.
const DefaultWorkers = 8

const exchangeName = "okx"

const deadLetterTimeout = 5 * time.Second

// QuoteFetcher returns the latest quote of a symbol.
type QuoteFetcher interface {
	FetchQuote(ctx context.Context, symbol string) (*exchange.Quote, error)
}

// Publisher receives committed price samples and fired alerts. Publishing
// is best effort and never affects the tick.
type Publisher interface {
	PublishPrice(ctx context.Context, update models.PriceUpdate) error
	PublishAlert(ctx context.Context, event models.AlertEvent) error
}

type Option func(*Cycle)

func WithWorkers(n int) Option {
	return func(c *Cycle) {
		if n > 0 {
			c.workers = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cycle) { c.metrics = m }
}

func WithPublishers(p ...Publisher) Option {
	return func(c *Cycle) { c.publishers = append(c.publishers, p...) }
}

// Cycle is the per-tick price update job.
type Cycle struct {
	store      models.Store
	quotes     QuoteFetcher
	notifier   notify.Notifier
	publishers []Publisher
	workers    int
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

func NewCycle(store models.Store, quotes QuoteFetcher, notifier notify.Notifier, logger *zap.Logger, opts ...Option) *Cycle {
	c := &Cycle{
		store:    store,
		quotes:   quotes,
		notifier: notifier,
		workers:  DefaultWorkers,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type tickStats struct {
	recorded atomic.Int64
	skipped  atomic.Int64
	fired    atomic.Int64
}

// RunOnce performs one tick. Only a failure to list coins is returned;
// every per-coin failure is logged, counted and skipped.
func (c *Cycle) RunOnce(ctx context.Context) error {
	ctx, span := tracing.Tracer().Start(ctx, "PriceCycle.RunOnce")
	defer span.End()
	start := time.Now()

	var coins []models.Coin
	err := c.store.WithReadTx(ctx, func(tx models.Tx) error {
		var err error
		coins, err = tx.ListCoins(ctx)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list coins")
		c.metrics.Tick("error", time.Since(start).Seconds())
		return fmt.Errorf("list coins: %w", err)
	}
	span.SetAttributes(attribute.Int("coins", len(coins)))

	var (
		stats tickStats
		wg    sync.WaitGroup
		sem   = make(chan struct{}, c.workers)
	)

schedule:
	for i, coin := range coins {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			remaining := len(coins) - i
			stats.skipped.Add(int64(remaining))
			for j := 0; j < remaining; j++ {
				c.metrics.Skipped(metrics.ReasonDeadline)
			}
			c.logger.Warn("Tick deadline reached before all coins were scheduled",
				zap.Int("remaining", remaining),
				zap.Error(ctx.Err()),
			)
			break schedule
		}

		wg.Add(1)
		go func(coin models.Coin) {
			defer wg.Done()
			defer func() { <-sem }()
			c.processCoin(ctx, coin, &stats)
		}(coin)
	}
	wg.Wait()

	elapsed := time.Since(start)
	c.metrics.Tick("ok", elapsed.Seconds())
	c.logger.Debug("Price tick complete",
		zap.Int("coins", len(coins)),
		zap.Int64("recorded", stats.recorded.Load()),
		zap.Int64("skipped", stats.skipped.Load()),
		zap.Int64("fired", stats.fired.Load()),
		zap.Duration("duration", elapsed),
	)
	return nil
}

func (c *Cycle) processCoin(ctx context.Context, coin models.Coin, stats *tickStats) {
	ctx, span := tracing.Tracer().Start(ctx, "PriceCycle.processCoin")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", coin.Symbol))

	quote, err := c.quotes.FetchQuote(ctx, coin.Symbol)
	if err != nil {
		stats.skipped.Add(1)
		c.skipQuote(coin, err)
		return
	}

	var (
		sample *models.PriceSample
		fired  []models.Alert
	)
	err = c.store.WithTx(ctx, func(tx models.Tx) error {
		fired = fired[:0]

		s, err := tx.InsertSample(ctx, coin.ID, quote.Last)
		if err != nil {
			return fmt.Errorf("insert sample: %w", err)
		}
		alerts, err := tx.ListAlertsByCoin(ctx, coin.ID)
		if err != nil {
			return err
		}
		for _, alert := range alerts {
			if !Evaluate(alert, quote.Last) {
				continue
			}
			if err := tx.DeleteAlert(ctx, alert.ID); err != nil {
				if errors.Is(err, models.ErrNotFound) {
					// Removed through the API since it was read.
					continue
				}
				return fmt.Errorf("delete alert %s: %w", alert.ID, err)
			}
			fired = append(fired, alert)
		}
		sample = s
		return nil
	})
	if err != nil {
		stats.skipped.Add(1)
		span.RecordError(err)
		if errors.Is(err, models.ErrNotFound) {
			c.metrics.Skipped(metrics.ReasonCoinGone)
			c.logger.Info("Coin removed during tick, skipping", zap.String("symbol", coin.Symbol))
			return
		}
		c.metrics.Skipped(metrics.ReasonStore)
		span.SetStatus(codes.Error, "store")
		c.logger.Error("Failed to record price", zap.String("symbol", coin.Symbol), zap.Error(err))
		return
	}

	stats.recorded.Add(1)
	stats.fired.Add(int64(len(fired)))
	c.metrics.SampleRecorded()
	c.publishPrice(ctx, models.PriceUpdate{
		CoinID:    coin.ID,
		Exchange:  exchangeName,
		Symbol:    coin.Symbol,
		Price:     sample.Price,
		Timestamp: sample.ObservedAt,
	})

	for _, alert := range fired {
		c.metrics.AlertTriggered()
		c.deliver(ctx, coin, alert, sample)
	}
}

func (c *Cycle) skipQuote(coin models.Coin, err error) {
	switch {
	case errors.Is(err, exchange.ErrNoQuote):
		c.metrics.Skipped(metrics.ReasonNoQuote)
		c.logger.Info("No quote for coin, skipping", zap.String("symbol", coin.Symbol), zap.Error(err))
	case errors.Is(err, exchange.ErrMalformedQuote):
		c.metrics.Skipped(metrics.ReasonMalformed)
		c.logger.Warn("Malformed quote, skipping", zap.String("symbol", coin.Symbol), zap.Error(err))
	default:
		c.metrics.Skipped(metrics.ReasonTransport)
		c.logger.Warn("Quote request failed, skipping", zap.String("symbol", coin.Symbol), zap.Error(err))
	}
}

// deliver runs after the alert's deletion is committed. A failed send is
// kept as a dead letter and is not retried.
func (c *Cycle) deliver(ctx context.Context, coin models.Coin, alert models.Alert, sample *models.PriceSample) {
	subject, body := notify.AlertMessage(coin.Symbol, alert, sample.Price, sample.ObservedAt)

	if err := c.notifier.Send(ctx, subject, alert.Email, body); err != nil {
		c.metrics.NotificationFailed()
		c.logger.Error("Failed to send alert notification",
			zap.String("alert_id", alert.ID.String()),
			zap.String("symbol", coin.Symbol),
			zap.Error(err),
		)
		dead := &models.FailedNotification{
			AlertID:   alert.ID,
			Recipient: alert.Email,
			Subject:   subject,
			Body:      body,
			Reason:    err.Error(),
		}
		if err := c.recordDeadLetter(ctx, dead); err != nil {
			c.logger.Error("Failed to record undelivered notification",
				zap.String("alert_id", alert.ID.String()),
				zap.Error(err),
			)
		}
	} else {
		c.logger.Info("Alert triggered and notified",
			zap.String("alert_id", alert.ID.String()),
			zap.String("symbol", coin.Symbol),
			zap.String("price", sample.Price.String()),
		)
	}

	c.publishAlert(ctx, models.AlertEvent{
		AlertID:   alert.ID,
		Symbol:    coin.Symbol,
		Email:     alert.Email,
		Threshold: alert.ThresholdPrice,
		Price:     sample.Price,
		Triggered: alert.Direction,
		Timestamp: sample.ObservedAt,
	})
}

// recordDeadLetter is detached from the tick deadline, so a send cut short
// by an expired tick still leaves its message behind.
func (c *Cycle) recordDeadLetter(ctx context.Context, dead *models.FailedNotification) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deadLetterTimeout)
	defer cancel()
	return c.store.WithTx(ctx, func(tx models.Tx) error {
		return tx.RecordFailedNotification(ctx, dead)
	})
}

func (c *Cycle) publishPrice(ctx context.Context, update models.PriceUpdate) {
	for _, p := range c.publishers {
		if err := p.PublishPrice(ctx, update); err != nil {
			c.logger.Warn("Failed to publish price update", zap.String("symbol", update.Symbol), zap.Error(err))
		}
	}
}

func (c *Cycle) publishAlert(ctx context.Context, event models.AlertEvent) {
	for _, p := range c.publishers {
		if err := p.PublishAlert(ctx, event); err != nil {
			c.logger.Warn("Failed to publish alert event", zap.String("alert_id", event.AlertID.String()), zap.Error(err))
		}
	}
}

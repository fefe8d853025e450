// Package app wires the price alert service together and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"pricealerts/internal/alerting"
	"pricealerts/internal/cache"
	"pricealerts/internal/config"
	"pricealerts/internal/database"
	"pricealerts/internal/database/memory"
	"pricealerts/internal/events"
	"pricealerts/internal/exchange"
	"pricealerts/internal/handlers"
	"pricealerts/internal/logger"
	"pricealerts/internal/metrics"
	"pricealerts/internal/models"
	"pricealerts/internal/notify"
	"pricealerts/internal/scheduler"
	"pricealerts/internal/service"
	"pricealerts/internal/tracing"
)

const shutdownTimeout = 10 * time.Second

// App owns every long-lived component of the service.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	server    *http.Server
	scheduler *scheduler.Scheduler
	streams   *handlers.Streams
	store     models.Store
	redis     *redis.Client
	producer  *events.Producer
	tracerFn  tracing.ShutdownFunc

	subscribers []*cache.Subscriber
	relayCancel context.CancelFunc
	relays      sync.WaitGroup
}

// New builds the service from cfg. Nothing runs until Run.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	a := &App{cfg: cfg, logger: log}
	if err := a.build(ctx); err != nil {
		a.Shutdown()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.cfg

	tracerFn, err := tracing.InitTracer(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	a.tracerFn = tracerFn

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg, cfg.InstanceID)

	// Storage
	var pinger handlers.Pinger
	switch cfg.StoreDriver {
	case config.DriverMemory:
		a.store = memory.New()
		a.logger.Warn("Using the in-memory store, data is lost on restart")
	default:
		db, err := database.Open(ctx, cfg.PostgresDSN(), database.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
		})
		if err != nil {
			return err
		}
		if cfg.DBAutoMigrate {
			if err := database.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return fmt.Errorf("migrate: %w", err)
			}
		}
		store := database.NewStore(db, a.logger)
		a.store = store
		pinger = store
	}

	quotes := exchange.NewClient(cfg.OKXBaseURL, cfg.OKXInstSuffix, cfg.OKXTimeout, a.logger)

	var notifier notify.Notifier
	if cfg.SMTPEnabled() {
		notifier = notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, a.logger)
	} else {
		a.logger.Warn("SMTP_HOST not set, alert emails are only logged")
		notifier = notify.NewLogNotifier(a.logger)
	}

	// Streaming endpoints
	a.streams = &handlers.Streams{
		Alerts: handlers.NewAlertStream(0, a.logger),
		Prices: handlers.NewPriceStream(a.logger),
	}

	var (
		publishers []alerting.Publisher
		responses  *cache.Cache
		prices     service.PriceCache
		limiter    handlers.Limiter
	)
	// Redis cache, rate limit and fan-out across instances
	if cfg.RedisEnabled() {
		client, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		a.redis = client

		responses = cache.New(client, m, a.logger)
		priceCache := cache.NewPriceCache(client, cache.DefaultPriceTTL)
		prices = priceCache
		limiter = cache.NewRateLimiter(client, cfg.RateLimitPerMinute)
		publishers = append(publishers, cache.NewPublisher(client, priceCache, responses))

		if err := a.subscribe(ctx, client); err != nil {
			return err
		}
	} else {
		publishers = append(publishers, a.streams)
	}

	// Kafka event stream
	if cfg.KafkaEnabled() {
		producer, err := events.NewProducer(cfg.KafkaBrokers, cfg.InstanceID, cfg.KafkaPriceTopic, cfg.KafkaAlertTopic, a.logger)
		if err != nil {
			return err
		}
		a.producer = producer
		publishers = append(publishers, producer)
	}

	// Price cycle
	cycle := alerting.NewCycle(a.store, quotes, notifier, a.logger,
		alerting.WithWorkers(cfg.PollWorkers),
		alerting.WithMetrics(m),
		alerting.WithPublishers(publishers...),
	)
	a.scheduler = scheduler.New("price-cycle", cfg.PollInterval, cfg.PollTickTimeout, cycle.RunOnce, a.logger)

	router := handlers.NewRouter(handlers.Deps{
		Coins:    service.NewCoinService(a.store, quotes),
		Alerts:   service.NewAlertService(a.store, prices),
		Cache:    responses,
		Streams:  a.streams,
		Limiter:  limiter,
		DB:       pinger,
		Status:   a.scheduler.Status,
		Metrics:  m,
		Gatherer: reg,
		Logger:   a.logger,
	})
	a.server = &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// subscribe relays the shared Redis channels into this instance's streams.
func (a *App) subscribe(ctx context.Context, client *redis.Client) error {
	alerts, err := cache.Subscribe(ctx, client, cache.AlertsChannel, a.logger)
	if err != nil {
		return err
	}
	prices, err := cache.Subscribe(ctx, client, cache.PricesChannel, a.logger)
	if err != nil {
		_ = alerts.Close()
		return err
	}
	a.subscribers = []*cache.Subscriber{alerts, prices}

	relayCtx, cancel := context.WithCancel(context.Background())
	a.relayCancel = cancel
	a.relay(relayCtx, alerts, a.streams.Alerts.Broadcast)
	a.relay(relayCtx, prices, a.streams.Prices.Broadcast)
	return nil
}

func (a *App) relay(ctx context.Context, sub *cache.Subscriber, handle func([]byte)) {
	a.relays.Add(1)
	go func() {
		defer a.relays.Done()
		sub.Relay(ctx, handle)
	}()
}

// Run starts the price cycle and serves HTTP until ctx is cancelled or the
// listener fails.
func (a *App) Run(ctx context.Context) error {
	a.scheduler.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Price alert service starting", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Shutdown releases everything New acquired. It is safe on a partially
// built App.
func (a *App) Shutdown() {
	a.logger.Info("Price alert service shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.streams != nil {
		a.streams.Close()
	}
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Warn("HTTP server shutdown incomplete", zap.Error(err))
		}
	}
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.relayCancel != nil {
		a.relayCancel()
	}
	for _, sub := range a.subscribers {
		_ = sub.Close()
	}
	a.relays.Wait()
	if a.producer != nil {
		a.producer.Close()
	}
	if a.tracerFn != nil {
		if err := a.tracerFn(ctx); err != nil {
			a.logger.Warn("Failed to shutdown tracer", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("Failed to close redis", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("Failed to close store", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

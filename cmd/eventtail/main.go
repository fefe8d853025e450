// Command eventtail follows the price and alert topics and logs every event.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"pricealerts/internal/config"
	"pricealerts/internal/events"
	"pricealerts/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	if !cfg.KafkaEnabled() {
		fmt.Fprintln(os.Stderr, "KAFKA_BROKERS is required")
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	consumer, err := events.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.KafkaPriceTopic, cfg.KafkaAlertTopic, log)
	if err != nil {
		log.Error("Failed to start consumer", zap.Error(err))
		os.Exit(1)
	}
	defer consumer.Close()

	log.Info("Listening for events",
		zap.String("prices", cfg.KafkaPriceTopic),
		zap.String("alerts", cfg.KafkaAlertTopic),
	)
	_ = consumer.Run(ctx, func(e events.Event) {
		switch {
		case e.Price != nil:
			log.Info("Price update",
				zap.String("symbol", e.Price.Symbol),
				zap.String("price", e.Price.Price.String()),
				zap.Time("timestamp", e.Price.Timestamp),
			)
		case e.Alert != nil:
			log.Info("Alert triggered",
				zap.String("alert_id", e.Alert.AlertID.String()),
				zap.String("symbol", e.Alert.Symbol),
				zap.String("triggered", string(e.Alert.Triggered)),
				zap.String("threshold", e.Alert.Threshold.String()),
				zap.String("price", e.Alert.Price.String()),
			)
		}
	})
}

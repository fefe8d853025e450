// Command migrate applies the Postgres schema and exits.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"pricealerts/internal/config"
	"pricealerts/internal/database"
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
	if cfg.StoreDriver != config.DriverPostgres {
		fmt.Fprintln(os.Stderr, "migrate requires STORE_DRIVER=postgres")
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	db, err := database.Open(ctx, cfg.PostgresDSN(), database.PoolConfig{
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		log.Error("Database connection failed", zap.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		log.Error("Schema migration failed", zap.Error(err))
		os.Exit(1)
	}
	log.Info("Schema is up to date",
		zap.String("host", cfg.DBHost),
		zap.String("database", cfg.DBName),
	)
}

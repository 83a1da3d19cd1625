package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/RezaEskandarii/bulkmail/app"
	"github.com/RezaEskandarii/bulkmail/types/config"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	if cfg.Debug {
		if dev, err := zap.NewDevelopment(); err == nil {
			logger = dev
		}
	}
	if cfg.SMTPConfig.Host == "" {
		logger.Fatal("SMTP_HOST is required to deliver mail")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("worker stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.BulkMailConfig, logger *zap.Logger) error {
	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := container.Close(); err != nil {
			logger.Warn("failed to close container", zap.Error(err))
		}
	}()

	if _, err := container.Bootstrap(ctx); err != nil {
		return err
	}

	if err := container.NewMaintenanceScheduler().Start(ctx); err != nil {
		return err
	}

	logger.Info("bulkmail worker starting",
		zap.String("instance", cfg.Instance),
		zap.String("queue_driver", cfg.QueueDriver.String()),
		zap.Int("concurrency", cfg.WorkerConcurrency))
	return container.NewDeliveryWorker(container.EventPublisher()).Start(ctx)
}

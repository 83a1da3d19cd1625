package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RezaEskandarii/bulkmail/app"
	"github.com/RezaEskandarii/bulkmail/internal/broadcast"
	"github.com/RezaEskandarii/bulkmail/types/config"
	"github.com/RezaEskandarii/bulkmail/web"
	"go.uber.org/zap"
)

const heartbeatInterval = 30 * time.Second

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
	if cfg.JWTSecret == "" {
		logger.Fatal("JWT_SECRET is required to serve HTTP")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
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

	defaultTemplateID, err := container.Bootstrap(ctx)
	if err != nil {
		return err
	}

	hub := broadcast.NewHub(logger.Named("ws"))
	stopHeartbeat := make(chan struct{})
	go hub.Heartbeat(heartbeatInterval, stopHeartbeat)
	defer func() {
		close(stopHeartbeat)
		hub.CloseAll()
	}()

	// workers run in other processes and publish their status events to Redis
	if relay := container.EventRelay(hub); relay != nil {
		if err := relay.Start(ctx); err != nil {
			return err
		}
		defer relay.Stop()
	}

	server := web.NewServer(ctx, web.ServerConfig{
		Port:              cfg.HTTPPort,
		JWTSecret:         cfg.JWTSecret,
		CORSOrigins:       cfg.CORSOrigins,
		MaxUploadBytes:    cfg.MaxUploadBytes,
		DefaultTemplateID: defaultTemplateID,
	}, container.NewSubmitter(hub), container.DeliveryLogStore, container.UserStore, container.TemplateStore,
		hub, logger.Named("http"))

	logger.Info("bulkmail server starting",
		zap.String("instance", cfg.Instance),
		zap.String("queue_driver", cfg.QueueDriver.String()),
		zap.String("queue", cfg.QueueName))
	return server.Serve(ctx)
}

package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/RezaEskandarii/bulkmail/client"
	"github.com/RezaEskandarii/bulkmail/internal/broadcast"
	"github.com/RezaEskandarii/bulkmail/internal/constants"
	"github.com/RezaEskandarii/bulkmail/internal/db"
	"github.com/RezaEskandarii/bulkmail/internal/dispatch"
	"github.com/RezaEskandarii/bulkmail/internal/lock"
	"github.com/RezaEskandarii/bulkmail/internal/mailer"
	"github.com/RezaEskandarii/bulkmail/internal/message_broaker"
	"github.com/RezaEskandarii/bulkmail/internal/store"
	"github.com/RezaEskandarii/bulkmail/internal/store/postgres"
	"github.com/RezaEskandarii/bulkmail/types/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Container holds all application dependencies. It is the single source of truth
// for dependency injection and ensures connections and services are created once.
type Container struct {
	Config *config.BulkMailConfig
	Logger *zap.Logger

	// Storage connections (created once, shared by all stores)
	DB    *sql.DB
	Redis redis.UniversalClient

	DeliveryLogStore store.DeliveryLogStore
	UserStore        store.UserStore
	TemplateStore    store.TemplateStore

	LockManager   lock.DistributedLockManager
	MessageBroker message_broaker.MessageBroker
	Queue         *dispatch.Queue

	sender mailer.Sender
}

// NewContainer creates and wires all dependencies. Single entry point for DI.
// Call this once per process. Pass WithDB, WithRedis or WithMessageBroker to
// inject connections for testing.
func NewContainer(ctx context.Context, cfg *config.BulkMailConfig, logger *zap.Logger, opts ...ContainerOption) (*Container, error) {
	opt := &containerConfig{}
	for _, o := range opts {
		o(opt)
	}

	c := &Container{Config: cfg, Logger: logger, DB: opt.db, Redis: opt.redis, sender: opt.sender}

	var err error
	if c.DB == nil {
		if cfg.StorageDriver != config.Postgres {
			return nil, fmt.Errorf("unsupported storage driver: %v", cfg.StorageDriver)
		}
		if c.DB, err = db.Open(ctx, cfg.PostgresConfig.ConnectionUrl); err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
	}
	if c.Redis == nil && cfg.RedisConfig.Address != "" {
		if c.Redis, err = newRedisClient(ctx, cfg.RedisConfig); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("init redis: %w", err)
		}
	}

	c.DeliveryLogStore = postgres.NewPostgresDeliveryLogStore(c.DB)
	c.UserStore = postgres.NewPostgresUserStore(c.DB)
	c.TemplateStore = postgres.NewPostgresTemplateStore(c.DB)
	c.LockManager = lock.NewPostgresDistributedLockManager(c.DB)

	c.MessageBroker = opt.broker
	if c.MessageBroker == nil {
		if c.MessageBroker, err = c.createMessageBroker(); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("init %s broker: %w", cfg.QueueDriver, err)
		}
	}

	c.Queue = dispatch.NewQueue(c.MessageBroker, cfg.QueueName,
		dispatch.RetryPolicy{MaxAttempts: cfg.MaxAttempts, BaseDelay: cfg.RetryBaseDelay},
		logger.Named("queue"))

	return c, nil
}

func (c *Container) createMessageBroker() (message_broaker.MessageBroker, error) {
	switch c.Config.QueueDriver {
	case config.Redis:
		if c.Redis == nil {
			return nil, errors.New("redis address is required for the redis queue driver")
		}
		return message_broaker.NewRedisBroker(c.Redis, c.Config.Instance), nil
	case config.RabbitMQ:
		rc := c.Config.RabbitMQConfig
		broker, err := message_broaker.NewRabbitMQ(rc.URL, rc.Exchange, c.Config.QueueName, rc.RoutingKey, c.Config.WorkerConcurrency)
		if err != nil {
			return nil, err
		}
		return broker, nil
	default:
		return nil, fmt.Errorf("unsupported queue driver: %v", c.Config.QueueDriver)
	}
}

// Bootstrap applies the schema and returns the id of the template used when a
// submission names none, creating it if needed.
func (c *Container) Bootstrap(ctx context.Context) (int64, error) {
	if err := db.Init(ctx, c.DB, c.LockManager, c.Logger); err != nil {
		return 0, err
	}
	id, err := c.TemplateStore.EnsureDefault(ctx)
	if err != nil {
		return 0, fmt.Errorf("ensure default template: %w", err)
	}
	c.Logger.Info("default template ready", zap.Int64("template_id", id))
	return id, nil
}

// EventPublisher returns the broadcaster for processes without websocket
// clients. Events cross to the server over Redis when it is configured.
func (c *Container) EventPublisher() broadcast.Broadcaster {
	if c.Redis == nil {
		c.Logger.Warn("redis not configured, delivery events will not reach clients")
		return broadcast.Noop{}
	}
	return broadcast.NewRedisPublisher(c.Redis, constants.EventsChannel, c.Logger.Named("events"))
}

// EventRelay forwards events published by other processes to target. It
// returns nil when Redis is not configured.
func (c *Container) EventRelay(target broadcast.Broadcaster) *broadcast.RedisRelay {
	if c.Redis == nil {
		return nil
	}
	return broadcast.NewRedisRelay(c.Redis, constants.EventsChannel, target, c.Logger.Named("relay"))
}

func (c *Container) NewSubmitter(broadcaster broadcast.Broadcaster) *client.BulkEmailSubmitter {
	return client.NewBulkEmailSubmitter(
		c.DeliveryLogStore,
		c.UserStore,
		c.TemplateStore,
		c.Queue,
		broadcaster,
		c.Config.SubmitConcurrency,
		c.Logger.Named("submitter"),
	)
}

func (c *Container) NewDeliveryWorker(broadcaster broadcast.Broadcaster) *client.DeliveryWorker {
	return client.NewDeliveryWorker(
		c.Queue,
		c.DeliveryLogStore,
		c.MailSender(),
		broadcaster,
		c.Config.WorkerConcurrency,
		c.Config.SendTimeout,
		c.Logger.Named("worker"),
	)
}

func (c *Container) NewMaintenanceScheduler() *client.MaintenanceScheduler {
	return client.NewMaintenanceScheduler(
		c.DeliveryLogStore,
		c.LockManager,
		c.Config.LogRetentionDays,
		c.Config.LogRetentionCron,
		c.Logger.Named("maintenance"),
	)
}

// MailSender returns the injected sender or an SMTP sender built from config.
func (c *Container) MailSender() mailer.Sender {
	if c.sender == nil {
		sc := c.Config.SMTPConfig
		c.sender = mailer.NewSMTPSender(mailer.SMTPConfig{
			Host:        sc.Host,
			Port:        sc.Port,
			Username:    sc.Username,
			Password:    sc.Password,
			FromAddress: sc.FromAddress,
			FromName:    sc.FromName,
			ImplicitTLS: sc.ImplicitTLS,
		})
	}
	return c.sender
}

// Close releases the broker and every connection, returning all failures.
func (c *Container) Close() error {
	var errs []error
	if c.MessageBroker != nil {
		errs = append(errs, c.MessageBroker.Close())
	}
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	if c.DB != nil {
		errs = append(errs, c.DB.Close())
	}
	return errors.Join(errs...)
}

package app

import (
	"database/sql"

	"github.com/RezaEskandarii/bulkmail/internal/mailer"
	"github.com/RezaEskandarii/bulkmail/internal/message_broaker"
	"github.com/redis/go-redis/v9"
)

// ContainerOption configures Container creation. Used for testing and customization.
type ContainerOption func(*containerConfig)

type containerConfig struct {
	db     *sql.DB
	redis  redis.UniversalClient
	broker message_broaker.MessageBroker
	sender mailer.Sender
}

// WithDB injects a custom database connection. Useful for testing.
func WithDB(db *sql.DB) ContainerOption {
	return func(c *containerConfig) {
		c.db = db
	}
}

// WithRedis injects a custom Redis client. Useful for testing.
func WithRedis(redis redis.UniversalClient) ContainerOption {
	return func(c *containerConfig) {
		c.redis = redis
	}
}

// WithMessageBroker replaces the broker selected by the queue driver.
func WithMessageBroker(broker message_broaker.MessageBroker) ContainerOption {
	return func(c *containerConfig) {
		c.broker = broker
	}
}

// WithMailSender replaces the SMTP sender.
func WithMailSender(sender mailer.Sender) ContainerOption {
	return func(c *containerConfig) {
		c.sender = sender
	}
}

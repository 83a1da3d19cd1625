package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	errors2 "github.com/RezaEskandarii/bulkmail/custom_errors"
	"github.com/RezaEskandarii/bulkmail/internal/constants"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// LoadFromEnv builds a BulkMailConfig from environment variables. Variables
// found in envFiles (default ".env") are loaded first without overriding the
// ones already set in the process environment. A missing file is not an error.
func LoadFromEnv(envFiles ...string) (*BulkMailConfig, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	e := &envReader{errs: &errors2.ValidationError{}}

	instance := e.str("INSTANCE_NAME", "")
	if instance == "" {
		// a fresh name per start is fine: a stopped consumer's processing list
		// is reclaimed once its liveness key expires
		host, _ := os.Hostname()
		instance = fmt.Sprintf("%s-%s", strings.TrimSpace(host), uuid.NewString()[:8])
	}

	var opts []ConfigOption

	opts = append(opts, WithPostgresConfig(PostgresConfig{ConnectionUrl: e.str("DATABASE_URL", "")}))

	driverName := strings.ToLower(e.str("QUEUE_DRIVER", DefaultQueueDriver.String()))
	driver, ok := ParseQueueDriver(driverName)
	if !ok {
		e.errs.Add(fmt.Errorf("QUEUE_DRIVER: unsupported driver %q", driverName))
		driver = DefaultQueueDriver
	}
	opts = append(opts, WithQueue(driver, e.str("QUEUE_NAME", DefaultQueueName)))

	// Redis also carries broadcast events between processes, so it is wired
	// whenever an address is present regardless of the queue driver.
	if addr := e.str("REDIS_ADDR", ""); addr != "" || driver == Redis {
		opts = append(opts, WithRedisConfig(RedisConfig{
			Address:  addr,
			Username: e.str("REDIS_USER", ""),
			Password: e.str("REDIS_PASSWORD", ""),
			DB:       e.int("REDIS_DB", 0),
			UseTLS:   e.bool("REDIS_TLS", false),
		}))
	}
	if driver == RabbitMQ {
		opts = append(opts, WithRabbitMQConfig(RabbitMQConfig{
			URL:        e.str("RABBITMQ_URL", ""),
			Exchange:   e.str("RABBITMQ_EXCHANGE", "bulkmail"),
			RoutingKey: e.str("RABBITMQ_ROUTING_KEY", constants.SendEmailJob),
		}))
	}

	if host := e.str("SMTP_HOST", ""); host != "" {
		opts = append(opts, WithSMTPConfig(SMTPConfig{
			Host:        host,
			Port:        e.int("SMTP_PORT", 587),
			Username:    e.str("SMTP_USER", ""),
			Password:    e.str("SMTP_PASS", ""),
			FromAddress: e.str("SMTP_FROM", ""),
			FromName:    e.str("SMTP_FROM_NAME", "Bulk Email Processor"),
			ImplicitTLS: e.bool("SMTP_IMPLICIT_TLS", false),
		}))
	}

	opts = append(opts,
		WithSubmitConcurrency(e.int("EMAIL_CONCURRENCY", DefaultSubmitConcurrency)),
		WithWorkerConcurrency(e.int("WORKER_CONCURRENCY", DefaultWorkerConcurrency)),
		WithRetryPolicy(e.int("MAX_ATTEMPTS", DefaultMaxAttempts), e.duration("RETRY_BASE_DELAY", DefaultRetryBaseDelay)),
		WithSendTimeout(e.duration("SEND_TIMEOUT", DefaultSendTimeout)),
		WithLogRetention(e.int("LOG_RETENTION_DAYS", 0), e.str("LOG_RETENTION_CRON", DefaultLogRetentionCron)),
		WithDebug(e.bool("DEBUG", false)),
	)

	if secret := e.str("JWT_SECRET", ""); secret != "" {
		opts = append(opts, WithHTTPConfig(
			uint(e.int("HTTP_PORT", DefaultHTTPPort)),
			secret,
			e.list("CORS_ORIGIN", []string{"http://localhost:3000", "http://localhost:5173"}),
			int64(e.int("MAX_FILE_SIZE", DefaultMaxUploadBytes)),
		))
	}

	if e.errs.HasError() {
		return nil, e.errs
	}
	return NewBulkMailConfig(instance, opts...)
}

type envReader struct {
	errs *errors2.ValidationError
}

func (e *envReader) str(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func (e *envReader) int(key string, fallback int) int {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs.Add(fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func (e *envReader) bool(key string, fallback bool) bool {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs.Add(fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return b
}

func (e *envReader) duration(key string, fallback time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs.Add(fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func (e *envReader) list(key string, fallback []string) []string {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

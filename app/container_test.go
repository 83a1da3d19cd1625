package app

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/RezaEskandarii/bulkmail/internal/broadcast"
	"github.com/RezaEskandarii/bulkmail/internal/message_broaker"
	"github.com/RezaEskandarii/bulkmail/types/config"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubBroker struct {
	closed bool
}

func (s *stubBroker) Publish(context.Context, string, []byte) error { return nil }
func (s *stubBroker) Consume(context.Context, string) (<-chan message_broaker.Delivery, error) {
	return nil, errors.New("not implemented")
}
func (s *stubBroker) Close() error {
	s.closed = true
	return nil
}

func newTestConfig(t *testing.T, opts ...config.ConfigOption) *config.BulkMailConfig {
	t.Helper()
	base := []config.ConfigOption{
		config.WithPostgresConfig(config.PostgresConfig{ConnectionUrl: "postgres://localhost/bulkmail"}),
	}
	cfg, err := config.NewBulkMailConfig("test-instance", append(base, opts...)...)
	require.NoError(t, err)
	return cfg
}

func TestNewContainer_RedisDriver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := newTestConfig(t, config.WithQueue(config.Redis, "mailQueue"))
	c, err := NewContainer(context.Background(), cfg, zap.NewNop(), WithDB(db), WithRedis(rdb))
	require.NoError(t, err)

	assert.IsType(t, &message_broaker.RedisBroker{}, c.MessageBroker)
	assert.Equal(t, "mailQueue", c.Queue.Name())
	assert.NotNil(t, c.DeliveryLogStore)
	assert.NotNil(t, c.UserStore)
	assert.NotNil(t, c.TemplateStore)
	assert.IsType(t, &broadcast.RedisPublisher{}, c.EventPublisher())
	assert.NotNil(t, c.EventRelay(broadcast.Noop{}))

	mock.ExpectClose()
	require.NoError(t, c.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewContainer_RedisDriverWithoutRedis(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	cfg := newTestConfig(t, config.WithQueue(config.Redis, "mailQueue"))
	_, err = NewContainer(context.Background(), cfg, zap.NewNop(), WithDB(db))
	assert.ErrorContains(t, err, "redis address is required")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewContainer_InjectedBroker(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	broker := &stubBroker{}

	cfg := newTestConfig(t, config.WithQueue(config.RabbitMQ, "emailQueue"))
	c, err := NewContainer(context.Background(), cfg, zap.NewNop(), WithDB(db), WithMessageBroker(broker))
	require.NoError(t, err)

	assert.Same(t, broker, c.MessageBroker)
	assert.Equal(t, broadcast.Noop{}, c.EventPublisher())
	assert.Nil(t, c.EventRelay(broadcast.Noop{}))
	assert.NotNil(t, c.NewSubmitter(broadcast.Noop{}))
	assert.NotNil(t, c.NewDeliveryWorker(broadcast.Noop{}))
	assert.NotNil(t, c.NewMaintenanceScheduler())
	assert.NotNil(t, c.MailSender())

	mock.ExpectClose()
	require.NoError(t, c.Close())
	assert.True(t, broker.closed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContainer_Bootstrap(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := newTestConfig(t)
	c, err := NewContainer(context.Background(), cfg, zap.NewNop(), WithDB(db), WithMessageBroker(&stubBroker{}))
	require.NoError(t, err)

	mock.ExpectExec("pg_advisory_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	for i := 0; i < 3; i++ {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec("pg_advisory_unlock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("email_templates").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(4))

	id, err := c.Bootstrap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

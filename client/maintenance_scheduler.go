package client

import (
	"context"
	"fmt"
	"time"

	"github.com/RezaEskandarii/bulkmail/internal/constants"
	"github.com/RezaEskandarii/bulkmail/internal/lock"
	"github.com/RezaEskandarii/bulkmail/internal/store"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// MaintenanceScheduler purges old delivery logs on a cron schedule. Every
// instance runs the schedule; the purge lock lets one of them do the work.
type MaintenanceScheduler struct {
	logs          store.DeliveryLogStore
	lock          lock.DistributedLockManager
	retentionDays int
	spec          string
	logger        *zap.Logger
	now           func() time.Time
}

func NewMaintenanceScheduler(logs store.DeliveryLogStore, lock lock.DistributedLockManager, retentionDays int, spec string, logger *zap.Logger) *MaintenanceScheduler {
	return &MaintenanceScheduler{
		logs:          logs,
		lock:          lock,
		retentionDays: retentionDays,
		spec:          spec,
		logger:        logger,
		now:           time.Now,
	}
}

// Start schedules the purge and returns immediately. The schedule stops when
// ctx ends. A retention of zero days disables it.
func (m *MaintenanceScheduler) Start(ctx context.Context) error {
	if m.retentionDays <= 0 {
		m.logger.Info("log retention disabled")
		return nil
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser))
	if _, err := c.AddFunc(m.spec, func() {
		if _, err := m.PurgeOnce(ctx); err != nil {
			m.logger.Error("log purge failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", m.spec, err)
	}
	c.Start()
	m.logger.Info("log retention scheduled", zap.String("schedule", m.spec), zap.Int("days", m.retentionDays))

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}

// PurgeOnce deletes logs older than the retention window unless another
// instance is already purging.
func (m *MaintenanceScheduler) PurgeOnce(ctx context.Context) (int64, error) {
	acquired, err := m.lock.TryAcquire(ctx, constants.PurgeLock)
	if err != nil {
		return 0, err
	}
	if !acquired {
		m.logger.Debug("purge already running elsewhere")
		return 0, nil
	}
	defer func() {
		if err := m.lock.Release(context.Background(), constants.PurgeLock); err != nil {
			m.logger.Warn("failed to release purge lock", zap.Error(err))
		}
	}()

	cutoff := m.now().AddDate(0, 0, -m.retentionDays)
	deleted, err := m.logs.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	m.logger.Info("purged delivery logs", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
	return deleted, nil
}

package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/RezaEskandarii/bulkmail/custom_errors"
	"github.com/RezaEskandarii/bulkmail/internal/broadcast"
	"github.com/RezaEskandarii/bulkmail/internal/constants"
	"github.com/RezaEskandarii/bulkmail/internal/dispatch"
	"github.com/RezaEskandarii/bulkmail/internal/mailer"
	"github.com/RezaEskandarii/bulkmail/internal/state"
	"github.com/RezaEskandarii/bulkmail/internal/store"
	"github.com/RezaEskandarii/bulkmail/types"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const statusUpdateTimeout = 10 * time.Second

// DeliveryWorker consumes dispatch jobs and sends one message per job with a
// bounded number of sends in flight.
type DeliveryWorker struct {
	queue       *dispatch.Queue
	logs        store.DeliveryLogStore
	sender      mailer.Sender
	broadcaster broadcast.Broadcaster
	concurrency int64
	sendTimeout time.Duration
	logger      *zap.Logger
}

func NewDeliveryWorker(
	queue *dispatch.Queue,
	logs store.DeliveryLogStore,
	sender mailer.Sender,
	broadcaster broadcast.Broadcaster,
	concurrency int,
	sendTimeout time.Duration,
	logger *zap.Logger,
) *DeliveryWorker {
	if concurrency < 1 {
		concurrency = 1
	}
	if broadcaster == nil {
		broadcaster = broadcast.Noop{}
	}
	return &DeliveryWorker{
		queue:       queue,
		logs:        logs,
		sender:      sender,
		broadcaster: broadcaster,
		concurrency: int64(concurrency),
		sendTimeout: sendTimeout,
		logger:      logger,
	}
}

// Start consumes until ctx ends or the queue closes. Jobs already started run
// to completion before Start returns.
func (w *DeliveryWorker) Start(ctx context.Context) error {
	jobs, err := w.queue.Consume(ctx)
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", w.queue.Name(), err)
	}
	w.logger.Info("delivery worker started",
		zap.String("queue", w.queue.Name()), zap.Int64("concurrency", w.concurrency))

	sem := semaphore.NewWeighted(w.concurrency)
	var wg sync.WaitGroup

loop:
	for {
		// take a slot before taking a job so no job waits unstarted in memory
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		select {
		case job, ok := <-jobs:
			if !ok {
				sem.Release(1)
				break loop
			}
			wg.Add(1)
			go w.handleJob(ctx, sem, &wg, job)
		case <-ctx.Done():
			sem.Release(1)
			break loop
		}
	}

	wg.Wait()
	w.queue.Wait()
	w.logger.Info("delivery worker stopped")
	return nil
}

func (w *DeliveryWorker) handleJob(ctx context.Context, sem *semaphore.Weighted, wg *sync.WaitGroup, job *dispatch.Job) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("panic in delivery job",
				zap.Int64("log_id", job.Payload.LogID), zap.Any("panic", r))
			job.Fail(ctx, fmt.Errorf("panic: %v", r))
		}
		sem.Release(1)
		wg.Done()
	}()

	if err := w.Process(ctx, job.Payload, job.Attempts); err != nil {
		job.Fail(ctx, err)
		return
	}
	if err := job.Complete(); err != nil {
		w.logger.Warn("failed to ack delivered job", zap.Int64("log_id", job.Payload.LogID), zap.Error(err))
	}
}

// Process sends one message and records the outcome on its log. A send
// failure is returned so the queue can retry; log and broadcast failures are
// only logged.
func (w *DeliveryWorker) Process(ctx context.Context, job types.DispatchJob, attempt int) error {
	// shutdown must not cut an in-flight send short
	ctx = context.WithoutCancel(ctx)
	logger := w.logger.With(
		zap.Int64("log_id", job.LogID),
		zap.Int64("user_id", job.UserID),
		zap.String("recipient", job.Recipient),
		zap.Int("attempt", attempt))

	phase := state.PhaseReceived
	phase = w.advance(logger, phase, state.PhaseSending)

	sendCtx, cancel := context.WithTimeout(ctx, w.sendTimeout)
	sendErr := w.sender.SendMail(sendCtx, job.Recipient, job.Subject, job.Body)
	cancel()

	event := types.StatusEvent{LogID: job.LogID, Email: job.Recipient}
	var errMsg *string
	if sendErr != nil {
		phase = w.advance(logger, phase, state.PhaseFailed)
		msg := sendErr.Error()
		errMsg = &msg
		event.Error = msg
		logger.Warn("delivery failed", zap.Error(sendErr))
	} else {
		phase = w.advance(logger, phase, state.PhaseSent)
		logger.Info("delivery sent")
	}
	event.Status = phase.Status().String()

	updateCtx, cancelUpdate := context.WithTimeout(ctx, statusUpdateTimeout)
	if _, err := w.logs.UpdateStatus(updateCtx, job.LogID, phase.Status(), errMsg); err != nil {
		logger.Error("failed to update delivery log", zap.Error(err))
	}
	cancelUpdate()

	w.broadcaster.TryEmit(job.UserID, constants.EventEmailStatusUpdate, event)

	if sendErr != nil {
		return &custom_errors.DeliveryError{LogID: job.LogID, Err: sendErr}
	}
	return nil
}

func (w *DeliveryWorker) advance(logger *zap.Logger, from, to state.JobPhase) state.JobPhase {
	if !state.IsValidTransition(from, to) {
		logger.Warn("unexpected job phase transition", zap.String("from", from.String()), zap.String("to", to.String()))
	}
	return to
}

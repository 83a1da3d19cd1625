package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/RezaEskandarii/bulkmail/custom_errors"
	"github.com/RezaEskandarii/bulkmail/internal/broadcast"
	"github.com/RezaEskandarii/bulkmail/internal/constants"
	"github.com/RezaEskandarii/bulkmail/internal/dispatch"
	"github.com/RezaEskandarii/bulkmail/internal/recipients"
	"github.com/RezaEskandarii/bulkmail/internal/store"
	"github.com/RezaEskandarii/bulkmail/types"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// BulkEmailSubmitter turns one batch request into per-recipient delivery logs
// and dispatch jobs. It waits for every recipient to be queued, never for
// delivery.
type BulkEmailSubmitter struct {
	logs        store.DeliveryLogStore
	users       store.UserStore
	templates   store.TemplateStore
	queue       dispatch.Enqueuer
	broadcaster broadcast.Broadcaster
	concurrency int64
	logger      *zap.Logger
}

func NewBulkEmailSubmitter(
	logs store.DeliveryLogStore,
	users store.UserStore,
	templates store.TemplateStore,
	queue dispatch.Enqueuer,
	broadcaster broadcast.Broadcaster,
	concurrency int,
	logger *zap.Logger,
) *BulkEmailSubmitter {
	if concurrency < 1 {
		concurrency = 1
	}
	if broadcaster == nil {
		broadcaster = broadcast.Noop{}
	}
	return &BulkEmailSubmitter{
		logs:        logs,
		users:       users,
		templates:   templates,
		queue:       queue,
		broadcaster: broadcaster,
		concurrency: int64(concurrency),
		logger:      logger,
	}
}

// SubmitBatch validates the batch, then creates a log and enqueues a job for
// every valid recipient with at most the configured number of recipients in
// flight. Failures of single recipients are counted, not returned.
//
// ctx only gates admission of new recipients; recipients already admitted
// finish even if ctx ends, and the ones never admitted count as failed.
func (s *BulkEmailSubmitter) SubmitBatch(ctx context.Context, req types.BatchRequest) (*types.BatchResult, error) {
	if len(req.Recipients) == 0 {
		return nil, custom_errors.ErrNoRecipients
	}

	subject, body, err := s.resolveContent(ctx, req)
	if err != nil {
		return nil, err
	}

	partition := recipients.Validate(req.Recipients)
	if len(partition.Valid) == 0 {
		return nil, custom_errors.ErrNoValidRecipients
	}

	total := len(partition.Valid)
	var (
		processed  atomic.Int64
		successful atomic.Int64
		failed     atomic.Int64
		wg         sync.WaitGroup
	)
	progress := func() {
		n := processed.Add(1)
		s.broadcaster.TryEmit(req.UserID, constants.EventBulkEmailProgress, types.ProgressEvent{
			Processed: int(n),
			Total:     total,
			UserID:    req.UserID,
		})
	}

	sem := semaphore.NewWeighted(s.concurrency)
	unitCtx := context.WithoutCancel(ctx)

	for i, recipient := range partition.Valid {
		if err := sem.Acquire(ctx, 1); err != nil {
			s.logger.Warn("batch admission stopped",
				zap.Int64("user_id", req.UserID),
				zap.Int("not_admitted", total-i),
				zap.Error(err))
			for range partition.Valid[i:] {
				failed.Add(1)
				progress()
			}
			break
		}
		wg.Add(1)

		go func(recipient string) {
			ok := false
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("panic while queueing recipient",
						zap.Int64("user_id", req.UserID), zap.String("recipient", recipient), zap.Any("panic", r))
				}
				if ok {
					successful.Add(1)
				} else {
					failed.Add(1)
				}
				// the slot is free before any session is written to
				sem.Release(1)
				progress()
				wg.Done()
			}()
			ok = s.submitOne(unitCtx, req, recipient, subject, body)
		}(recipient)
	}
	wg.Wait()

	result := &types.BatchResult{
		Total:         len(req.Recipients),
		Valid:         total,
		InvalidEmails: partition.Invalid,
		Successful:    int(successful.Load()),
		Failed:        int(failed.Load()),
	}
	s.logger.Info("batch queued",
		zap.Int64("user_id", req.UserID),
		zap.Int("total", result.Total),
		zap.Int("valid", result.Valid),
		zap.Int("successful", result.Successful),
		zap.Int("failed", result.Failed))
	return result, nil
}

func (s *BulkEmailSubmitter) submitOne(ctx context.Context, req types.BatchRequest, recipient, subject, body string) bool {
	deliveryLog, err := s.logs.CreateLog(ctx, req.UserID, recipient, req.TemplateID)
	if err != nil {
		s.logger.Error("failed to create delivery log",
			zap.Int64("user_id", req.UserID), zap.String("recipient", recipient), zap.Error(err))
		return false
	}

	err = s.queue.Enqueue(ctx, types.DispatchJob{
		LogID:     deliveryLog.ID,
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
		UserID:    req.UserID,
	})
	if err != nil {
		s.logger.Error("failed to enqueue delivery",
			zap.Int64("user_id", req.UserID), zap.Int64("log_id", deliveryLog.ID),
			zap.String("recipient", recipient), zap.Error(err))
		return false
	}
	return true
}

// resolveContent checks both references once per batch and fills an empty
// subject or body from the template.
func (s *BulkEmailSubmitter) resolveContent(ctx context.Context, req types.BatchRequest) (string, string, error) {
	ok, err := s.users.Exists(ctx, req.UserID)
	if err != nil {
		return "", "", fmt.Errorf("failed to look up user %d: %w", req.UserID, err)
	}
	if !ok {
		return "", "", &custom_errors.InvalidReferenceError{Entity: "user", ID: req.UserID}
	}

	tpl, err := s.templates.FindByID(ctx, req.TemplateID)
	if err != nil {
		return "", "", fmt.Errorf("failed to look up template %d: %w", req.TemplateID, err)
	}
	if tpl == nil {
		return "", "", &custom_errors.InvalidReferenceError{Entity: "template", ID: req.TemplateID}
	}

	subject, body := req.Subject, req.Body
	if subject == "" {
		subject = tpl.Subject
	}
	if body == "" {
		body = tpl.Body
	}
	return subject, body, nil
}

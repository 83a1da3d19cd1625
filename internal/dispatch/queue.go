package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/RezaEskandarii/bulkmail/internal/message_broaker"
	"github.com/RezaEskandarii/bulkmail/types"
	"go.uber.org/zap"
)

const republishTimeout = 10 * time.Second

// Enqueuer is the producer side of the queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job types.DispatchJob) error
}

// Queue carries dispatch jobs over a message broker and owns the retry policy.
type Queue struct {
	broker message_broaker.MessageBroker
	name   string
	policy RetryPolicy
	logger *zap.Logger

	retries sync.WaitGroup
}

func NewQueue(broker message_broaker.MessageBroker, name string, policy RetryPolicy, logger *zap.Logger) *Queue {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = DefaultRetryPolicy().MaxAttempts
	}
	return &Queue{
		broker: broker,
		name:   name,
		policy: policy,
		logger: logger,
	}
}

func (q *Queue) Name() string {
	return q.name
}

// Enqueue returns once the broker has accepted the job.
func (q *Queue) Enqueue(ctx context.Context, job types.DispatchJob) error {
	return q.publish(ctx, newEnvelope(job, q.policy.MaxAttempts))
}

func (q *Queue) publish(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	if err := q.broker.Publish(ctx, q.name, body); err != nil {
		return fmt.Errorf("failed to enqueue job for log %d: %w", env.Payload.LogID, err)
	}
	return nil
}

// Consume streams decoded jobs until ctx ends. Undecodable messages are
// logged and dropped.
func (q *Queue) Consume(ctx context.Context) (<-chan *Job, error) {
	deliveries, err := q.broker.Consume(ctx, q.name)
	if err != nil {
		return nil, err
	}

	out := make(chan *Job)
	go func() {
		defer close(out)
		for d := range deliveries {
			env, err := decodeEnvelope(d.Body)
			if err != nil {
				q.logger.Error("dropping undecodable message", zap.String("queue", q.name), zap.Error(err))
				_ = d.Nack(false)
				continue
			}
			select {
			case out <- &Job{Envelope: env, delivery: d, queue: q}:
			case <-ctx.Done():
				_ = d.Nack(true)
				return
			}
		}
	}()
	return out, nil
}

// Wait blocks until every pending retry has been republished or handed back
// to the broker.
func (q *Queue) Wait() {
	q.retries.Wait()
}

// retry republishes the job for its next attempt. Brokers that can delay a
// message take it right away and the delivery is acked, so a backing-off job
// holds no prefetch slot. Otherwise the delivery is held until the backoff ends.
func (q *Queue) retry(ctx context.Context, job *Job) {
	delay := q.policy.Backoff(job.Attempts)
	if delayed, ok := q.broker.(message_broaker.DelayedPublisher); ok {
		q.retryDelayed(ctx, delayed, job, delay)
		return
	}

	q.retries.Add(1)
	go func() {
		defer q.retries.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			// redelivered later with the same attempt count
			_ = job.delivery.Nack(true)
			return
		}

		pubCtx, cancel := context.WithTimeout(context.Background(), republishTimeout)
		defer cancel()

		next := job.next()
		if err := q.publish(pubCtx, next); err != nil {
			q.logger.Error("failed to republish job", zap.String("job_id", job.ID), zap.Error(err))
			_ = job.delivery.Nack(true)
			return
		}
		if err := job.delivery.Ack(); err != nil {
			q.logger.Warn("failed to ack retried job", zap.String("job_id", job.ID), zap.Error(err))
		}
		q.logger.Info("job scheduled for retry",
			zap.String("job_id", job.ID),
			zap.Int64("log_id", job.Payload.LogID),
			zap.Int("attempt", next.Attempts),
			zap.Duration("backoff", delay))
	}()
}

func (q *Queue) retryDelayed(ctx context.Context, broker message_broaker.DelayedPublisher, job *Job, delay time.Duration) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), republishTimeout)
	defer cancel()

	next := job.next()
	body, err := json.Marshal(next)
	if err == nil {
		err = broker.PublishDelayed(pubCtx, q.name, body, delay)
	}
	if err != nil {
		q.logger.Error("failed to schedule job retry", zap.String("job_id", job.ID), zap.Error(err))
		_ = job.delivery.Nack(true)
		return
	}
	if err := job.delivery.Ack(); err != nil {
		q.logger.Warn("failed to ack retried job", zap.String("job_id", job.ID), zap.Error(err))
	}
	q.logger.Info("job scheduled for retry",
		zap.String("job_id", job.ID),
		zap.Int64("log_id", job.Payload.LogID),
		zap.Int("attempt", next.Attempts),
		zap.Duration("backoff", delay))
}

// Job is one delivery of a dispatch envelope.
type Job struct {
	Envelope
	delivery message_broaker.Delivery
	queue    *Queue
}

// Complete acknowledges a successfully handled job.
func (j *Job) Complete() error {
	return j.delivery.Ack()
}

// Fail hands a failed job to the retry policy. The job is republished after
// its backoff while attempts remain; otherwise it is logged and dropped.
func (j *Job) Fail(ctx context.Context, cause error) {
	if j.Exhausted() {
		j.queue.logger.Error("job exhausted its attempts",
			zap.String("job_id", j.ID),
			zap.Int64("log_id", j.Payload.LogID),
			zap.Int("attempt", j.Attempts),
			zap.Error(cause))
		if err := j.delivery.Ack(); err != nil {
			j.queue.logger.Warn("failed to ack exhausted job", zap.String("job_id", j.ID), zap.Error(err))
		}
		return
	}
	j.queue.retry(ctx, j)
}

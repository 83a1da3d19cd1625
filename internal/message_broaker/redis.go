package message_broaker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	blockTimeout = time.Second

	// consumerTTL is how long a consumer stays alive without a heartbeat.
	// Processing lists of consumers past it are handed back to the queue.
	consumerTTL = 15 * time.Second

	promoteBatch = 100
)

// promoteScript moves delayed messages whose time has come onto the queue.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, member in ipairs(due) do
	redis.call('ZREM', KEYS[1], member)
	redis.call('LPUSH', KEYS[2], member)
end
return #due
`)

// RedisBroker is a reliable list queue. Producers LPUSH; each consumer moves
// messages into its own processing list and removes them on ack. A consumer
// keeps a liveness key while it runs, and the processing list of one whose key
// has expired is moved back to the queue by whichever consumer notices first.
type RedisBroker struct {
	client   redis.UniversalClient
	instance string

	mu     sync.Mutex
	closed bool
}

func NewRedisBroker(client redis.UniversalClient, instance string) *RedisBroker {
	return &RedisBroker{client: client, instance: instance}
}

func processingPrefix(queue string) string {
	return queue + ":processing:"
}

func (r *RedisBroker) processingList(queue string) string {
	return processingPrefix(queue) + r.instance
}

func livenessKey(queue, instance string) string {
	return fmt.Sprintf("%s:consumer:%s", queue, instance)
}

func delayedSet(queue string) string {
	return queue + ":delayed"
}

func (r *RedisBroker) Publish(ctx context.Context, queue string, message []byte) error {
	if r.isClosed() {
		return ErrBrokerClosed
	}
	return r.client.LPush(ctx, queue, message).Err()
}

// PublishDelayed parks the message in a sorted set scored by its due time.
// Consumers of the queue move it over once it is due.
func (r *RedisBroker) PublishDelayed(ctx context.Context, queue string, message []byte, delay time.Duration) error {
	if delay <= 0 {
		return r.Publish(ctx, queue, message)
	}
	if r.isClosed() {
		return ErrBrokerClosed
	}
	due := time.Now().Add(delay).UnixMilli()
	return r.client.ZAdd(ctx, delayedSet(queue), redis.Z{Score: float64(due), Member: message}).Err()
}

func (r *RedisBroker) Consume(ctx context.Context, queue string) (<-chan Delivery, error) {
	if r.isClosed() {
		return nil, ErrBrokerClosed
	}
	if err := r.heartbeat(ctx, queue); err != nil {
		return nil, fmt.Errorf("failed to register consumer %s: %w", r.instance, err)
	}
	if _, err := r.Recover(ctx, queue); err != nil {
		return nil, err
	}

	processing := r.processingList(queue)
	out := make(chan Delivery)
	stop := make(chan struct{})
	var beats sync.WaitGroup
	beats.Add(1)
	go func() {
		defer beats.Done()
		r.keepAlive(ctx, queue, stop)
	}()

	go func() {
		defer close(out)
		defer func() {
			close(stop)
			beats.Wait()
		}()

		for ctx.Err() == nil && !r.isClosed() {
			// errors here resurface on BLMove below
			_ = r.promoteDue(ctx, queue)

			body, err := r.client.BLMove(ctx, queue, processing, "RIGHT", "LEFT", blockTimeout).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) || ctx.Err() != nil {
					continue
				}
				// connection trouble, back off briefly before polling again
				select {
				case <-time.After(blockTimeout):
				case <-ctx.Done():
				}
				continue
			}

			select {
			case out <- r.delivery(queue, processing, body):
			case <-ctx.Done():
				// still sits in the processing list and is recovered later
				return
			}
		}
	}()

	return out, nil
}

// Recover moves messages left in this instance's processing list, and in the
// lists of consumers that stopped heartbeating, back to the head of the queue.
// It reports how many were moved.
func (r *RedisBroker) Recover(ctx context.Context, queue string) (int, error) {
	moved, err := r.drain(ctx, r.processingList(queue), queue)
	if err != nil {
		return moved, err
	}
	orphaned, err := r.reclaimOrphans(ctx, queue)
	return moved + orphaned, err
}

func (r *RedisBroker) reclaimOrphans(ctx context.Context, queue string) (int, error) {
	prefix := processingPrefix(queue)
	moved := 0

	iter := r.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		owner := strings.TrimPrefix(key, prefix)
		if owner == r.instance {
			continue
		}
		alive, err := r.client.Exists(ctx, livenessKey(queue, owner)).Result()
		if err != nil {
			return moved, fmt.Errorf("failed to check consumer %s: %w", owner, err)
		}
		if alive > 0 {
			continue
		}
		n, err := r.drain(ctx, key, queue)
		moved += n
		if err != nil {
			return moved, err
		}
	}
	if err := iter.Err(); err != nil {
		return moved, fmt.Errorf("failed to scan %s*: %w", prefix, err)
	}
	return moved, nil
}

func (r *RedisBroker) drain(ctx context.Context, processing, queue string) (int, error) {
	moved := 0
	for {
		err := r.client.LMove(ctx, processing, queue, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("failed to recover %s: %w", processing, err)
		}
		moved++
	}
}

func (r *RedisBroker) heartbeat(ctx context.Context, queue string) error {
	return r.client.Set(ctx, livenessKey(queue, r.instance), time.Now().Unix(), consumerTTL).Err()
}

// keepAlive refreshes the liveness key and sweeps for orphaned processing
// lists until stop closes. The liveness key is left to expire on its own so
// that deliveries still being worked on are not reclaimed early.
func (r *RedisBroker) keepAlive(ctx context.Context, queue string, stop <-chan struct{}) {
	ticker := time.NewTicker(consumerTTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		_ = r.heartbeat(ctx, queue)
		_, _ = r.reclaimOrphans(ctx, queue)
	}
}

func (r *RedisBroker) promoteDue(ctx context.Context, queue string) error {
	now := time.Now().UnixMilli()
	return promoteScript.Run(ctx, r.client, []string{delayedSet(queue), queue}, now, promoteBatch).Err()
}

func (r *RedisBroker) delivery(queue, processing, body string) Delivery {
	ack := func() error {
		return r.client.LRem(context.Background(), processing, 1, body).Err()
	}
	nack := func(requeue bool) error {
		ctx := context.Background()
		if !requeue {
			return r.client.LRem(ctx, processing, 1, body).Err()
		}
		_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.LRem(ctx, processing, 1, body)
			p.RPush(ctx, queue, body)
			return nil
		})
		return err
	}
	return NewDelivery([]byte(body), ack, nack)
}

// Close stops consumers. The redis client is owned by the caller.
func (r *RedisBroker) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *RedisBroker) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

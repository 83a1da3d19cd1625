package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const publishTimeout = 2 * time.Second

// envelope is the pub/sub form of an event, carrying the target user.
type envelope struct {
	UserID int64           `json:"user_id"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
}

// RedisPublisher lets processes without websocket sessions, such as workers,
// reach clients connected to a server process.
type RedisPublisher struct {
	rdb     redis.UniversalClient
	channel string
	logger  *zap.Logger
}

func NewRedisPublisher(rdb redis.UniversalClient, channel string, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: channel, logger: logger}
}

func (p *RedisPublisher) TryEmit(userID int64, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn("failed to encode event", zap.String("event", event), zap.Error(err))
		return
	}
	msg, err := json.Marshal(envelope{UserID: userID, Event: event, Data: data})
	if err != nil {
		p.logger.Warn("failed to encode event", zap.String("event", event), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.rdb.Publish(ctx, p.channel, msg).Err(); err != nil {
		p.logger.Warn("failed to publish event",
			zap.String("event", event), zap.Int64("user_id", userID), zap.Error(err))
	}
}

// RedisRelay forwards events published on the channel to a local broadcaster.
type RedisRelay struct {
	rdb     redis.UniversalClient
	channel string
	target  Broadcaster
	logger  *zap.Logger
	pubsub  *redis.PubSub
	done    chan struct{}
}

func NewRedisRelay(rdb redis.UniversalClient, channel string, target Broadcaster, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{rdb: rdb, channel: channel, target: target, logger: logger}
}

// Start subscribes and returns once the subscription is confirmed. Events are
// forwarded until ctx ends or Stop is called.
func (r *RedisRelay) Start(ctx context.Context) error {
	r.pubsub = r.rdb.Subscribe(ctx, r.channel)
	if _, err := r.pubsub.Receive(ctx); err != nil {
		_ = r.pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	r.logger.Info("relay subscribed", zap.String("channel", r.channel))

	r.done = make(chan struct{})
	go r.listen(ctx)
	return nil
}

func (r *RedisRelay) listen(ctx context.Context) {
	defer close(r.done)
	ch := r.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			_ = r.pubsub.Close()
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var e envelope
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				r.logger.Warn("failed to parse relayed event", zap.Error(err))
				continue
			}
			r.target.TryEmit(e.UserID, e.Event, e.Data)
		}
	}
}

// Stop closes the subscription and waits for the forwarding loop to exit.
func (r *RedisRelay) Stop() error {
	if r.pubsub == nil {
		return nil
	}
	err := r.pubsub.Close()
	if r.done != nil {
		<-r.done
	}
	return err
}

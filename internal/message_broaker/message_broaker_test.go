package message_broaker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageBrokerInterface(t *testing.T) {
	var _ MessageBroker = (*RabbitMQ)(nil)
	var _ MessageBroker = (*RedisBroker)(nil)
	var _ DelayedPublisher = (*RabbitMQ)(nil)
	var _ DelayedPublisher = (*RedisBroker)(nil)
}

func TestDelayQueue(t *testing.T) {
	name, args := delayQueue("emailQueue", 4000)
	assert.Equal(t, "emailQueue.delay.4000", name)
	assert.Equal(t, int64(4000), args["x-message-ttl"])
	// the queue outlives the longest wait of anything published into it
	assert.Greater(t, args["x-expires"].(int64), int64(4000))
}

func TestDelivery_ZeroValueIsNoop(t *testing.T) {
	var d Delivery
	assert.NoError(t, d.Ack())
	assert.NoError(t, d.Nack(true))
}

type fakeAcknowledger struct {
	acked    []uint64
	nacked   []uint64
	requeued bool
}

func (f *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	f.acked = append(f.acked, tag)
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	f.nacked = append(f.nacked, tag)
	f.requeued = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

func TestFromAMQP(t *testing.T) {
	ack := &fakeAcknowledger{}
	d := fromAMQP(amqp.Delivery{Acknowledger: ack, DeliveryTag: 7, Body: []byte("job")})

	assert.Equal(t, []byte("job"), d.Body)
	require.NoError(t, d.Ack())
	assert.Equal(t, []uint64{7}, ack.acked)

	require.NoError(t, d.Nack(true))
	assert.Equal(t, []uint64{7}, ack.nacked)
	assert.True(t, ack.requeued)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func receive(t *testing.T, ch <-chan Delivery) Delivery {
	t.Helper()
	select {
	case d, ok := <-ch:
		require.True(t, ok, "delivery channel closed")
		return d
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return Delivery{}
	}
}

func TestRedisBroker_PublishConsumeAck(t *testing.T) {
	mr, client := newTestRedis(t)
	broker := NewRedisBroker(client, "node-1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, broker.Publish(ctx, "emailQueue", []byte("first")))
	require.NoError(t, broker.Publish(ctx, "emailQueue", []byte("second")))

	ch, err := broker.Consume(ctx, "emailQueue")
	require.NoError(t, err)

	d := receive(t, ch)
	assert.Equal(t, "first", string(d.Body))
	require.NoError(t, d.Ack())

	d = receive(t, ch)
	assert.Equal(t, "second", string(d.Body))

	processing, err := mr.List("emailQueue:processing:node-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"second"}, processing)

	require.NoError(t, d.Ack())
	assert.False(t, mr.Exists("emailQueue:processing:node-1"))
}

func TestRedisBroker_NackRequeue(t *testing.T) {
	mr, client := newTestRedis(t)
	broker := NewRedisBroker(client, "node-1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, broker.Publish(ctx, "q", []byte("job")))
	ch, err := broker.Consume(ctx, "q")
	require.NoError(t, err)

	d := receive(t, ch)
	require.NoError(t, d.Nack(true))

	again := receive(t, ch)
	assert.Equal(t, "job", string(again.Body))
	require.NoError(t, again.Nack(false))

	assert.False(t, mr.Exists("q:processing:node-1"))
}

func TestRedisBroker_RecoverLeftovers(t *testing.T) {
	mr, client := newTestRedis(t)
	broker := NewRedisBroker(client, "node-1")
	ctx := context.Background()

	mr.Lpush("q:processing:node-1", "older")
	mr.Lpush("q:processing:node-1", "newer")
	mr.Lpush("q", "fresh")

	moved, err := broker.Recover(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, 2, moved)

	queue, err := mr.List("q")
	require.NoError(t, err)
	// consumers pop from the right, so leftovers come before fresh work
	assert.Equal(t, []string{"fresh", "newer", "older"}, queue)
}

func TestRedisBroker_Closed(t *testing.T) {
	_, client := newTestRedis(t)
	broker := NewRedisBroker(client, "node-1")
	require.NoError(t, broker.Close())

	assert.ErrorIs(t, broker.Publish(context.Background(), "q", []byte("x")), ErrBrokerClosed)
	_, err := broker.Consume(context.Background(), "q")
	assert.ErrorIs(t, err, ErrBrokerClosed)
}

func TestRedisBroker_ReclaimsJobsOfStoppedConsumer(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	require.NoError(t, client.LPush(ctx, "q", "job").Err())

	// instance names differ across restarts
	first := NewRedisBroker(client, "worker-1a2b")
	firstCtx, stopFirst := context.WithCancel(ctx)
	ch, err := first.Consume(firstCtx, "q")
	require.NoError(t, err)
	d := receive(t, ch)
	assert.Equal(t, "job", string(d.Body))

	stopFirst()
	for range ch {
	}

	restarted := NewRedisBroker(client, "worker-9f8e")

	// the stopped consumer's liveness key has not expired yet
	moved, err := restarted.Recover(ctx, "q")
	require.NoError(t, err)
	assert.Zero(t, moved)

	mr.FastForward(consumerTTL + time.Second)

	restartedCtx, stopRestarted := context.WithCancel(ctx)
	defer stopRestarted()
	ch, err = restarted.Consume(restartedCtx, "q")
	require.NoError(t, err)

	again := receive(t, ch)
	assert.Equal(t, "job", string(again.Body))
	require.NoError(t, again.Ack())
	assert.False(t, mr.Exists("q:processing:worker-1a2b"))
	assert.False(t, mr.Exists("q:processing:worker-9f8e"))
}

func TestRedisBroker_LeavesLiveConsumersAlone(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	busy := NewRedisBroker(client, "busy")
	require.NoError(t, busy.Publish(ctx, "q", []byte("in-flight")))
	ch, err := busy.Consume(ctx, "q")
	require.NoError(t, err)
	receive(t, ch)

	other := NewRedisBroker(client, "other")
	moved, err := other.Recover(ctx, "q")
	require.NoError(t, err)
	assert.Zero(t, moved)

	processing, err := mr.List("q:processing:busy")
	require.NoError(t, err)
	assert.Equal(t, []string{"in-flight"}, processing)
	assert.True(t, mr.Exists("q:consumer:busy"))
}

func TestRedisBroker_PublishDelayed(t *testing.T) {
	mr, client := newTestRedis(t)
	broker := NewRedisBroker(client, "node-1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	published := time.Now()
	require.NoError(t, broker.PublishDelayed(ctx, "q", []byte("later"), 300*time.Millisecond))

	assert.False(t, mr.Exists("q"))
	members, err := mr.ZMembers("q:delayed")
	require.NoError(t, err)
	assert.Equal(t, []string{"later"}, members)

	ch, err := broker.Consume(ctx, "q")
	require.NoError(t, err)

	d := receive(t, ch)
	assert.Equal(t, "later", string(d.Body))
	assert.GreaterOrEqual(t, time.Since(published), 300*time.Millisecond)
	require.NoError(t, d.Ack())
	assert.False(t, mr.Exists("q:delayed"))
}

func TestRedisBroker_PublishDelayedWithoutDelay(t *testing.T) {
	mr, client := newTestRedis(t)
	broker := NewRedisBroker(client, "node-1")

	require.NoError(t, broker.PublishDelayed(context.Background(), "q", []byte("now"), 0))

	queue, err := mr.List("q")
	require.NoError(t, err)
	assert.Equal(t, []string{"now"}, queue)
	assert.False(t, mr.Exists("q:delayed"))
}

package message_broaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// delayQueueIdle keeps an unused delay queue around this long past its TTL.
const delayQueueIdle = time.Minute

type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	queueName  string
	exchange   string
	routingKey string
}

// NewRabbitMQ declares a durable direct exchange and queue, enables publisher
// confirms and limits unacknowledged deliveries to prefetch.
func NewRabbitMQ(url, exchange, queue, routingKey string, prefetch int) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	fail := func(err error) (*RabbitMQ, error) {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		return fail(err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fail(err)
	}
	if err := ch.QueueBind(queue, routingKey, exchange, false, nil); err != nil {
		return fail(err)
	}
	if err := ch.Confirm(false); err != nil {
		return fail(fmt.Errorf("failed to enable publisher confirms: %w", err))
	}
	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			return fail(err)
		}
	}

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		queueName:  queue,
		exchange:   exchange,
		routingKey: routingKey,
	}, nil
}

func (r *RabbitMQ) route(queue string) (exchange, key string) {
	if queue != r.queueName {
		// default exchange routes straight to the named queue
		return "", queue
	}
	return r.exchange, r.routingKey
}

func (r *RabbitMQ) Publish(ctx context.Context, queue string, message []byte) error {
	exchange, key := r.route(queue)
	return r.publish(ctx, exchange, key, queue, message)
}

// PublishDelayed parks the message in a consumer-less queue whose TTL equals
// delay. Expired messages are dead-lettered to the queue's own route. One delay
// queue exists per distinct delay, so messages never wait behind longer ones.
func (r *RabbitMQ) PublishDelayed(ctx context.Context, queue string, message []byte, delay time.Duration) error {
	ttl := delay.Milliseconds()
	if ttl <= 0 {
		return r.Publish(ctx, queue, message)
	}
	name, args := delayQueue(queue, ttl)
	exchange, key := r.route(queue)
	args["x-dead-letter-exchange"] = exchange
	args["x-dead-letter-routing-key"] = key

	if _, err := r.channel.QueueDeclare(name, true, false, false, false, args); err != nil {
		return fmt.Errorf("failed to declare delay queue %s: %w", name, err)
	}
	return r.publish(ctx, "", name, name, message)
}

func delayQueue(queue string, ttl int64) (string, amqp.Table) {
	return fmt.Sprintf("%s.delay.%d", queue, ttl), amqp.Table{
		"x-message-ttl": ttl,
		"x-expires":     ttl + delayQueueIdle.Milliseconds(),
	}
}

func (r *RabbitMQ) publish(ctx context.Context, exchange, key, queue string, message []byte) error {
	confirmation, err := r.channel.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         message,
		},
	)
	if err != nil {
		return err
	}
	if confirmation == nil {
		return errors.New("publisher confirms are not enabled on channel")
	}

	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !acked {
		return fmt.Errorf("broker rejected message for queue %s", queue)
	}
	return nil
}

func (r *RabbitMQ) Consume(ctx context.Context, queue string) (<-chan Delivery, error) {
	msgs, err := r.channel.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, err
	}

	out := make(chan Delivery)

	go func() {
		defer close(out)

		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- fromAMQP(msg):
				case <-ctx.Done():
					_ = msg.Nack(false, true)
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (r *RabbitMQ) Close() error {
	if err := r.channel.Close(); err != nil {
		_ = r.conn.Close()
		return err
	}
	return r.conn.Close()
}

func fromAMQP(msg amqp.Delivery) Delivery {
	return NewDelivery(msg.Body,
		func() error { return msg.Ack(false) },
		func(requeue bool) error { return msg.Nack(false, requeue) },
	)
}

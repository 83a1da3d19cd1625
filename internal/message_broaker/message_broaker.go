package message_broaker

import (
	"context"
	"errors"
	"time"
)

var ErrBrokerClosed = errors.New("message broker is closed")

// Delivery is one message handed to a consumer. Exactly one of Ack or Nack
// must be called once the consumer is done with it.
type Delivery struct {
	Body []byte
	ack  func() error
	nack func(requeue bool) error
}

func NewDelivery(body []byte, ack func() error, nack func(requeue bool) error) Delivery {
	return Delivery{Body: body, ack: ack, nack: nack}
}

// Ack removes the message from the broker.
func (d Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

// Nack gives the message back to the broker when requeue is set and drops it otherwise.
func (d Delivery) Nack(requeue bool) error {
	if d.nack == nil {
		return nil
	}
	return d.nack(requeue)
}

type MessageBroker interface {
	// Publish returns once the broker has durably accepted the message.
	Publish(ctx context.Context, queue string, message []byte) error
	// Consume streams unacknowledged deliveries until ctx ends.
	Consume(ctx context.Context, queue string) (<-chan Delivery, error)
	Close() error
}

// DelayedPublisher is implemented by brokers that can hold a message back
// until delay has passed, so the publisher does not have to.
type DelayedPublisher interface {
	PublishDelayed(ctx context.Context, queue string, message []byte, delay time.Duration) error
}

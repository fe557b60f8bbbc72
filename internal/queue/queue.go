// Package queue abstracts the durable at-least-once message transport the
// orchestration core consumes from and publishes to.
package queue

import (
	"context"
	"errors"
)

// ErrClosed is returned when an operation is attempted on a closed queue.
var ErrClosed = errors.New("queue closed")

// Message is one received queue message. ID identifies the message for
// deletion; DeliveryTag carries transport-specific acknowledgement state.
type Message struct {
	ID          string
	Body        []byte
	DeliveryTag uint64
}

// Queue is a durable at-least-once message queue handle. Implementations
// must be safe for concurrent use. Receive blocks up to the implementation's
// wait interval and returns a possibly empty batch; Delete acknowledges a
// received message so it is never redelivered.
type Queue interface {
	Send(ctx context.Context, body []byte) error
	Receive(ctx context.Context) ([]Message, error)
	Delete(ctx context.Context, msg Message) error
}

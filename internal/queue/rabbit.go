package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/provelab/pricing-prover/shared/rabbitmq"
)

// RabbitConfig holds the settings for one RabbitMQ-backed queue handle.
type RabbitConfig struct {
	QueueName     string
	RoutingKey    string
	BatchSize     int
	ReceiveWait   time.Duration
	PrefetchCount int
}

// RabbitQueue adapts the shared RabbitMQ client to the Queue interface. The
// push-based AMQP consumer is bridged into batched pulls: Receive gathers up
// to BatchSize deliveries, waiting at most ReceiveWait for the first one.
type RabbitQueue struct {
	client *rabbitmq.Client
	cfg    RabbitConfig
	logger *slog.Logger

	mu         sync.Mutex
	deliveries <-chan amqp.Delivery
}

// NewRabbitQueue creates a queue handle over an established RabbitMQ client.
func NewRabbitQueue(client *rabbitmq.Client, cfg RabbitConfig, logger *slog.Logger) *RabbitQueue {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.ReceiveWait <= 0 {
		cfg.ReceiveWait = time.Second
	}
	return &RabbitQueue{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// Send publishes a message under the queue's routing key.
func (q *RabbitQueue) Send(ctx context.Context, body []byte) error {
	return q.client.PublishWithRetry(ctx, q.cfg.RoutingKey, body, "application/json")
}

// Receive returns a batch of deliveries, blocking up to ReceiveWait for the
// first one. An empty batch is not an error.
func (q *RabbitQueue) Receive(ctx context.Context) ([]Message, error) {
	deliveries, err := q.consumer()
	if err != nil {
		return nil, err
	}

	var out []Message

	wait := time.NewTimer(q.cfg.ReceiveWait)
	defer wait.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-wait.C:
		return nil, nil
	case d, ok := <-deliveries:
		if !ok {
			q.resetConsumer()
			return nil, fmt.Errorf("rabbitmq delivery channel closed")
		}
		out = append(out, toMessage(d))
	}

	// Drain whatever else is immediately available, up to the batch size.
	for len(out) < q.cfg.BatchSize {
		select {
		case d, ok := <-deliveries:
			if !ok {
				q.resetConsumer()
				return out, nil
			}
			out = append(out, toMessage(d))
		default:
			return out, nil
		}
	}

	return out, nil
}

// Delete acknowledges the delivery so the broker never redelivers it.
func (q *RabbitQueue) Delete(_ context.Context, msg Message) error {
	channel := q.client.GetChannel()
	if channel == nil {
		return fmt.Errorf("rabbitmq channel is nil")
	}

	if err := channel.Ack(msg.DeliveryTag, false); err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}

// consumer lazily starts the AMQP consumer on first use.
func (q *RabbitQueue) consumer() (<-chan amqp.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.deliveries != nil {
		return q.deliveries, nil
	}

	channel := q.client.GetChannel()
	if channel == nil {
		return nil, fmt.Errorf("rabbitmq channel is nil")
	}

	if q.cfg.PrefetchCount > 0 {
		if err := channel.Qos(q.cfg.PrefetchCount, 0, false); err != nil {
			return nil, fmt.Errorf("failed to set QoS: %w", err)
		}
	}

	consumerTag := q.cfg.QueueName + "-" + uuid.New().String()
	deliveries, err := q.client.Consume(q.cfg.QueueName, consumerTag)
	if err != nil {
		return nil, err
	}

	q.logger.Info("Queue consumer started",
		slog.String("queue", q.cfg.QueueName),
		slog.String("consumer_tag", consumerTag),
	)

	q.deliveries = deliveries
	return deliveries, nil
}

func (q *RabbitQueue) resetConsumer() {
	q.mu.Lock()
	q.deliveries = nil
	q.mu.Unlock()
}

func toMessage(d amqp.Delivery) Message {
	id := d.MessageId
	if id == "" {
		id = strconv.FormatUint(d.DeliveryTag, 10)
	}
	return Message{
		ID:          id,
		Body:        d.Body,
		DeliveryTag: d.DeliveryTag,
	}
}

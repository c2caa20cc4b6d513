// Package amqp implements the enrichment queue on RabbitMQ.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/JakeFAU/comic-crawler/internal/comic"
	"github.com/JakeFAU/comic-crawler/internal/queue"
)

// ErrDeliveriesClosed is returned when the broker closes the delivery stream.
var ErrDeliveriesClosed = errors.New("amqp delivery channel closed")

// Channel is the subset of *amqp.Channel the queue uses.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	Close() error
}

// Connection owns the broker connection. Each publisher and consumer gets its own channel.
type Connection struct {
	conn *amqp.Connection
}

// Dial connects to the broker at url.
func Dial(url string) (*Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	return &Connection{conn: conn}, nil
}

// Channel opens a new channel on the connection.
func (c *Connection) Channel() (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	return ch, nil
}

// Close closes the connection and every channel opened on it.
func (c *Connection) Close() error {
	if c == nil || c.conn == nil || c.conn.IsClosed() {
		return nil
	}
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("close amqp connection: %w", err)
	}
	return nil
}

func declare(ch Channel, name string) error {
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	return nil
}

// Publisher sends persistent JSON messages to a durable queue through the default exchange.
type Publisher struct {
	mu    sync.Mutex
	ch    Channel
	queue string
	now   func() time.Time
}

var _ queue.Publisher = (*Publisher)(nil)

// NewPublisher declares the queue and returns a publisher bound to it.
func NewPublisher(ch Channel, queueName string) (*Publisher, error) {
	if err := declare(ch, queueName); err != nil {
		return nil, err
	}
	return &Publisher{ch: ch, queue: queueName, now: time.Now}, nil
}

// Publish encodes msg and sends it with persistent delivery mode.
func (p *Publisher) Publish(ctx context.Context, msg comic.EnrichmentMessage) error {
	body, err := queue.Encode(msg)
	if err != nil {
		return err
	}
	// Channels are not safe for concurrent publishes.
	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    p.now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish comic %d: %w", msg.ComicID, err)
	}
	return nil
}

// Close closes the publisher's channel.
func (p *Publisher) Close() error {
	if err := p.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return fmt.Errorf("close amqp channel: %w", err)
	}
	return nil
}

// Consumer receives from a durable queue with a prefetch of one and manual acks.
type Consumer struct {
	ch     Channel
	queue  string
	tag    string
	logger *zap.Logger
}

var _ queue.Consumer = (*Consumer)(nil)

// NewConsumer declares the queue, limits the channel to one unacknowledged message and
// returns a consumer bound to it.
func NewConsumer(ch Channel, queueName string, logger *zap.Logger) (*Consumer, error) {
	if err := declare(ch, queueName); err != nil {
		return nil, err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		ch:     ch,
		queue:  queueName,
		tag:    "enrich-" + uuid.NewString(),
		logger: logger,
	}, nil
}

// Consume runs h for each delivery until ctx is cancelled.
func (c *Consumer) Consume(ctx context.Context, h queue.Handler) error {
	deliveries, err := c.ch.Consume(c.queue, c.tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}
	for {
		select {
		case <-ctx.Done():
			// Unacked prefetched deliveries return to the queue when the channel closes.
			if err := c.ch.Cancel(c.tag, false); err != nil {
				c.logger.Warn("cancel consumer failed", zap.String("tag", c.tag), zap.Error(err))
			}
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			c.settle(d, h(ctx, toDelivery(d)))
		}
	}
}

func (c *Consumer) settle(d amqp.Delivery, disposition queue.Disposition) {
	var err error
	switch disposition {
	case queue.Requeue:
		err = d.Nack(false, true)
	default:
		err = d.Ack(false)
	}
	if err != nil {
		c.logger.Error("settle delivery failed",
			zap.String("message_id", d.MessageId),
			zap.Stringer("disposition", disposition),
			zap.Error(err),
		)
	}
}

// Close closes the consumer's channel.
func (c *Consumer) Close() error {
	if err := c.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return fmt.Errorf("close amqp channel: %w", err)
	}
	return nil
}

func toDelivery(d amqp.Delivery) queue.Delivery {
	out := queue.Delivery{
		ID:          d.MessageId,
		Body:        d.Body,
		Redelivered: d.Redelivered,
	}
	// Quorum queues report a delivery count header.
	switch n := d.Headers["x-delivery-count"].(type) {
	case int64:
		out.Attempt = int(n)
	case int32:
		out.Attempt = int(n)
	}
	return out
}

// Package pubsub implements the enrichment queue on Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/JakeFAU/comic-crawler/internal/comic"
	"github.com/JakeFAU/comic-crawler/internal/queue"
)

// Publisher wraps a Pub/Sub topic publisher.
type Publisher struct {
	publisher *pubsub.Publisher
}

var _ queue.Publisher = (*Publisher)(nil)

// NewPublisher creates a Publisher for topic, given as an ID or a full resource name.
func NewPublisher(client *pubsub.Client, topic string) *Publisher {
	return &Publisher{publisher: client.Publisher(topic)}
}

// Publish encodes msg, injects the trace context into the attributes and waits for the
// server to acknowledge the publish.
func (p *Publisher) Publish(ctx context.Context, msg comic.EnrichmentMessage) error {
	if p.publisher == nil {
		return fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := queue.Encode(msg)
	if err != nil {
		return err
	}

	m := &pubsub.Message{Data: data, Attributes: make(map[string]string)}
	otel.GetTextMapPropagator().Inject(ctx, &pubsubCarrier{attrs: m.Attributes})

	if _, err := p.publisher.Publish(ctx, m).Get(ctx); err != nil {
		return fmt.Errorf("publish comic %d: %w", msg.ComicID, err)
	}
	return nil
}

// Close flushes pending publishes and stops the publisher's goroutines.
func (p *Publisher) Close() error {
	if p.publisher != nil {
		p.publisher.Stop()
	}
	return nil
}

// Consumer receives from a subscription with a single outstanding message.
type Consumer struct {
	subscriber *pubsub.Subscriber
	logger     *zap.Logger
}

var _ queue.Consumer = (*Consumer)(nil)

// NewConsumer creates a Consumer for subscription, given as an ID or a full resource name.
func NewConsumer(client *pubsub.Client, subscription string, logger *zap.Logger) *Consumer {
	sub := client.Subscriber(subscription)
	sub.ReceiveSettings.MaxOutstandingMessages = 1
	sub.ReceiveSettings.NumGoroutines = 1
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{subscriber: sub, logger: logger}
}

// Consume runs h for each message until ctx is cancelled. Receive waits for the
// in-flight callback before returning.
func (c *Consumer) Consume(ctx context.Context, h queue.Handler) error {
	err := c.subscriber.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		ctx = otel.GetTextMapPropagator().Extract(ctx, &pubsubCarrier{attrs: m.Attributes})
		disposition := h(ctx, toDelivery(m))
		c.logger.Debug("settling message", zap.String("message_id", m.ID), zap.Stringer("disposition", disposition))
		if disposition == queue.Requeue {
			m.Nack()
			return
		}
		m.Ack()
	})
	if err != nil {
		return fmt.Errorf("receive: %w", err)
	}
	return nil
}

// Close is a no-op. The client owns the streaming connection.
func (c *Consumer) Close() error {
	return nil
}

func toDelivery(m *pubsub.Message) queue.Delivery {
	d := queue.Delivery{ID: m.ID, Body: m.Data}
	if m.DeliveryAttempt != nil {
		d.Attempt = *m.DeliveryAttempt
		d.Redelivered = d.Attempt > 1
	}
	return d
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	if c.attrs == nil {
		c.attrs = make(map[string]string)
	}
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}

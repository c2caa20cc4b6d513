// Package queue defines the enrichment work queue shared by the crawl producer and the
// enrichment consumers. Drivers live in the amqp, pubsub and memory subpackages.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/comic-crawler/internal/comic"
)

// Disposition tells the driver what to do with a delivery once the handler returns.
type Disposition int

const (
	// Ack removes the message from the queue.
	Ack Disposition = iota
	// Requeue returns the message to the queue for another attempt.
	Requeue
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Requeue:
		return "requeue"
	default:
		return fmt.Sprintf("disposition(%d)", int(d))
	}
}

// Delivery is one received message.
type Delivery struct {
	ID          string
	Body        []byte
	Redelivered bool
	// Attempt is the broker's delivery count when it reports one, otherwise zero.
	Attempt int
}

// Handler processes a delivery. Drivers call it for one delivery at a time per consumer.
type Handler func(ctx context.Context, d Delivery) Disposition

// Publisher hands enrichment messages to the queue.
type Publisher interface {
	Publish(ctx context.Context, msg comic.EnrichmentMessage) error
	Close() error
}

// Consumer delivers queued messages to a Handler until ctx is cancelled. Consume stops
// accepting new deliveries on cancellation, waits for the in-flight handler and returns nil.
type Consumer interface {
	Consume(ctx context.Context, h Handler) error
	Close() error
}

// Encode renders the wire form of msg.
func Encode(msg comic.EnrichmentMessage) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode enrichment message: %w", err)
	}
	return body, nil
}

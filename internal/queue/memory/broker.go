// Package memory provides an in-process enrichment queue for local runs and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/JakeFAU/comic-crawler/internal/comic"
	"github.com/JakeFAU/comic-crawler/internal/queue"
)

// ErrClosed is returned by operations on a closed broker.
var ErrClosed = errors.New("queue closed")

// Broker is an unbounded FIFO queue with ack/requeue semantics. It satisfies both
// queue.Publisher and queue.Consumer.
type Broker struct {
	mu      sync.Mutex
	pending []queue.Delivery
	ready   chan struct{}
	done    chan struct{}
	closed  bool
}

var (
	_ queue.Publisher = (*Broker)(nil)
	_ queue.Consumer  = (*Broker)(nil)
)

// NewBroker constructs an empty broker.
func NewBroker() *Broker {
	return &Broker{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Publish enqueues the encoded message.
func (b *Broker) Publish(ctx context.Context, msg comic.EnrichmentMessage) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("publish canceled: %w", err)
	}
	body, err := queue.Encode(msg)
	if err != nil {
		return err
	}
	return b.PublishRaw(queue.Delivery{ID: uuid.NewString(), Body: body})
}

// PublishRaw enqueues a delivery as-is. Tests use it to inject arbitrary payloads.
func (b *Broker) PublishRaw(d queue.Delivery) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.pending = append(b.pending, d)
	b.signal()
	return nil
}

// Consume hands deliveries to h one at a time until ctx is cancelled or the broker closes.
func (b *Broker) Consume(ctx context.Context, h queue.Handler) error {
	for {
		d, ok, err := b.next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		d.Attempt++
		if h(ctx, d) == queue.Requeue {
			d.Redelivered = true
			if err := b.requeue(d); err != nil {
				return err
			}
		}
	}
}

// Len reports the number of messages waiting for delivery.
func (b *Broker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Close stops the broker. Pending messages are discarded. Closing twice is safe.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.done)
	return nil
}

func (b *Broker) next(ctx context.Context) (queue.Delivery, bool, error) {
	for {
		if ctx.Err() != nil {
			return queue.Delivery{}, false, nil
		}
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return queue.Delivery{}, false, ErrClosed
		}
		if len(b.pending) > 0 {
			d := b.pending[0]
			b.pending = b.pending[1:]
			if len(b.pending) > 0 {
				b.signal()
			}
			b.mu.Unlock()
			return d, true, nil
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return queue.Delivery{}, false, nil
		case <-b.done:
		case <-b.ready:
		}
	}
}

func (b *Broker) requeue(d queue.Delivery) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.pending = append(b.pending, d)
	b.signal()
	return nil
}

// signal wakes one waiting consumer. Callers hold b.mu.
func (b *Broker) signal() {
	select {
	case b.ready <- struct{}{}:
	default:
	}
}

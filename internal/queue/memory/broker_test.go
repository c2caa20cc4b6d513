package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/comic-crawler/internal/comic"
	"github.com/JakeFAU/comic-crawler/internal/queue"
)

func TestBrokerDeliversPublishedMessage(t *testing.T) {
	t.Parallel()

	b := NewBroker()
	msg := comic.EnrichmentMessage{ComicID: 1, Title: "t", PanelURLs: comic.Panels{"a"}}
	require.NoError(t, b.Publish(context.Background(), msg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan comic.EnrichmentMessage, 1)
	go func() {
		_ = b.Consume(ctx, func(_ context.Context, d queue.Delivery) queue.Disposition {
			decoded, err := comic.DecodeEnrichmentMessage(d.Body)
			assert.NoError(t, err)
			assert.NotEmpty(t, d.ID)
			assert.False(t, d.Redelivered)
			assert.Equal(t, 1, d.Attempt)
			got <- decoded
			return queue.Ack
		})
	}()

	select {
	case decoded := <-got:
		assert.Equal(t, msg, decoded)
	case <-time.After(time.Second):
		t.Fatal("consumer did not receive message")
	}
	require.Eventually(t, func() bool { return b.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestBrokerRequeueRedelivers(t *testing.T) {
	t.Parallel()

	b := NewBroker()
	require.NoError(t, b.PublishRaw(queue.Delivery{ID: "m-1", Body: []byte(`{}`)}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var seen []queue.Delivery
	go func() {
		_ = b.Consume(ctx, func(_ context.Context, d queue.Delivery) queue.Disposition {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, d)
			if len(seen) < 3 {
				return queue.Requeue
			}
			return queue.Ack
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, seen[0].Redelivered)
	assert.True(t, seen[1].Redelivered)
	assert.Equal(t, 3, seen[2].Attempt)
	assert.Equal(t, 0, b.Len())
}

func TestBrokerConsumeReturnsOnCancel(t *testing.T) {
	t.Parallel()

	b := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- b.Consume(ctx, func(context.Context, queue.Delivery) queue.Disposition { return queue.Ack })
	}()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consume did not return after cancel")
	}
}

func TestBrokerClose(t *testing.T) {
	t.Parallel()

	b := NewBroker()
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	require.ErrorIs(t, b.Publish(context.Background(), comic.EnrichmentMessage{ComicID: 1}), ErrClosed)
	require.ErrorIs(t, b.Consume(context.Background(), nil), ErrClosed)
}

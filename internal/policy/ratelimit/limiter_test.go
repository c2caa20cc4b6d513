package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLimiterSpacesRequestsToOneHost(t *testing.T) {
	t.Parallel()

	// 10 requests per second is one token every 100ms.
	l := New(Config{RequestsPerSecond: 10, Burst: 1})
	ctx := context.Background()

	if err := l.Wait(ctx, "https://assets.penny-arcade.com/p1.jpg"); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := l.Wait(ctx, "https://assets.penny-arcade.com/p2.jpg"); err != nil {
		t.Fatal(err)
	}
	if dur := time.Since(start); dur < 80*time.Millisecond {
		t.Errorf("expected wait ~100ms, got %v", dur)
	}
}

func TestLimiterHostsAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{RequestsPerSecond: 1, Burst: 1})
	ctx := context.Background()

	if err := l.Wait(ctx, "https://www.penny-arcade.com/comic/1"); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := l.Wait(ctx, "https://assets.penny-arcade.com/p1.jpg"); err != nil {
		t.Fatal(err)
	}
	if dur := time.Since(start); dur > 50*time.Millisecond {
		t.Errorf("expected no wait for a different host, got %v", dur)
	}
}

func TestLimiterDisabledAndCanceled(t *testing.T) {
	t.Parallel()

	unlimited := New(Config{})
	for range 100 {
		if err := unlimited.Wait(context.Background(), "https://x/"); err != nil {
			t.Fatal(err)
		}
	}

	l := New(Config{RequestsPerSecond: 0.01, Burst: 1})
	if err := l.Wait(context.Background(), "https://x/"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Wait(ctx, "https://x/")
	if err == nil || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsAfterFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	v, err := Do(context.Background(), Policy{MaxAttempts: 5, Interval: time.Millisecond}, nil, "db",
		func(context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("connection refused")
			}
			return "pool", nil
		})
	require.NoError(t, err)
	assert.Equal(t, "pool", v)
	assert.Equal(t, 3, calls)
}

func TestDoExhausted(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	calls := 0
	_, err := Do(context.Background(), Policy{MaxAttempts: 3, Interval: time.Millisecond}, nil, "broker",
		func(context.Context) (int, error) {
			calls++
			return 0, boom
		})
	require.ErrorIs(t, err, ErrExhausted)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, Policy{MaxAttempts: 10, Interval: time.Hour}, nil, "db",
		func(context.Context) (int, error) {
			calls++
			cancel()
			return 0, errors.New("down")
		})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrExhausted))
	assert.Equal(t, 1, calls)
}

func TestDoZeroAttemptsRunsOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	_, err := Do(context.Background(), Policy{}, nil, "db", func(context.Context) (int, error) {
		calls++
		return 1, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetry_SucceedsImmediately(t *testing.T) {
	calls := 0
	result, ok := Retry(context.Background(), RetryPolicy{Interval: time.Millisecond}, func() (int, bool) {
		calls++
		return 42, true
	})
	assert.True(t, ok)
	assert.Equal(t, 42, result)
	assert.Equal(t, 1, calls)
}

func TestRetry_BoundedReturnsLastResultOnExhaustion(t *testing.T) {
	calls := 0
	result, ok := Retry(context.Background(), RetryPolicy{Interval: time.Millisecond, MaxRetries: 3}, func() (int, bool) {
		calls++
		return calls, false
	})
	assert.False(t, ok)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, result)
}

func TestRetry_CancellationStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan struct{})

	go func() {
		Retry(ctx, RetryPolicy{Interval: time.Hour}, func() (int, bool) {
			calls++
			return 0, false
		})
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Retry did not return promptly after context cancellation")
	}
	assert.Equal(t, 1, calls, "cancellation during the interval sleep must stop further attempts")
}

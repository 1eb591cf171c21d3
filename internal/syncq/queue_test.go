package syncq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erikbrgr/alluria-rpxp-bot/internal/rpxp"
)

func startQueue(t *testing.T, timeout time.Duration) (*Queue, context.CancelFunc) {
	t.Helper()
	q := New(nil, timeout)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = q.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return q, cancel
}

func TestJobsRunInOrderOneAtATime(t *testing.T) {
	q, _ := startQueue(t, 0)

	var (
		mu      sync.Mutex
		order   []int
		running int
		maxSeen int
	)
	var last <-chan error
	for i := 0; i < 50; i++ {
		last = q.Submit(fmt.Sprintf("job-%d", i), func(context.Context) error {
			mu.Lock()
			running++
			if running > maxSeen {
				maxSeen = running
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			order = append(order, i)
			running--
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, <-last)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 50)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
	assert.Equal(t, 1, maxSeen)
}

func TestFailingJobDoesNotStopConsumer(t *testing.T) {
	q, _ := startQueue(t, 0)

	boom := errors.New("boom")
	first := q.Submit("fails", func(context.Context) error { return boom })
	second := q.Submit("panics", func(context.Context) error { panic("kaboom") })
	third := q.Submit("ok", func(context.Context) error { return nil })

	assert.ErrorIs(t, <-first, boom)
	err := <-second
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
	assert.NoError(t, <-third)
}

func TestUserErrorsAreReturned(t *testing.T) {
	q, _ := startQueue(t, 0)
	err := q.Do(context.Background(), "collect", func(context.Context) error { return rpxp.ErrNothingToCollect })
	assert.ErrorIs(t, err, rpxp.ErrNothingToCollect)
}

func TestEnqueueIsFireAndForget(t *testing.T) {
	q, _ := startQueue(t, 0)
	ran := make(chan struct{})
	id := q.Enqueue("accrue", func(context.Context) error {
		close(ran)
		return nil
	})
	assert.NotEmpty(t, id)
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("enqueued job never ran")
	}
}

func TestJobTimeout(t *testing.T) {
	q, _ := startQueue(t, 10*time.Millisecond)
	err := q.Do(context.Background(), "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSubmitAfterStop(t *testing.T) {
	q := New(nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	block := make(chan struct{})
	started := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = q.Run(ctx)
	}()

	first := q.Submit("blocker", func(context.Context) error {
		close(started)
		<-block
		return nil
	})
	<-started
	pending := q.Submit("pending", func(context.Context) error { return nil })
	assert.Equal(t, 1, q.Len())

	cancel()
	close(block)
	assert.NoError(t, <-first)
	<-stopped

	assert.ErrorIs(t, <-pending, ErrClosed)
	assert.ErrorIs(t, <-q.Submit("late", func(context.Context) error { return nil }), ErrClosed)
	assert.Empty(t, q.Enqueue("late", func(context.Context) error { return nil }))
}

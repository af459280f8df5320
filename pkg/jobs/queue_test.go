package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRetriesFailedJobs(t *testing.T) {
	var attempts atomic.Int32
	done := make(chan struct{})

	handler := func(ctx context.Context, job Job) error {
		if attempts.Add(1) == 1 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}

	q := NewQueue("test", handler, QueueConfig{Workers: 1, BufferSize: 4, MaxRetries: 3, RetryDelay: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "j1", Type: "test.job"}))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job was not retried")
	}
	assert.Equal(t, int32(2), attempts.Load())
}

func TestEnqueueRejectsWhenBufferFull(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	handler := func(ctx context.Context, job Job) error {
		entered <- struct{}{}
		<-release
		return nil
	}

	q := NewQueue("test", handler, QueueConfig{Workers: 1, BufferSize: 1, RetryDelay: time.Millisecond})
	q.Start(context.Background())

	// First job occupies the worker, second fills the buffer.
	require.NoError(t, q.Enqueue(Job{ID: "j1"}))
	<-entered
	require.NoError(t, q.Enqueue(Job{ID: "j2"}))

	err := q.Enqueue(Job{ID: "j3"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQueueFull)

	close(release)
	<-entered
	q.Stop()
}

func TestEnqueueBeforeStartFails(t *testing.T) {
	q := NewQueue("test", func(ctx context.Context, job Job) error { return nil }, QueueConfig{})
	require.Error(t, q.Enqueue(Job{ID: "j1"}))
}

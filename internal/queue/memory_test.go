package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPublishReceive(t *testing.T) {
	q := NewMemory(8)
	defer q.Close()

	ctx := context.Background()
	payload := json.RawMessage(`[{"op":"navigate_to","params":{"url":"https://example.com"}}]`)

	require.NoError(t, q.Publish(ctx, Job{RunID: "run_1", Payload: payload}))
	assert.Equal(t, 1, q.Len())

	d, err := q.Receive(ctx)
	require.NoError(t, err)

	job := d.Job()
	assert.Equal(t, "run_1", job.RunID)
	assert.Equal(t, payload, job.Payload)
	assert.Equal(t, 1, job.Attempt, "first delivery defaults to attempt 1")
	assert.False(t, job.EnqueuedAt.IsZero())

	require.NoError(t, d.Ack())
	assert.Equal(t, 0, q.Len())
}

func TestMemoryRequeueCarriesAttempt(t *testing.T) {
	q := NewMemory(8)
	defer q.Close()

	ctx := context.Background()
	require.NoError(t, q.Publish(ctx, Job{RunID: "run_1"}))

	d, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, d.Requeue(d.Job().Attempt+1))

	redelivered, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run_1", redelivered.Job().RunID)
	assert.Equal(t, 2, redelivered.Job().Attempt)
}

func TestMemoryRequeueAfterAckIsNoop(t *testing.T) {
	q := NewMemory(8)
	defer q.Close()

	ctx := context.Background()
	require.NoError(t, q.Publish(ctx, Job{RunID: "run_1"}))

	d, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, d.Ack())
	require.NoError(t, d.Requeue(2))

	assert.Equal(t, 0, q.Len())
}

func TestMemoryReceiveRespectsContext(t *testing.T) {
	q := NewMemory(8)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := q.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryCloseReleasesBlockedPublisher(t *testing.T) {
	q := NewMemory(1)

	ctx := context.Background()
	require.NoError(t, q.Publish(ctx, Job{RunID: "run_1"}))

	// Backlog is full; this publisher parks on the send
	published := make(chan error, 1)
	go func() {
		published <- q.Publish(ctx, Job{RunID: "run_2"})
	}()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, q.Close())

	select {
	case err := <-published:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("blocked publisher not released on close")
	}
}

func TestMemoryCloseReleasesBlockedReceiver(t *testing.T) {
	q := NewMemory(1)

	received := make(chan error, 1)
	go func() {
		_, err := q.Receive(context.Background())
		received <- err
	}()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, q.Close())

	select {
	case err := <-received:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("blocked receiver not released on close")
	}
}

func TestMemoryClose(t *testing.T) {
	q := NewMemory(8)
	require.NoError(t, q.Close())

	err := q.Publish(context.Background(), Job{RunID: "run_1"})
	assert.ErrorIs(t, err, ErrClosed)

	_, err = q.Receive(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	// Closing twice is safe
	require.NoError(t, q.Close())
}

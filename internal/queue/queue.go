// Package queue abstracts the durable agent-run job queue.
//
// Delivery semantics are at-least-once: a job may be redelivered after
// a crash or timeout until it is acknowledged, so consumers must
// deduplicate by run id. A delivery is settled exactly one way: Ack
// (never redelivered) or Requeue (republished with an updated attempt
// count so the queue's native redelivery applies).
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrClosed indicates the queue connection has been closed.
var ErrClosed = errors.New("queue is closed")

// Job is the queue ingress envelope.
type Job struct {
	RunID      string          `json:"run_id"`
	Payload    json.RawMessage `json:"payload"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at,omitempty"`
}

// Delivery is one received job plus its settlement handles.
type Delivery interface {
	// Job returns the decoded envelope.
	Job() Job

	// Ack settles the delivery; the queue will not redeliver it.
	Ack() error

	// Requeue returns the job to the queue with the given attempt
	// count, then settles this delivery.
	Requeue(attempt int) error
}

// Consumer receives job deliveries from a durable queue.
type Consumer interface {
	// Receive blocks until a delivery arrives or ctx is done.
	Receive(ctx context.Context) (Delivery, error)

	// Close releases the underlying connection.
	Close() error
}

// Publisher submits jobs to the queue.
type Publisher interface {
	Publish(ctx context.Context, job Job) error
}

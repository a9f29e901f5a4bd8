package queue

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process queue with the same settlement semantics as
// the durable backend. It backs tests and single-node deployments.
type Memory struct {
	jobs chan Job

	mu     sync.Mutex
	done   chan struct{}
	closed bool
}

// NewMemory creates an in-process queue with the given backlog capacity
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Memory{
		jobs: make(chan Job, capacity),
		done: make(chan struct{}),
	}
}

// Publish enqueues a job. A publisher blocked on a full backlog is
// released with ErrClosed when the queue closes; the jobs channel
// itself is never closed, so the race between Publish and Close cannot
// panic.
func (m *Memory) Publish(ctx context.Context, job Job) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}
	if job.Attempt <= 0 {
		job.Attempt = 1
	}

	select {
	case <-m.done:
		return ErrClosed
	default:
	}

	select {
	case m.jobs <- job:
		return nil
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive blocks until a job arrives or ctx is done
func (m *Memory) Receive(ctx context.Context) (Delivery, error) {
	select {
	case <-m.done:
		return nil, ErrClosed
	default:
	}

	select {
	case job := <-m.jobs:
		return &memoryDelivery{queue: m, job: job}, nil
	case <-m.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len returns the current backlog size
func (m *Memory) Len() int {
	return len(m.jobs)
}

// Close stops the queue; pending jobs are discarded
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

type memoryDelivery struct {
	queue *Memory
	job   Job

	mu      sync.Mutex
	settled bool
}

func (d *memoryDelivery) Job() Job { return d.job }

func (d *memoryDelivery) Ack() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.settled = true
	return nil
}

func (d *memoryDelivery) Requeue(attempt int) error {
	d.mu.Lock()
	if d.settled {
		d.mu.Unlock()
		return nil
	}
	d.settled = true
	d.mu.Unlock()

	job := d.job
	job.Attempt = attempt
	return d.queue.Publish(context.Background(), job)
}

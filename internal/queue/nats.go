package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConfig configures the JetStream-backed queue
type NATSConfig struct {
	URL          string
	Stream       string
	Subject      string
	Durable      string
	FetchTimeout time.Duration
}

// NATS consumes jobs from a JetStream pull subscription and publishes
// requeues back onto the same subject.
type NATS struct {
	nc  *nats.Conn
	js  nats.JetStreamContext
	sub *nats.Subscription
	cfg NATSConfig
}

// NewNATS connects, ensures the stream exists, and opens the durable
// pull subscription.
func NewNATS(cfg NATSConfig) (*NATS, error) {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 5 * time.Second
	}

	nc, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Name("agentrunner-worker"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to queue: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to open jetstream context: %w", err)
	}

	if _, err := js.StreamInfo(cfg.Stream); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			nc.Close()
			return nil, fmt.Errorf("failed to look up stream: %w", err)
		}
		_, err = js.AddStream(&nats.StreamConfig{
			Name:      cfg.Stream,
			Subjects:  []string{cfg.Subject},
			Retention: nats.WorkQueuePolicy,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to create stream: %w", err)
		}
	}

	sub, err := js.PullSubscribe(cfg.Subject, cfg.Durable, nats.ManualAck())
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to open pull subscription: %w", err)
	}

	return &NATS{nc: nc, js: js, sub: sub, cfg: cfg}, nil
}

// Conn exposes the underlying connection for collaborators that share
// it (the status reporter).
func (q *NATS) Conn() *nats.Conn { return q.nc }

// Publish submits a job to the queue
func (q *NATS) Publish(ctx context.Context, job Job) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}
	if job.Attempt <= 0 {
		job.Attempt = 1
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	_, err = q.js.Publish(q.cfg.Subject, data, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}
	return nil
}

// Receive fetches the next delivery, blocking until one arrives or ctx
// is done.
func (q *NATS) Receive(ctx context.Context) (Delivery, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		msgs, err := q.sub.Fetch(1, nats.MaxWait(q.cfg.FetchTimeout))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			if errors.Is(err, nats.ErrConnectionClosed) {
				return nil, ErrClosed
			}
			return nil, fmt.Errorf("fetch failed: %w", err)
		}
		if len(msgs) == 0 {
			continue
		}

		msg := msgs[0]
		var job Job
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			// Poison message: settle it so it does not loop forever
			msg.Term()
			continue
		}
		return &natsDelivery{queue: q, msg: msg, job: job}, nil
	}
}

// Close drains the connection
func (q *NATS) Close() error {
	return q.nc.Drain()
}

type natsDelivery struct {
	queue *NATS
	msg   *nats.Msg
	job   Job
}

func (d *natsDelivery) Job() Job { return d.job }

func (d *natsDelivery) Ack() error {
	return d.msg.Ack()
}

// Requeue republishes the job with the updated attempt count and acks
// the original delivery, so the attempt counter survives redelivery.
func (d *natsDelivery) Requeue(attempt int) error {
	job := d.job
	job.Attempt = attempt

	if err := d.queue.Publish(context.Background(), job); err != nil {
		// Leave the original unacked so JetStream redelivers it
		return err
	}
	return d.msg.Ack()
}

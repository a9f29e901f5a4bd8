package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hollowaylabs/agentrunner/internal/logging"
	"github.com/hollowaylabs/agentrunner/internal/monitoring"
	"github.com/hollowaylabs/agentrunner/internal/queue"
	"github.com/hollowaylabs/agentrunner/internal/sandbox"
	"github.com/hollowaylabs/agentrunner/internal/status"
)

// ConsumerConfig configures job consumption
type ConsumerConfig struct {
	// Concurrency bounds simultaneous runs; sized to the pool's maximum
	// so no more jobs are accepted than there are sandboxes
	Concurrency int
	// MaxAttempts is the per-job attempt budget before a run is
	// reported permanently failed
	MaxAttempts int
}

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	return c
}

// Consumer bridges the durable job queue to the sandbox pool. It
// deduplicates redeliveries by run id, dispatches to a bounded set of
// executors, and settles every delivery exactly one way: acknowledged
// on a terminal result, or explicitly requeued.
type Consumer struct {
	queue    queue.Consumer
	pool     *sandbox.Pool
	reporter status.Reporter
	metrics  *monitoring.Metrics
	logger   *logging.Logger
	cfg      ConsumerConfig

	mu       sync.Mutex
	inflight map[string]struct{}

	sem chan struct{}
	wg  sync.WaitGroup
}

// NewConsumer creates a consumer
func NewConsumer(q queue.Consumer, pool *sandbox.Pool, reporter status.Reporter, metrics *monitoring.Metrics, logger *logging.Logger, cfg ConsumerConfig) *Consumer {
	cfg = cfg.withDefaults()
	return &Consumer{
		queue:    q,
		pool:     pool,
		reporter: reporter,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		inflight: make(map[string]struct{}),
		sem:      make(chan struct{}, cfg.Concurrency),
	}
}

// Run consumes deliveries until ctx is cancelled, then waits for every
// in-flight run to release its sandbox and requeue. No job is silently
// lost on worker shutdown: each unsettled delivery is either requeued
// by its executor path or redelivered by the queue.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("Job consumer started",
		zap.Int("concurrency", c.cfg.Concurrency),
		zap.Int("max_attempts", c.cfg.MaxAttempts),
	)

receive:
	for {
		d, err := c.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			c.logger.Error("Queue receive failed", zap.Error(err))
			select {
			case <-time.After(time.Second):
				continue
			case <-ctx.Done():
				break receive
			}
		}

		c.metrics.IncJobsReceived()
		job := d.Job()

		if job.RunID == "" {
			// Malformed envelope; nothing to execute or report against
			c.logger.Warn("Discarding job without run id")
			if err := d.Ack(); err != nil {
				c.logger.Error("Ack failed", zap.Error(err))
			}
			continue
		}
		if job.Attempt <= 0 {
			job.Attempt = 1
		}

		if !c.markInflight(job.RunID) {
			// Redelivery of a run that is currently executing: settle
			// the duplicate, the in-flight run will report
			c.logger.Debug("Duplicate delivery discarded",
				zap.String("run_id", job.RunID),
				zap.Int("attempt", job.Attempt),
			)
			c.metrics.IncJobsDeduped()
			if err := d.Ack(); err != nil {
				c.logger.Error("Ack failed", zap.String("run_id", job.RunID), zap.Error(err))
			}
			continue
		}

		if job.Attempt > c.cfg.MaxAttempts {
			c.reportTerminal(ctx, job, status.PermanentlyFailed, nil, "attempt budget exhausted")
			c.metrics.RecordJobOutcome("permanently_failed", 0)
			d.Ack()
			c.clearInflight(job.RunID)
			continue
		}

		select {
		case c.sem <- struct{}{}:
		case <-ctx.Done():
			// Shutting down before dispatch: the attempt was not
			// consumed
			c.requeue(d, job, job.Attempt)
			break receive
		}

		c.wg.Add(1)
		go c.handle(ctx, d, job)
	}

	c.wg.Wait()
	c.logger.Info("Job consumer drained")
	return ctx.Err()
}

// handle drives one delivery to settlement.
// Settlement owns the in-flight mark: requeue paths clear it before
// republishing, terminal paths after acking. A deferred clear here
// would race the redelivery of a requeued attempt and delete the new
// attempt's mark.
func (c *Consumer) handle(ctx context.Context, d queue.Delivery, job queue.Job) {
	defer c.wg.Done()
	defer func() { <-c.sem }()

	exec := NewExecutor(c.pool, c.logger)
	start := time.Now()
	out := exec.Execute(ctx, job)
	elapsed := time.Since(start)

	switch {
	case out.State == RunSucceeded:
		c.reportTerminal(ctx, job, status.Succeeded, out.Result, "")
		c.metrics.RecordJobOutcome("succeeded", elapsed)
		if err := d.Ack(); err != nil {
			c.logger.Error("Ack failed", zap.String("run_id", job.RunID), zap.Error(err))
		}
		c.clearInflight(job.RunID)

	case out.Shutdown:
		// Worker restart: requeue without consuming the attempt
		c.metrics.RecordJobOutcome("requeued", elapsed)
		c.requeue(d, job, job.Attempt)

	case out.Requeue:
		c.settleRetryable(ctx, d, job, out, elapsed)

	default:
		// Job-level fault: terminal on the final attempt, otherwise the
		// remaining budget covers another try
		if job.Attempt < c.cfg.MaxAttempts {
			c.logger.Warn("Run faulted, retrying",
				zap.String("run_id", job.RunID),
				zap.Int("attempt", job.Attempt),
				zap.Error(out.Err),
			)
			c.metrics.RecordJobOutcome("requeued", elapsed)
			c.requeue(d, job, job.Attempt+1)
			return
		}
		c.reportTerminal(ctx, job, status.Failed, nil, out.Err.Error())
		c.metrics.RecordJobOutcome("failed", elapsed)
		if err := d.Ack(); err != nil {
			c.logger.Error("Ack failed", zap.String("run_id", job.RunID), zap.Error(err))
		}
		c.clearInflight(job.RunID)
	}
}

// settleRetryable handles capacity- and infrastructure-caused failures:
// requeue with an incremented attempt while budget remains, otherwise
// report permanent failure.
func (c *Consumer) settleRetryable(ctx context.Context, d queue.Delivery, job queue.Job, out Outcome, elapsed time.Duration) {
	next := job.Attempt + 1
	if next > c.cfg.MaxAttempts {
		c.reportTerminal(ctx, job, status.PermanentlyFailed, nil, out.Err.Error())
		c.metrics.RecordJobOutcome("permanently_failed", elapsed)
		if err := d.Ack(); err != nil {
			c.logger.Error("Ack failed", zap.String("run_id", job.RunID), zap.Error(err))
		}
		c.clearInflight(job.RunID)
		return
	}

	c.logger.Info("Run requeued",
		zap.String("run_id", job.RunID),
		zap.Int("attempt", next),
		zap.Error(out.Err),
	)
	c.metrics.RecordJobOutcome("requeued", elapsed)
	c.requeue(d, job, next)
}

// requeue clears the in-flight mark before republishing so an
// immediate redelivery is not mistaken for a duplicate of the attempt
// that just finished.
func (c *Consumer) requeue(d queue.Delivery, job queue.Job, attempt int) {
	c.clearInflight(job.RunID)
	if err := d.Requeue(attempt); err != nil {
		c.logger.Error("Requeue failed", zap.String("run_id", job.RunID), zap.Error(err))
	}
}

func (c *Consumer) reportTerminal(ctx context.Context, job queue.Job, st status.State, result []byte, reason string) {
	err := c.reporter.Report(ctx, status.Status{
		RunID:      job.RunID,
		State:      st,
		Result:     result,
		Reason:     reason,
		Attempt:    job.Attempt,
		FinishedAt: time.Now(),
	})
	if err != nil {
		c.logger.Error("Status report failed",
			zap.String("run_id", job.RunID),
			zap.String("state", string(st)),
			zap.Error(err),
		)
	}
}

// markInflight registers a run id; false means it is already executing
func (c *Consumer) markInflight(runID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.inflight[runID]; ok {
		return false
	}
	c.inflight[runID] = struct{}{}
	c.metrics.SetRunsInFlight(len(c.inflight))
	return true
}

func (c *Consumer) clearInflight(runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.inflight, runID)
	c.metrics.SetRunsInFlight(len(c.inflight))
}

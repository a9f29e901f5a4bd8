package sandbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hollowaylabs/agentrunner/internal/logging"
	"github.com/hollowaylabs/agentrunner/internal/monitoring"
	"github.com/hollowaylabs/agentrunner/internal/shared/id"
)

// Factory creates unstarted sandbox processes
type Factory interface {
	New() *Process
}

// PoolConfig configures the sandbox pool
type PoolConfig struct {
	// MaxSandboxes bounds the number of instances, counting in-flight
	// creations
	MaxSandboxes int
	// MinReady instances are created at startup
	MinReady int
	// AcquireTimeout bounds Acquire when the caller's context carries
	// no tighter deadline
	AcquireTimeout time.Duration
	// BootstrapTimeout bounds launch + readiness polling of one instance
	BootstrapTimeout time.Duration
	// ReplaceBackoff delays re-creation after a failed bootstrap
	ReplaceBackoff time.Duration
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.MaxSandboxes <= 0 {
		c.MaxSandboxes = 4
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 30 * time.Second
	}
	if c.BootstrapTimeout <= 0 {
		c.BootstrapTimeout = 90 * time.Second
	}
	if c.ReplaceBackoff <= 0 {
		c.ReplaceBackoff = time.Second
	}
	return c
}

// Pool maintains a bounded set of sandbox instances and satisfies
// acquisition requests. It exclusively owns every Process it creates;
// callers hold a borrowed reference between Acquire and Release.
type Pool struct {
	cfg     PoolConfig
	factory Factory
	logger  *logging.Logger
	metrics *monitoring.Metrics

	mu      sync.Mutex
	procs   map[id.SandboxID]*Process
	pending int
	waiters []chan *Process
	closed  bool
}

// NewPool creates a sandbox pool
func NewPool(cfg PoolConfig, factory Factory, logger *logging.Logger, metrics *monitoring.Metrics) *Pool {
	return &Pool{
		cfg:     cfg.withDefaults(),
		factory: factory,
		logger:  logger,
		metrics: metrics,
		procs:   make(map[id.SandboxID]*Process),
	}
}

// WarmStart eagerly creates the configured minimum of ready instances
// so the first jobs do not pay cold-start latency.
func (pl *Pool) WarmStart() {
	n := pl.cfg.MinReady
	if n > pl.cfg.MaxSandboxes {
		n = pl.cfg.MaxSandboxes
	}

	pl.mu.Lock()
	for i := 0; i < n; i++ {
		pl.pending++
		go pl.createOne()
	}
	pl.mu.Unlock()
}

// Acquire returns a Ready instance, creating one if the pool is below
// its maximum, or blocks until a release. On timeout it fails with
// ErrPoolExhausted; the caller must requeue its job rather than drop it.
func (pl *Pool) Acquire(ctx context.Context) (*Process, error) {
	start := time.Now()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, pl.cfg.AcquireTimeout)
		defer cancel()
	}

	pl.mu.Lock()
	if pl.closed {
		pl.mu.Unlock()
		return nil, ErrPoolClosed
	}

	// Fast path: an instance is Ready right now
	for _, p := range pl.procs {
		if p.Acquire() == nil {
			pl.mu.Unlock()
			pl.metrics.RecordAcquireWait(time.Since(start))
			return p, nil
		}
	}

	// Queue behind capacity; trigger a creation if below maximum
	w := make(chan *Process, 1)
	pl.waiters = append(pl.waiters, w)
	if len(pl.procs)+pl.pending < pl.cfg.MaxSandboxes {
		pl.pending++
		go pl.createOne()
	}
	pl.mu.Unlock()

	select {
	case p, ok := <-w:
		if !ok {
			return nil, ErrPoolClosed
		}
		pl.metrics.RecordAcquireWait(time.Since(start))
		return p, nil
	case <-ctx.Done():
		pl.removeWaiter(w)
		// A hand-off may have raced the cancellation
		select {
		case p, ok := <-w:
			if ok {
				pl.metrics.RecordAcquireWait(time.Since(start))
				return p, nil
			}
		default:
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrPoolExhausted
		}
		return nil, ctx.Err()
	}
}

// Release returns a borrowed instance. If the caller observed a fault
// (healthy=false) the instance is drained, terminated, and replaced;
// no sandbox is reused after a reported fault. Releasing an id the pool
// no longer owns is a no-op.
func (pl *Pool) Release(sid id.SandboxID, healthy bool) {
	pl.mu.Lock()
	p, ok := pl.procs[sid]
	if !ok {
		pl.mu.Unlock()
		return
	}

	if !healthy {
		delete(pl.procs, sid)
		pl.mu.Unlock()

		pl.logger.Warn("Sandbox released unhealthy, discarding",
			zap.String("sandbox_id", sid.String()),
		)
		pl.metrics.RecordSandboxFailure("fault")
		go p.Terminate()
		pl.replaceAsync()
		pl.updateGauges()
		return
	}
	pl.mu.Unlock()

	p.Release()
	pl.offer(p)
	pl.updateGauges()
}

// Size returns owned instances plus creations in flight
func (pl *Pool) Size() int {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return len(pl.procs) + pl.pending
}

// Close terminates every instance and wakes all waiters with
// ErrPoolClosed.
func (pl *Pool) Close() {
	pl.mu.Lock()
	if pl.closed {
		pl.mu.Unlock()
		return
	}
	pl.closed = true
	procs := make([]*Process, 0, len(pl.procs))
	for _, p := range pl.procs {
		procs = append(procs, p)
	}
	pl.procs = make(map[id.SandboxID]*Process)
	waiters := pl.waiters
	pl.waiters = nil
	pl.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
	for _, p := range procs {
		p.Terminate()
	}

	pl.logger.Info("Sandbox pool closed", zap.Int("terminated", len(procs)))
}

// createOne bootstraps a new instance: launch, poll to Ready, pre-warm,
// then register and offer it. Bootstrap failures remove the instance
// and, while demand exists, schedule another attempt after a backoff.
func (pl *Pool) createOne() {
	p := pl.factory.New()
	p.SetOnLost(pl.handleLost)

	ctx, cancel := context.WithTimeout(context.Background(), pl.cfg.BootstrapTimeout)
	defer cancel()

	err := p.Start(ctx)
	if err == nil {
		err = p.WaitReady(ctx)
	}
	if err != nil {
		pl.logger.Warn("Sandbox bootstrap failed",
			zap.String("sandbox_id", p.ID().String()),
			zap.Error(err),
		)
		pl.metrics.RecordSandboxFailure(bootstrapFailureReason(err))
		p.Terminate()

		pl.mu.Lock()
		pl.pending--
		retry := !pl.closed && len(pl.waiters) > 0
		pl.mu.Unlock()

		if retry {
			time.Sleep(pl.cfg.ReplaceBackoff)
			pl.replaceAsync()
		}
		return
	}

	p.PreWarm(ctx)

	pl.mu.Lock()
	if pl.closed {
		pl.pending--
		pl.mu.Unlock()
		p.Terminate()
		return
	}
	pl.procs[p.ID()] = p
	pl.pending--
	pl.mu.Unlock()

	pl.metrics.IncSandboxesCreated()
	pl.logger.Info("Sandbox ready",
		zap.String("sandbox_id", p.ID().String()),
		zap.Bool("prewarmed", p.PreWarmed()),
	)

	pl.offer(p)
	pl.updateGauges()
}

// handleLost removes an instance the probe loop declared Failed and
// eagerly starts a replacement so capacity recovers without waiting for
// the next acquisition request.
func (pl *Pool) handleLost(sid id.SandboxID) {
	pl.mu.Lock()
	p, ok := pl.procs[sid]
	if ok {
		delete(pl.procs, sid)
	}
	closed := pl.closed
	pl.mu.Unlock()

	if !ok {
		return
	}

	pl.metrics.RecordSandboxFailure("probe")
	go p.Terminate()
	if !closed {
		pl.replaceAsync()
	}
	pl.updateGauges()
}

// replaceAsync starts a background creation if the pool is below
// maximum capacity.
func (pl *Pool) replaceAsync() {
	pl.mu.Lock()
	if pl.closed || len(pl.procs)+pl.pending >= pl.cfg.MaxSandboxes {
		pl.mu.Unlock()
		return
	}
	pl.pending++
	pl.mu.Unlock()

	pl.metrics.IncSandboxReplacements()
	go pl.createOne()
}

// offer hands a Ready instance to the oldest waiter, acquiring it on
// the waiter's behalf so no two owners can race for it. The waiter is
// dequeued only once the acquire succeeds: if a fast-path scan stole
// the instance, or it failed meanwhile, the waiter stays queued for
// the next offer (the thief's release or the failure's replacement).
func (pl *Pool) offer(p *Process) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if len(pl.waiters) == 0 {
		return
	}
	if p.Acquire() != nil {
		return
	}
	w := pl.waiters[0]
	pl.waiters = pl.waiters[1:]
	w <- p
}

func (pl *Pool) removeWaiter(w chan *Process) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	for i, candidate := range pl.waiters {
		if candidate == w {
			pl.waiters = append(pl.waiters[:i], pl.waiters[i+1:]...)
			return
		}
	}
}

func (pl *Pool) updateGauges() {
	pl.mu.Lock()
	active := len(pl.procs)
	ready := 0
	for _, p := range pl.procs {
		if p.State() == StateReady {
			ready++
		}
	}
	pl.mu.Unlock()

	pl.metrics.SetSandboxCounts(active, ready)
}

func bootstrapFailureReason(err error) string {
	var launchErr *LaunchError
	if errors.As(err, &launchErr) {
		return "launch"
	}
	if errors.Is(err, ErrHealthCheckTimeout) {
		return "health"
	}
	return "bootstrap"
}

package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hollowaylabs/agentrunner/internal/logging"
	"github.com/hollowaylabs/agentrunner/internal/resilience"
	"github.com/hollowaylabs/agentrunner/internal/shared/id"
)

// ProcessConfig configures one sandbox instance's supervision
type ProcessConfig struct {
	// HealthMaxAttempts bounds the initial readiness poll
	HealthMaxAttempts int
	// HealthInterval is the fixed delay between readiness poll attempts
	HealthInterval time.Duration
	// ProbeInterval is the continuous liveness probe period once Ready
	ProbeInterval time.Duration
	// ProbeFailureLimit is consecutive probe failures before the
	// instance is declared lost
	ProbeFailureLimit int
	// PreWarmURL is the no-op navigation target used to warm the runtime
	PreWarmURL string
}

func (c ProcessConfig) withDefaults() ProcessConfig {
	if c.HealthMaxAttempts <= 0 {
		c.HealthMaxAttempts = 30
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 2 * time.Second
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = 5 * time.Second
	}
	if c.ProbeFailureLimit <= 0 {
		c.ProbeFailureLimit = 3
	}
	if c.PreWarmURL == "" {
		c.PreWarmURL = "about:blank"
	}
	return c
}

// Process supervises a single automation-service instance end to end:
// launch, readiness polling, pre-warm, exclusive hand-out, continuous
// liveness probing, and termination.
type Process struct {
	sid      id.SandboxID
	port     int
	client   *Client
	launcher Launcher
	cfg      ProcessConfig
	logger   *logging.Logger

	mu                  sync.Mutex
	state               State
	handle              Handle
	prewarmed           bool
	lastHealthAt        time.Time
	consecutiveFailures int
	onLost              func(id.SandboxID)

	// lost is closed exactly once when probes force Failed; executors
	// select on it to detect forced release mid-run
	lost      chan struct{}
	lostOnce  sync.Once
	stopProbe chan struct{}
	probeOnce sync.Once
}

// NewProcess creates an unstarted sandbox instance
func NewProcess(sid id.SandboxID, port int, client *Client, launcher Launcher, cfg ProcessConfig, logger *logging.Logger) *Process {
	return &Process{
		sid:       sid,
		port:      port,
		client:    client,
		launcher:  launcher,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		state:     StateStarting,
		lost:      make(chan struct{}),
		stopProbe: make(chan struct{}),
	}
}

// ID returns the sandbox identifier
func (p *Process) ID() id.SandboxID { return p.sid }

// Port returns the instance port
func (p *Process) Port() int { return p.port }

// Client returns the automation client bound to this instance
func (p *Process) Client() *Client { return p.client }

// State returns the current lifecycle state
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// PreWarmed reports whether the best-effort warm-up succeeded
func (p *Process) PreWarmed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prewarmed
}

// Lost is closed when the instance is declared lost mid-use
func (p *Process) Lost() <-chan struct{} { return p.lost }

// SetOnLost registers the pool callback fired when probes force Failed.
// Must be set before Start.
func (p *Process) SetOnLost(fn func(id.SandboxID)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onLost = fn
}

// Start launches the underlying process.
func (p *Process) Start(ctx context.Context) error {
	p.setState(StateStarting)

	handle, err := p.launcher.Launch(ctx, p.sid, p.port)
	if err != nil {
		p.setState(StateFailed)
		return err
	}

	p.mu.Lock()
	p.handle = handle
	p.mu.Unlock()

	p.logger.Info("Sandbox process launched",
		zap.String("sandbox_id", p.sid.String()),
		zap.Int("port", p.port),
	)
	return nil
}

// WaitReady polls the liveness endpoint at a fixed interval until it
// confirms, the attempt budget is spent, or ctx is cancelled. Failure
// transitions to Failed with ErrHealthCheckTimeout; the pool replaces
// the instance rather than crashing the worker.
func (p *Process) WaitReady(ctx context.Context) error {
	p.setState(StateHealthPolling)

	retry := resilience.NewRetry(resilience.RetrySettings{
		MaxAttempts: p.cfg.HealthMaxAttempts,
		Interval:    p.cfg.HealthInterval,
		OnRetry: func(attempt int, err error) {
			p.logger.Debug("Sandbox not healthy yet",
				zap.String("sandbox_id", p.sid.String()),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		},
	})

	if err := retry.Do(ctx, p.client.Health); err != nil {
		p.setState(StateFailed)
		return fmt.Errorf("%w: %w", ErrHealthCheckTimeout, err)
	}

	p.mu.Lock()
	p.lastHealthAt = time.Now()
	p.consecutiveFailures = 0
	p.mu.Unlock()
	return nil
}

// PreWarm issues a blank navigation once health is confirmed, then
// transitions to Ready and starts the continuous liveness probe.
// Pre-warming is a best-effort latency optimization: failure is logged
// and never blocks Ready.
func (p *Process) PreWarm(ctx context.Context) {
	p.setState(StatePreWarming)

	if _, err := p.client.Do(ctx, "navigate_to", map[string]string{"url": p.cfg.PreWarmURL}); err != nil {
		p.logger.Warn("Sandbox pre-warm failed, handing out cold",
			zap.String("sandbox_id", p.sid.String()),
			zap.Error(err),
		)
	} else {
		p.mu.Lock()
		p.prewarmed = true
		p.mu.Unlock()
	}

	p.setState(StateReady)
	go p.probeLoop()
}

// Acquire transitions Ready to InUse. Exactly one caller can hold the
// instance at a time.
func (p *Process) Acquire() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateReady {
		return fmt.Errorf("%w: sandbox %s is %s", ErrNotReady, p.sid, p.state)
	}
	p.state = StateInUse
	return nil
}

// Release returns an InUse instance to Ready. Releasing an instance
// that failed mid-use is a no-op; the probe loop already settled it.
func (p *Process) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateInUse {
		p.state = StateReady
	}
}

// Terminate stops the underlying process and reclaims resources. Safe
// on every exit path, including instances that failed partway through
// Start or WaitReady.
func (p *Process) Terminate() {
	p.mu.Lock()
	if p.state == StateTerminated {
		p.mu.Unlock()
		return
	}
	if !p.state.terminal() {
		p.state = StateDraining
	}
	handle := p.handle
	p.handle = nil
	p.mu.Unlock()

	p.probeOnce.Do(func() { close(p.stopProbe) })

	if handle != nil {
		if err := handle.Stop(); err != nil {
			p.logger.Warn("Sandbox process stop failed",
				zap.String("sandbox_id", p.sid.String()),
				zap.Error(err),
			)
		}
	}

	p.mu.Lock()
	if p.state != StateFailed {
		p.state = StateTerminated
	}
	p.mu.Unlock()

	p.logger.Info("Sandbox terminated", zap.String("sandbox_id", p.sid.String()))
}

// probeLoop runs the continuous liveness probe once the instance is
// Ready. ProbeFailureLimit consecutive failures force Failed regardless
// of current use.
func (p *Process) probeLoop() {
	ticker := time.NewTicker(p.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopProbe:
			return
		case <-ticker.C:
			err := p.client.Health(context.Background())

			p.mu.Lock()
			if p.state.terminal() {
				p.mu.Unlock()
				return
			}
			if err != nil {
				p.consecutiveFailures++
				failures := p.consecutiveFailures
				p.mu.Unlock()

				p.logger.Warn("Sandbox liveness probe failed",
					zap.String("sandbox_id", p.sid.String()),
					zap.Int("consecutive_failures", failures),
					zap.Error(err),
				)

				if failures >= p.cfg.ProbeFailureLimit {
					p.forceFail()
					return
				}
				continue
			}
			p.consecutiveFailures = 0
			p.lastHealthAt = time.Now()
			p.mu.Unlock()
		}
	}
}

// forceFail transitions to Failed, notifies any bound executor through
// the lost channel, and tells the pool to remove and replace the
// instance.
func (p *Process) forceFail() {
	p.mu.Lock()
	if p.state.terminal() {
		p.mu.Unlock()
		return
	}
	prev := p.state
	p.state = StateFailed
	onLost := p.onLost
	p.mu.Unlock()

	p.logger.Error("Sandbox declared lost",
		zap.String("sandbox_id", p.sid.String()),
		zap.String("previous_state", prev.String()),
	)

	p.lostOnce.Do(func() { close(p.lost) })
	if onLost != nil {
		onLost(p.sid)
	}
}

// setState applies an unconditional transition, except that terminal
// states are never overwritten.
func (p *Process) setState(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.terminal() {
		return
	}
	p.state = s
}

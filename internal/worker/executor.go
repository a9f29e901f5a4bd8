package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hollowaylabs/agentrunner/internal/logging"
	"github.com/hollowaylabs/agentrunner/internal/queue"
	"github.com/hollowaylabs/agentrunner/internal/sandbox"
)

// RunState tracks an executor through its lifecycle
type RunState int32

const (
	RunPending RunState = iota
	RunAcquiring
	RunExecuting
	RunSucceeded
	RunFailed
	RunRequeued
)

// String returns the string representation of the state
func (s RunState) String() string {
	switch s {
	case RunPending:
		return "pending"
	case RunAcquiring:
		return "acquiring"
	case RunExecuting:
		return "executing"
	case RunSucceeded:
		return "succeeded"
	case RunFailed:
		return "failed"
	case RunRequeued:
		return "requeued"
	default:
		return "unknown"
	}
}

// Fault is a job-level execution failure. The sandbox that produced it
// is released unhealthy and never reused.
type Fault struct {
	Op  string
	Err error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("execution fault in %s: %v", f.Op, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// Step is one automation operation from the job payload.
type Step struct {
	Op     string          `json:"op"`
	Params json.RawMessage `json:"params"`
}

// Outcome is the terminal result of one execution attempt.
type Outcome struct {
	State  RunState
	Result []byte
	Err    error
	// Requeue marks retryable outcomes: the job made no observable
	// error and must go back on the queue
	Requeue bool
	// Shutdown marks requeues caused by worker cancellation; these do
	// not consume an attempt
	Shutdown bool
}

// Executor drives one job from sandbox acquisition to a terminal
// result. Side effects are confined to the bound sandbox; the sandbox
// is released exactly once on every exit path.
type Executor struct {
	pool   *sandbox.Pool
	logger *logging.Logger

	state RunState
}

// NewExecutor creates an executor for one job
func NewExecutor(pool *sandbox.Pool, logger *logging.Logger) *Executor {
	return &Executor{pool: pool, logger: logger, state: RunPending}
}

// State returns the executor's last recorded state
func (e *Executor) State() RunState { return e.state }

// Execute runs the job to a terminal state.
func (e *Executor) Execute(ctx context.Context, job queue.Job) Outcome {
	// An undecodable payload is a job fault; it never earns a sandbox
	steps, err := decodeSteps(job.Payload)
	if err != nil {
		e.state = RunFailed
		return Outcome{State: RunFailed, Err: &Fault{Op: "decode", Err: err}}
	}

	e.state = RunAcquiring

	proc, err := e.pool.Acquire(ctx)
	if err != nil {
		// PoolExhausted, pool closed, or shutdown: nothing was bound,
		// nothing to release
		e.state = RunRequeued
		return Outcome{
			State:    RunRequeued,
			Err:      err,
			Requeue:  true,
			Shutdown: ctx.Err() != nil && !isPoolExhausted(err),
		}
	}

	sid := proc.ID()
	healthy := true
	released := false
	release := func() {
		if !released {
			released = true
			e.pool.Release(sid, healthy)
		}
	}
	defer release()

	e.state = RunExecuting

	// Cancel in-flight automation calls the moment the sandbox is lost
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	go func() {
		select {
		case <-proc.Lost():
			cancelRun()
		case <-runCtx.Done():
		}
	}()

	var last []byte
	for _, step := range steps {
		res, err := proc.Client().Do(runCtx, step.Op, step.Params)
		if err == nil {
			last = res
			continue
		}

		if lost(proc) {
			// Forced release already removed the sandbox from the
			// pool; the job made no observable error
			e.logger.Warn("Sandbox lost mid-run, requeuing",
				zap.String("run_id", job.RunID),
				zap.String("sandbox_id", sid.String()),
			)
			e.state = RunRequeued
			return Outcome{State: RunRequeued, Err: sandbox.ErrSandboxLost, Requeue: true}
		}

		if ctx.Err() != nil {
			// Worker shutdown: abort, release unhealthy, requeue
			healthy = false
			e.state = RunRequeued
			return Outcome{State: RunRequeued, Err: ctx.Err(), Requeue: true, Shutdown: true}
		}

		healthy = false
		e.state = RunFailed
		return Outcome{State: RunFailed, Err: &Fault{Op: step.Op, Err: err}}
	}

	e.state = RunSucceeded
	return Outcome{State: RunSucceeded, Result: last}
}

func decodeSteps(payload []byte) ([]Step, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	var steps []Step
	if err := json.Unmarshal(payload, &steps); err != nil {
		return nil, fmt.Errorf("failed to decode steps: %w", err)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("payload contains no steps")
	}
	for i, step := range steps {
		if step.Op == "" {
			return nil, fmt.Errorf("step %d has no op", i)
		}
	}
	return steps, nil
}

func lost(proc *sandbox.Process) bool {
	select {
	case <-proc.Lost():
		return true
	default:
		return false
	}
}

func isPoolExhausted(err error) bool {
	return errors.Is(err, sandbox.ErrPoolExhausted)
}

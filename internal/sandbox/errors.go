package sandbox

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady indicates an acquire on an instance that is not Ready.
	// This is a contract violation, not an operational condition.
	ErrNotReady = errors.New("sandbox is not ready")

	// ErrHealthCheckTimeout indicates the liveness endpoint never
	// confirmed within the attempt budget. Retryable at pool level: the
	// instance is replaced, the worker keeps running.
	ErrHealthCheckTimeout = errors.New("sandbox health check timed out")

	// ErrPoolExhausted indicates no sandbox became available within the
	// acquisition timeout. The caller must requeue its job.
	ErrPoolExhausted = errors.New("sandbox pool exhausted")

	// ErrPoolClosed indicates the pool is shutting down.
	ErrPoolClosed = errors.New("sandbox pool is closed")

	// ErrSandboxLost indicates the bound sandbox failed its liveness
	// probes mid-run and was forcibly released. The job made no
	// observable error and must be requeued.
	ErrSandboxLost = errors.New("sandbox lost during execution")
)

// LaunchError indicates the underlying automation-service process could
// not be created. Fatal to one instance, never to the worker.
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("sandbox launch failed: %v", e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

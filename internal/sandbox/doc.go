/*
Package sandbox manages the lifecycle of automation-service instances.

# Overview

A sandbox is one locally launched automation-service process plus the
HTTP client bound to it. Each instance moves through a strict lifecycle:

	Starting -> HealthPolling -> PreWarming -> Ready <-> InUse -> Draining -> Terminated

Failed is reachable from every non-terminal state: launch errors, a
spent readiness budget, or consecutive liveness probe failures all land
there. Failed and Terminated are terminal and never overwritten.

# Components

  - Process: supervises a single instance end to end (launch, readiness
    polling, pre-warm, exclusive hand-out, continuous probing,
    termination)
  - Pool: maintains a bounded set of instances, queues acquisition
    requests, and replaces failed instances eagerly
  - Client: the per-instance HTTP client with rate limiting and a
    circuit breaker on automation calls
  - Launcher: starts and stops the underlying OS process

# Pool Semantics

Acquire hands out exactly one holder per instance. When every instance
is busy and the pool is at capacity, callers queue; a bounded wait ends
in ErrPoolExhausted so the job can be requeued instead of dropped.
Instances released unhealthy are never reused: they are drained,
terminated, and replaced in the background.

# Liveness

Once Ready, every instance is probed continuously. Reaching the
consecutive-failure limit forces the instance to Failed even while a
caller holds it; the caller observes the forced release on the
process's Lost channel and must treat the run as retryable.

# Usage

	pool := sandbox.NewPool(cfg, factory, logger, metrics)
	pool.WarmStart()

	proc, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	result, err := proc.Client().Do(ctx, "navigate_to", params)
	pool.Release(proc.ID(), err == nil)
*/
package sandbox

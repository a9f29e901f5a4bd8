/*
Package worker consumes agent run jobs and executes them in sandboxes.

# Overview

The worker bridges the durable job queue to the sandbox pool. A
Consumer receives deliveries, deduplicates redeliveries by run id, and
dispatches each job to an Executor under a concurrency bound sized to
the pool. An Executor drives one job through:

	Pending -> Acquiring -> Executing -> Succeeded | Failed | Requeued

# Settlement

Every delivery is settled exactly one way:

  - Succeeded or a terminal failure: reported on the status channel,
    then acknowledged
  - Retryable outcomes (pool exhausted, sandbox lost mid-run, job
    fault with budget remaining): requeued with the attempt count
    incremented
  - Worker shutdown: requeued with the same attempt count, since the
    attempt was not meaningfully consumed

A job whose attempt count exceeds the configured budget is reported
permanently failed without touching a sandbox.

# Fault Isolation

A sandbox that produced an execution fault is released unhealthy and
never reused; the pool replaces it. A sandbox declared lost by liveness
probes cancels its in-flight automation calls, and the run is requeued
because the job itself observed no error.
*/
package worker

// Package main is the entry point for the agent-run orchestration worker.
//
// The worker consumes agent-run jobs from a durable queue and executes
// them against a pool of sandboxed browser-automation processes, each
// health-checked and pre-warmed before it accepts real work.
//
// Architecture:
//
//	Submitter -> Queue (NATS JetStream) -> Worker -> Sandbox pool (automation-service processes)
//	                                    -> Status channel (runs.status.<run_id>)
//
// The worker provides:
//   - Bounded sandbox pool with crash detection and eager replacement
//   - At-least-once job consumption with run-id deduplication
//   - Explicit requeue with attempt budget for retryable failures
//   - Prometheus metrics on a dedicated listener
//
// Configuration is environment-only (12-factor); see internal/config.
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown; in-flight runs release their
//     sandboxes and requeue rather than acknowledge
package main

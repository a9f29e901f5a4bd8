/*
Package monitoring provides Prometheus metrics for the worker.

# Overview

This package tracks sandbox lifecycle events, job throughput, and run
latency. All record helpers are safe on a nil *Metrics so wiring
metrics stays optional in tests and embedded deployments.

# Metrics

  - Sandbox gauges and counters (active, ready, created, failed by
    reason, replacements)
  - Job counters (received, deduplicated, completed by outcome)
  - Run latency and sandbox acquisition wait histograms
  - Worker uptime

# Usage

	metrics := monitoring.NewMetrics()
	metrics.IncSandboxesCreated()
	metrics.RecordJobOutcome("succeeded", elapsed)

The collector registers on the default Prometheus registry; expose it
with the bundled Server:

	srv := monitoring.NewServer(cfg.Addr, logger)
	go srv.Run()
*/
package monitoring

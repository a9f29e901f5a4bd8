/*
Package resilience provides circuit breaker and bounded retry primitives.

# Overview

This package implements the circuit breaker pattern to prevent cascading
failures when a sandbox instance becomes unavailable or slow, and a
fixed-interval retry helper used for bounded polling loops such as sandbox
readiness checks.

# Circuit Breaker

Three-state breaker (Closed, Open, Half-Open) with configurable failure
thresholds, automatic state transitions, and state change callbacks:

	breaker := resilience.NewBreaker("automation", resilience.BreakerSettings{
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	result, err := breaker.Execute(func() (interface{}, error) {
		return client.Call()
	})

State transitions:

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open

# Retry

Fixed-interval retry with an attempt budget, for operations that are
expected to converge rather than flake:

	retry := resilience.NewRetry(resilience.RetrySettings{
		MaxAttempts: 30,
		Interval:    2 * time.Second,
	})

	err := retry.Do(ctx, func(ctx context.Context) error {
		return client.Health(ctx)
	})

When the budget is spent the returned error wraps both
ErrRetriesExhausted and the final attempt's error.
*/
package resilience

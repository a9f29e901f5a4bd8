package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/hollowaylabs/agentrunner/internal/resilience"
)

// ClientConfig configures the automation HTTP client for one instance
type ClientConfig struct {
	BaseURL        string
	HealthPath     string
	RequestTimeout time.Duration
	HealthTimeout  time.Duration
	RateLimit      float64 // automation requests per second, 0 = unlimited
}

// Client talks to a single automation-service instance. Automation
// operations go through transport retries, a rate limiter, and a
// circuit breaker; health probes go through none of them, because the
// polling loop around a probe is itself the retry unit.
type Client struct {
	ops     *resty.Client
	probe   *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	health  string
}

// NewClient creates a client bound to one instance's base URL
func NewClient(cfg ClientConfig) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 3 * time.Second
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/api"
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil // Disable logging

	ops := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.RequestTimeout).
		SetHeader("User-Agent", "agentrunner/1.0")
	ops.SetTransport(retryClient.HTTPClient.Transport)

	probe := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.HealthTimeout)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), int(cfg.RateLimit)+1)
	}

	breaker := resilience.NewBreaker("automation", resilience.BreakerSettings{
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		ops:     ops,
		probe:   probe,
		limiter: limiter,
		breaker: breaker,
		health:  cfg.HealthPath,
	}
}

// Health checks the liveness endpoint once. A 2xx within the health
// timeout signals a live instance.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.probe.R().SetContext(ctx).Get(c.health)
	if err != nil {
		return fmt.Errorf("liveness probe failed: %w", err)
	}
	if !is2xx(resp.StatusCode()) {
		return fmt.Errorf("liveness endpoint returned HTTP %d", resp.StatusCode())
	}
	return nil
}

// Do issues one automation operation (POST /api/automation/<op>) with a
// JSON body and returns the raw response body.
func (c *Client) Do(ctx context.Context, op string, params interface{}) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.ops.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(params).
			Post("/api/automation/" + op)
		if err != nil {
			return nil, err
		}
		if !is2xx(resp.StatusCode()) {
			return nil, fmt.Errorf("automation %s returned HTTP %d", op, resp.StatusCode())
		}
		return resp.Body(), nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]byte), nil
}

// BreakerState returns the automation circuit breaker state
func (c *Client) BreakerState() resilience.BreakerState {
	return c.breaker.State()
}

func is2xx(code int) bool {
	return code >= 200 && code < 300
}

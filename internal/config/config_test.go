package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Worker config
	assert.Equal(t, 4, cfg.Worker.MaxSandboxes)
	assert.Equal(t, 1, cfg.Worker.MinReady)
	assert.Equal(t, 3, cfg.Worker.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Worker.AcquireTimeout)
	assert.Equal(t, 20*time.Second, cfg.Worker.DrainTimeout)

	// Sandbox config
	assert.Equal(t, "automation-service", cfg.Sandbox.Command)
	assert.Equal(t, 9222, cfg.Sandbox.BasePort)
	assert.Equal(t, 100, cfg.Sandbox.PortSpan)
	assert.Equal(t, "/api", cfg.Sandbox.HealthPath)
	assert.Equal(t, 30, cfg.Sandbox.HealthMaxAttempts)
	assert.Equal(t, "about:blank", cfg.Sandbox.PreWarmURL)

	// Queue config
	assert.Equal(t, "nats://localhost:4222", cfg.Queue.URL)
	assert.Equal(t, "AGENT_RUNS", cfg.Queue.Stream)
	assert.Equal(t, "runs.jobs", cfg.Queue.Subject)
	assert.Equal(t, "agent-worker", cfg.Queue.Durable)

	// Status config
	assert.Equal(t, "runs.status", cfg.Status.SubjectPrefix)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	// Metrics config
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadOrDefault(t *testing.T) {
	// Should return defaults when no env vars set
	cfg := LoadOrDefault()

	assert.NotNil(t, cfg)
	assert.Equal(t, 4, cfg.Worker.MaxSandboxes)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"WORKER_MAX_SANDBOXES":    "8",
		"WORKER_MAX_ATTEMPTS":     "5",
		"WORKER_ACQUIRE_TIMEOUT":  "10s",
		"SANDBOX_COMMAND":         "/usr/local/bin/automation",
		"SANDBOX_BASE_PORT":       "10000",
		"SANDBOX_HEALTH_INTERVAL": "500ms",
		"QUEUE_URL":               "nats://queue:4222",
		"QUEUE_STREAM":            "RUNS",
		"STATUS_SUBJECT_PREFIX":   "status",
		"LOG_LEVEL":               "debug",
		"LOG_DEV":                 "true",
		"METRICS_ENABLED":         "false",
	}

	for key, value := range envVars {
		err := os.Setenv(key, value)
		require.NoError(t, err)
		defer os.Unsetenv(key)
	}

	cfg, err := Load()
	require.NoError(t, err)

	// Verify worker config
	assert.Equal(t, 8, cfg.Worker.MaxSandboxes)
	assert.Equal(t, 5, cfg.Worker.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Worker.AcquireTimeout)

	// Verify sandbox config
	assert.Equal(t, "/usr/local/bin/automation", cfg.Sandbox.Command)
	assert.Equal(t, 10000, cfg.Sandbox.BasePort)
	assert.Equal(t, 500*time.Millisecond, cfg.Sandbox.HealthInterval)

	// Verify queue config
	assert.Equal(t, "nats://queue:4222", cfg.Queue.URL)
	assert.Equal(t, "RUNS", cfg.Queue.Stream)

	// Verify status config
	assert.Equal(t, "status", cfg.Status.SubjectPrefix)

	// Verify logging config
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)

	// Verify metrics config
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadWithPartialEnvironmentVariables(t *testing.T) {
	err := os.Setenv("WORKER_MAX_SANDBOXES", "2")
	require.NoError(t, err)
	defer os.Unsetenv("WORKER_MAX_SANDBOXES")

	err = os.Setenv("LOG_LEVEL", "warn")
	require.NoError(t, err)
	defer os.Unsetenv("LOG_LEVEL")

	cfg, err := Load()
	require.NoError(t, err)

	// Verify overridden values
	assert.Equal(t, 2, cfg.Worker.MaxSandboxes)
	assert.Equal(t, "warn", cfg.Logging.Level)

	// Verify default values still apply
	assert.Equal(t, 3, cfg.Worker.MaxAttempts)
	assert.Equal(t, "nats://localhost:4222", cfg.Queue.URL)
	assert.Equal(t, 9222, cfg.Sandbox.BasePort)
}

package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all worker configuration.
type Config struct {
	Worker  WorkerConfig
	Sandbox SandboxConfig
	Queue   QueueConfig
	Status  StatusConfig
	Logging LogConfig
	Metrics MetricsConfig
}

// WorkerConfig holds job consumption configuration.
type WorkerConfig struct {
	MaxSandboxes   int           `envconfig:"WORKER_MAX_SANDBOXES" default:"4"`
	MinReady       int           `envconfig:"WORKER_MIN_READY" default:"1"`
	MaxAttempts    int           `envconfig:"WORKER_MAX_ATTEMPTS" default:"3"`
	AcquireTimeout time.Duration `envconfig:"WORKER_ACQUIRE_TIMEOUT" default:"30s"`
	DrainTimeout   time.Duration `envconfig:"WORKER_DRAIN_TIMEOUT" default:"20s"`
}

// SandboxConfig holds automation-service process configuration.
type SandboxConfig struct {
	Command           string        `envconfig:"SANDBOX_COMMAND" default:"automation-service"`
	Args              []string      `envconfig:"SANDBOX_ARGS"`
	BasePort          int           `envconfig:"SANDBOX_BASE_PORT" default:"9222"`
	PortSpan          int           `envconfig:"SANDBOX_PORT_SPAN" default:"100"`
	HealthPath        string        `envconfig:"SANDBOX_HEALTH_PATH" default:"/api"`
	HealthInterval    time.Duration `envconfig:"SANDBOX_HEALTH_INTERVAL" default:"2s"`
	HealthMaxAttempts int           `envconfig:"SANDBOX_HEALTH_MAX_ATTEMPTS" default:"30"`
	ProbeInterval     time.Duration `envconfig:"SANDBOX_PROBE_INTERVAL" default:"5s"`
	RequestTimeout    time.Duration `envconfig:"SANDBOX_REQUEST_TIMEOUT" default:"30s"`
	BootstrapTimeout  time.Duration `envconfig:"SANDBOX_BOOTSTRAP_TIMEOUT" default:"90s"`
	PreWarmURL        string        `envconfig:"SANDBOX_PREWARM_URL" default:"about:blank"`
}

// QueueConfig holds durable queue configuration.
type QueueConfig struct {
	URL          string        `envconfig:"QUEUE_URL" default:"nats://localhost:4222"`
	Stream       string        `envconfig:"QUEUE_STREAM" default:"AGENT_RUNS"`
	Subject      string        `envconfig:"QUEUE_SUBJECT" default:"runs.jobs"`
	Durable      string        `envconfig:"QUEUE_DURABLE" default:"agent-worker"`
	FetchTimeout time.Duration `envconfig:"QUEUE_FETCH_TIMEOUT" default:"5s"`
}

// StatusConfig holds run-status channel configuration.
type StatusConfig struct {
	SubjectPrefix string `envconfig:"STATUS_SUBJECT_PREFIX" default:"runs.status"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// MetricsConfig holds the metrics/health listener configuration.
type MetricsConfig struct {
	Addr    string `envconfig:"METRICS_ADDR" default:":9090"`
	Enabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Worker: WorkerConfig{
			MaxSandboxes:   4,
			MinReady:       1,
			MaxAttempts:    3,
			AcquireTimeout: 30 * time.Second,
			DrainTimeout:   20 * time.Second,
		},
		Sandbox: SandboxConfig{
			Command:           "automation-service",
			BasePort:          9222,
			PortSpan:          100,
			HealthPath:        "/api",
			HealthInterval:    2 * time.Second,
			HealthMaxAttempts: 30,
			ProbeInterval:     5 * time.Second,
			RequestTimeout:    30 * time.Second,
			BootstrapTimeout:  90 * time.Second,
			PreWarmURL:        "about:blank",
		},
		Queue: QueueConfig{
			URL:          "nats://localhost:4222",
			Stream:       "AGENT_RUNS",
			Subject:      "runs.jobs",
			Durable:      "agent-worker",
			FetchTimeout: 5 * time.Second,
		},
		Status: StatusConfig{
			SubjectPrefix: "runs.status",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Metrics: MetricsConfig{
			Addr:    ":9090",
			Enabled: true,
		},
	}
}

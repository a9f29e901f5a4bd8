package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hollowaylabs/agentrunner/internal/config"
	"github.com/hollowaylabs/agentrunner/internal/logging"
	"github.com/hollowaylabs/agentrunner/internal/monitoring"
	"github.com/hollowaylabs/agentrunner/internal/queue"
	"github.com/hollowaylabs/agentrunner/internal/sandbox"
	"github.com/hollowaylabs/agentrunner/internal/status"
	"github.com/hollowaylabs/agentrunner/internal/worker"
)

func main() {
	cfg := config.LoadOrDefault()

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Agent-run worker starting",
		zap.Int("max_sandboxes", cfg.Worker.MaxSandboxes),
		zap.String("queue_url", cfg.Queue.URL),
		zap.String("sandbox_command", cfg.Sandbox.Command),
	)

	metrics := monitoring.NewMetrics()

	// Queue and status channel share one connection
	q, err := queue.NewNATS(queue.NATSConfig{
		URL:          cfg.Queue.URL,
		Stream:       cfg.Queue.Stream,
		Subject:      cfg.Queue.Subject,
		Durable:      cfg.Queue.Durable,
		FetchTimeout: cfg.Queue.FetchTimeout,
	})
	if err != nil {
		logger.Fatal("Failed to connect to queue", zap.Error(err))
	}
	defer q.Close()

	reporter := status.NewNATSReporter(q.Conn(), cfg.Status.SubjectPrefix)

	factory := &sandbox.ProcessFactory{
		Launcher: &sandbox.ExecLauncher{
			Command: cfg.Sandbox.Command,
			Args:    cfg.Sandbox.Args,
			Logger:  logger.Named("launcher"),
		},
		Process: sandbox.ProcessConfig{
			HealthMaxAttempts: cfg.Sandbox.HealthMaxAttempts,
			HealthInterval:    cfg.Sandbox.HealthInterval,
			ProbeInterval:     cfg.Sandbox.ProbeInterval,
			PreWarmURL:        cfg.Sandbox.PreWarmURL,
		},
		Client: sandbox.ClientConfig{
			HealthPath:     cfg.Sandbox.HealthPath,
			RequestTimeout: cfg.Sandbox.RequestTimeout,
		},
		BasePort: cfg.Sandbox.BasePort,
		PortSpan: cfg.Sandbox.PortSpan,
		Logger:   logger.Named("sandbox"),
	}

	pool := sandbox.NewPool(sandbox.PoolConfig{
		MaxSandboxes:     cfg.Worker.MaxSandboxes,
		MinReady:         cfg.Worker.MinReady,
		AcquireTimeout:   cfg.Worker.AcquireTimeout,
		BootstrapTimeout: cfg.Sandbox.BootstrapTimeout,
	}, factory, logger.Named("pool"), metrics)
	pool.WarmStart()

	consumer := worker.NewConsumer(q, pool, reporter, metrics, logger.Named("consumer"), worker.ConsumerConfig{
		Concurrency: cfg.Worker.MaxSandboxes,
		MaxAttempts: cfg.Worker.MaxAttempts,
	})

	var metricsSrv *monitoring.Server
	if cfg.Metrics.Enabled {
		metricsSrv = monitoring.NewServer(cfg.Metrics.Addr, logger.Named("metrics"))
		go func() {
			if err := metricsSrv.Run(); err != nil {
				logger.Error("Metrics listener failed", zap.Error(err))
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- consumer.Run(ctx)
	}()

	select {
	case <-sigChan:
		logger.Info("Shutting down gracefully")
		cancel()

		// Bounded drain: executors requeue and release before exit
		select {
		case <-errChan:
		case <-time.After(cfg.Worker.DrainTimeout):
			logger.Warn("Drain timeout exceeded")
		}
	case err := <-errChan:
		if err != nil && ctx.Err() == nil {
			logger.Error("Consumer stopped", zap.Error(err))
		}
		cancel()
	}

	pool.Close()

	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		metricsSrv.Shutdown(shutdownCtx)
		shutdownCancel()
	}

	logger.Info("Worker stopped")
}

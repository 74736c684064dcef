package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/docrender/backend/internal/application/dispatch"
	"github.com/docrender/backend/internal/application/render"
	"github.com/docrender/backend/internal/infrastructure/browser"
	"github.com/docrender/backend/internal/infrastructure/config"
	"github.com/docrender/backend/internal/infrastructure/logger"
	"github.com/docrender/backend/internal/infrastructure/queue"
	"github.com/docrender/backend/internal/infrastructure/template"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log := logger.New(cfg.Log)
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting document render service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("mode", cfg.App.Mode),
	)
	for _, w := range cfg.Warnings {
		log.Warn(w)
	}

	// Root context cancelled on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Browser pool
	allocator := browser.NewAllocator(log)
	defer allocator.Close()

	pool := browser.NewPool(browser.Options{
		MinSize:               cfg.BrowserPool.MinSize,
		MaxSize:               cfg.BrowserPool.MaxSize,
		AcquireTimeout:        cfg.BrowserPool.AcquireTimeout,
		IdleTimeout:           cfg.BrowserPool.IdleTimeout,
		MaxRendersPerInstance: cfg.BrowserPool.MaxRendersPerInstance,
	}, allocator.Launch, log)
	defer pool.Shutdown()
	pool.WarmUp(ctx)

	// Render pipeline
	engine := template.NewEngine(log)
	renderer := browser.NewRenderer(pool, log)
	pipeline := render.NewPipeline(engine, renderer, log)

	metrics := dispatch.NewMetrics()
	defer metrics.LogSummary(log)

	switch cfg.App.Mode {
	case "queue":
		runQueueMode(ctx, cfg, pipeline, metrics, log)
	case "file":
		runFileMode(ctx, cfg, pipeline, metrics, log)
	}

	log.Info("Shutdown complete")
}

// runQueueMode consumes render requests from the broker until the context
// is cancelled.
func runQueueMode(ctx context.Context, cfg *config.Config, pipeline *render.Pipeline, metrics *dispatch.Metrics, log *zap.Logger) {
	security := queue.SecurityConfig{
		Protocol:  cfg.Queue.SecurityProtocol,
		Mechanism: cfg.Queue.SaslMechanism,
		Username:  cfg.Queue.SaslUsername,
		Password:  cfg.Queue.SaslPassword,
	}

	producer, err := queue.NewProducer(queue.ProducerOptions{
		Brokers:  cfg.Queue.BootstrapServers,
		Topic:    cfg.Queue.ResultTopic,
		Security: security,
	}, log)
	if err != nil {
		log.Fatal("Failed to build producer", zap.Error(err))
	}
	defer func() {
		if err := producer.Close(); err != nil {
			log.Error("Error closing producer", zap.Error(err))
		}
	}()

	dispatcher := dispatch.NewQueueDispatcher(pipeline, producer, metrics,
		dispatch.QueueDispatcherOptions{
			PdfOutputPath:        cfg.Queue.PdfOutputPath,
			MaxConcurrentRenders: cfg.Queue.MaxConcurrentRenders,
		}, log)

	consumer, err := queue.NewConsumer(queue.ConsumerOptions{
		Brokers:         cfg.Queue.BootstrapServers,
		GroupID:         cfg.Queue.ConsumerGroupID,
		Topic:           cfg.Queue.RequestTopic,
		DeadLetterTopic: cfg.Queue.DeadLetterTopic,
		MaxRetries:      cfg.Queue.MaxRetries,
		RetryDelay:      cfg.Queue.RetryDelay,
		MaxConcurrent:   cfg.Queue.MaxConcurrentRenders,
		PollTimeout:     cfg.Queue.PollTimeout,
		Security:        security,
	}, dispatcher, log)
	if err != nil {
		log.Fatal("Failed to build consumer", zap.Error(err))
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			log.Error("Error closing consumer", zap.Error(err))
		}
	}()

	if err := consumer.Run(ctx); err != nil {
		log.Error("Consumer stopped with error", zap.Error(err))
		return
	}
	log.Info("Consumer stopped")
}

// runFileMode renders every template file under the configured root once,
// then exits.
func runFileMode(ctx context.Context, cfg *config.Config, pipeline *render.Pipeline, metrics *dispatch.Metrics, log *zap.Logger) {
	dispatcher := dispatch.NewFileDispatcher(pipeline, metrics,
		dispatch.FileDispatcherOptions{
			TemplatesPath:        cfg.FileMode.TemplatesPath,
			OutputPath:           cfg.FileMode.OutputPath,
			MaxConcurrentRenders: cfg.Queue.MaxConcurrentRenders,
		}, log)

	if err := dispatcher.Run(ctx); err != nil {
		log.Error("File batch failed", zap.Error(err))
		os.Exit(1)
	}
}

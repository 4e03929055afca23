package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kusuridheeraj/titan-grid/internal/config"
	"github.com/kusuridheeraj/titan-grid/internal/database"
	"github.com/kusuridheeraj/titan-grid/internal/logger"
	"github.com/kusuridheeraj/titan-grid/internal/queue"
	"github.com/kusuridheeraj/titan-grid/internal/workers"
	"go.uber.org/zap"
)

const (
	dlqInterval  = time.Hour
	dlqRetention = 24 * time.Hour
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if err := config.LoadEnvFiles(); err != nil {
		log.Fatalf("Failed to load env files: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.WorkerDebugMode || *debugFlag
	zapLogger, err := logger.NewProductionLogger("aegis-worker", debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	if cfg.DatabaseURL == "" || cfg.RabbitMQURL == "" {
		zapLogger.Fatal("worker_requires_database_and_rabbitmq")
	}

	zapLogger.Info("starting_worker",
		zap.Bool("debug_mode", debugMode),
		zap.Int("prefetch", cfg.RabbitMQPrefetch),
	)

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_database")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auditQueue, err := queue.ConnectWithRetry(ctx, cfg.RabbitMQURL, nil, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq", zap.Error(err))
	}
	defer func() {
		if err := auditQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()

	writer := workers.NewAuditWriter(database.NewEventRepository(db), auditQueue, zapLogger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	msgChan, errChan, err := auditQueue.Consume(ctx, cfg.RabbitMQPrefetch)
	if err != nil {
		zapLogger.Fatal("failed_to_start_consuming", zap.Error(err))
	}

	dlqGC := queue.NewGarbageCollector(auditQueue, dlqInterval, dlqRetention, zapLogger)
	go func() {
		if err := dlqGC.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zapLogger.Error("dlq_garbage_collector_stopped_with_error", zap.Error(err))
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		writer.Run(ctx, msgChan, errChan)
	}()
	zapLogger.Info("worker_started")

	select {
	case <-sigChan:
		zapLogger.Info("shutdown_signal_received")
	case <-done:
		zapLogger.Warn("audit_consumer_stopped")
	}

	cancel()
	<-done
	zapLogger.Info("worker_stopped")
}

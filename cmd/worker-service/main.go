package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/provelab/pricing-prover/internal/config"
	"github.com/provelab/pricing-prover/internal/prover"
	"github.com/provelab/pricing-prover/internal/queue"
	"github.com/provelab/pricing-prover/internal/storage"
	"github.com/provelab/pricing-prover/internal/worker"
	"github.com/provelab/pricing-prover/shared/logger"
	"github.com/provelab/pricing-prover/shared/postgresql"
	"github.com/provelab/pricing-prover/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	// Initialize RabbitMQ client
	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	store := storage.NewPostgresStore(dbClient, appLogger.Logger)
	workQueue := queue.NewRabbitQueue(rabbitClient, queue.RabbitConfig{
		QueueName:     cfg.RabbitMQ.WorkQueue.Name,
		RoutingKey:    cfg.RabbitMQ.WorkQueue.RoutingKey,
		BatchSize:     cfg.RabbitMQ.Consumer.BatchSize,
		ReceiveWait:   cfg.RabbitMQ.Consumer.ReceiveWait,
		PrefetchCount: cfg.RabbitMQ.Consumer.PrefetchCount,
	}, appLogger.Logger)
	resultsQueue := queue.NewRabbitQueue(rabbitClient, queue.RabbitConfig{
		QueueName:  cfg.RabbitMQ.ResultsQueue.Name,
		RoutingKey: cfg.RabbitMQ.ResultsQueue.RoutingKey,
	}, appLogger.Logger)

	engine, err := initEngine(&cfg.Prover)
	if err != nil {
		return fmt.Errorf("failed to initialize proof engine: %w", err)
	}

	// Create worker instance
	workerInstance := worker.NewWorker(&worker.Config{
		Logger:         appLogger.Logger,
		Store:          store,
		WorkQueue:      workQueue,
		ResultsQueue:   resultsQueue,
		Engine:         engine,
		Concurrency:    cfg.Worker.Concurrency,
		JobTimeout:     cfg.Prover.Timeout,
		MaxAttempts:    cfg.Worker.MaxAttempts,
		BackoffMin:     cfg.Worker.ReceiveBackoffMin,
		BackoffMax:     cfg.Worker.ReceiveBackoffMax,
		ReaperInterval: cfg.Worker.ReaperInterval,
		StaleAfter:     cfg.Worker.ReaperStaleAfter,
	})

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start worker in a goroutine
	errChan := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", err),
		)
		return err
	}

	// Cancel context to stop worker
	cancel()

	// Give worker time to drain in-flight jobs
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	// Cleanup function to close all resources
	cleanup := func() {
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}
	cleanup()

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		WorkQueue: rabbitmq.QueueConfig{
			Name:       cfg.WorkQueue.Name,
			Durable:    cfg.WorkQueue.Durable,
			AutoDelete: cfg.WorkQueue.AutoDelete,
			Exclusive:  cfg.WorkQueue.Exclusive,
			RoutingKey: cfg.WorkQueue.RoutingKey,
		},
		ResultsQueue: rabbitmq.QueueConfig{
			Name:       cfg.ResultsQueue.Name,
			Durable:    cfg.ResultsQueue.Durable,
			AutoDelete: cfg.ResultsQueue.AutoDelete,
			Exclusive:  cfg.ResultsQueue.Exclusive,
			RoutingKey: cfg.ResultsQueue.RoutingKey,
		},
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

// initEngine selects the proof backend from configuration.
func initEngine(cfg *config.ProverConfig) (prover.Engine, error) {
	switch cfg.Engine {
	case "hashing":
		return prover.NewHashingEngine(), nil
	case "mock":
		return prover.NewMockEngine(), nil
	default:
		return nil, fmt.Errorf("unknown prover engine: %q", cfg.Engine)
	}
}

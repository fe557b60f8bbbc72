package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/provelab/pricing-prover/internal/prover"
	"github.com/provelab/pricing-prover/internal/queue"
	"github.com/provelab/pricing-prover/internal/storage"
)

// Config holds worker configuration
type Config struct {
	Logger       *slog.Logger
	Store        storage.Store
	WorkQueue    queue.Queue
	ResultsQueue queue.Queue
	Engine       prover.Engine

	Concurrency    int
	JobTimeout     time.Duration
	MaxAttempts    int
	BackoffMin     time.Duration
	BackoffMax     time.Duration
	ReaperInterval time.Duration
	StaleAfter     time.Duration
}

// Worker is the consuming half of the system: one consumer loop feeding a
// bounded processing pool, plus the reaper sweeping for stranded jobs.
type Worker struct {
	logger   *slog.Logger
	consumer *Consumer
	reaper   *Reaper
	wg       sync.WaitGroup
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	lifecycle := NewLifecycle(cfg.Store, cfg.WorkQueue, cfg.Logger, cfg.MaxAttempts)
	supervisor := prover.NewSupervisor(cfg.Engine, cfg.JobTimeout, cfg.Logger)
	aggregator := NewAggregator(cfg.Store, cfg.ResultsQueue, cfg.Logger)

	consumer := NewConsumer(ConsumerConfig{
		WorkQueue:   cfg.WorkQueue,
		Lifecycle:   lifecycle,
		Supervisor:  supervisor,
		Aggregator:  aggregator,
		Logger:      cfg.Logger,
		Concurrency: cfg.Concurrency,
		BackoffMin:  cfg.BackoffMin,
		BackoffMax:  cfg.BackoffMax,
	})

	reaper := NewReaper(cfg.Store, cfg.WorkQueue, cfg.Logger, cfg.ReaperInterval, cfg.StaleAfter)

	return &Worker{
		logger:   cfg.Logger,
		consumer: consumer,
		reaper:   reaper,
	}
}

// Start begins processing jobs and blocks until ctx is cancelled and every
// in-flight job has drained.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker")

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.reaper.Run(ctx)
	}()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.consumer.Run(ctx)
	}()

	w.wg.Wait()
	w.logger.Info("Worker stopped")
	return nil
}

package shutdown

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BackgroundWorker manages a background worker with graceful shutdown
type BackgroundWorker struct {
	name       string
	logger     *zap.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	shutdownCh chan struct{}
}

// NewBackgroundWorker creates a new background worker
func NewBackgroundWorker(name string, logger *zap.Logger) *BackgroundWorker {
	ctx, cancel := context.WithCancel(context.Background())

	return &BackgroundWorker{
		name:       name,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		shutdownCh: make(chan struct{}),
	}
}

// Start begins the background worker
// The work function should respect ctx.Done() for cancellation
func (bw *BackgroundWorker) Start(work func(ctx context.Context)) {
	bw.wg.Add(1)

	go func() {
		defer bw.wg.Done()

		bw.logger.Info("Background worker started",
			zap.String("worker", bw.name),
		)

		work(bw.ctx)

		bw.logger.Info("Background worker stopped",
			zap.String("worker", bw.name),
		)
	}()
}

// Stop gracefully stops the background worker
func (bw *BackgroundWorker) Stop() {
	select {
	case <-bw.shutdownCh:
		// Already stopped
		return
	default:
		close(bw.shutdownCh)
	}

	bw.logger.Info("Stopping background worker",
		zap.String("worker", bw.name),
	)

	// Cancel context to signal worker to stop
	bw.cancel()

	// Wait for worker to finish
	bw.wg.Wait()

	bw.logger.Info("Background worker stopped successfully",
		zap.String("worker", bw.name),
	)
}

// Shutdown waits for the worker to stop with timeout
func (bw *BackgroundWorker) Shutdown(ctx context.Context) error {
	bw.Stop()

	// Wait for worker with timeout
	done := make(chan struct{})
	go func() {
		bw.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		bw.logger.Warn("Background worker shutdown timeout",
			zap.String("worker", bw.name),
		)
		return ctx.Err()
	}
}

// Context returns the worker's context
func (bw *BackgroundWorker) Context() context.Context {
	return bw.ctx
}

// PeriodicWorker runs a function periodically with graceful shutdown support
type PeriodicWorker struct {
	*BackgroundWorker
	interval time.Duration
}

// NewPeriodicWorker creates a new periodic worker
func NewPeriodicWorker(name string, interval time.Duration, logger *zap.Logger) *PeriodicWorker {
	return &PeriodicWorker{
		BackgroundWorker: NewBackgroundWorker(name, logger),
		interval:         interval,
	}
}

// Start begins the periodic worker
func (pw *PeriodicWorker) Start(work func(ctx context.Context)) {
	pw.BackgroundWorker.Start(func(ctx context.Context) {
		ticker := time.NewTicker(pw.interval)
		defer ticker.Stop()

		// Run immediately on start
		work(ctx)

		for {
			select {
			case <-ctx.Done():
				pw.logger.Info("Periodic worker context cancelled",
					zap.String("worker", pw.name),
				)
				return
			case <-ticker.C:
				work(ctx)
			}
		}
	})
}

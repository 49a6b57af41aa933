package services

import (
	"context"
	"sync"
	"time"

	"github.com/Marketen/liveness-indexer/internal/application/domain"
	"github.com/Marketen/liveness-indexer/internal/application/ports"
	"github.com/Marketen/liveness-indexer/internal/logger"
)

// BlockObserver is notified of every new best block before the worker runs.
type BlockObserver interface {
	OnBlock(now domain.BlockNumber) (bool, error)
}

// WorkerRunner drives session rotation and the off-chain worker from the block clock.
type WorkerRunner struct {
	Clock        ports.BlockClock
	PollInterval time.Duration
	Rotator      BlockObserver
	Worker       *Worker

	lastBlock domain.BlockNumber
	wg        sync.WaitGroup
}

// NewWorkerRunner constructs a WorkerRunner with dependencies injected.
func NewWorkerRunner(
	clock ports.BlockClock,
	pollInterval time.Duration,
	rotator BlockObserver,
	worker *Worker,
) *WorkerRunner {
	return &WorkerRunner{
		Clock:        clock,
		PollInterval: pollInterval,
		Rotator:      rotator,
		Worker:       worker,
	}
}

// Run starts the periodic poll loop. Worker ticks run in their own goroutines
// and may overlap; Run waits for them before returning.
func (r *WorkerRunner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.checkLatestBlock(ctx)
		case <-ctx.Done():
			r.wg.Wait()
			return
		}
	}
}

func (r *WorkerRunner) checkLatestBlock(ctx context.Context) {
	best, err := r.Clock.BestBlock(ctx)
	if err != nil {
		logger.Error("Error fetching best block: %v", err)
		return
	}
	if best == r.lastBlock {
		logger.Debug("Best block %d unchanged, skipping.", best)
		return
	}
	r.lastBlock = best
	logger.Debug("New best block %d detected.", best)

	if r.Rotator != nil {
		rotated, err := r.Rotator.OnBlock(best)
		if err != nil {
			logger.Error("Session rotation at block %d failed: %v", best, err)
		} else if rotated {
			logger.Info("Session rotated at block %d", best)
		}
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.Worker.Tick(ctx, best)
	}()
}

package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/xaenox/curatord/internal/models"
	"go.uber.org/zap"
)

// RunFunc executes one curator run to completion.
type RunFunc func(ctx context.Context, curatorID string) error

// Runner is a worker pool for curator runs. It keeps a per-curator in-flight
// set so overlapping triggers for the same curator cannot race and
// double-create near-duplicate suggestions; the duplicate trigger is dropped.
type Runner struct {
	run     RunFunc
	queue   chan string
	workers int
	logger  *zap.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
	wg       sync.WaitGroup
}

func NewRunner(run RunFunc, workers, queueSize int, logger *zap.Logger) *Runner {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Runner{
		run:      run,
		queue:    make(chan string, queueSize),
		workers:  workers,
		logger:   logger,
		inFlight: make(map[string]struct{}),
	}
}

// Start launches the workers. They drain the queue until ctx is done.
func (r *Runner) Start(ctx context.Context) {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx)
	}
}

// Wait blocks until all workers have exited.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Enqueue schedules a curator run. A curator already queued or running is
// dropped silently; a full queue is an error the caller must handle.
func (r *Runner) Enqueue(ctx context.Context, curator *models.Curator) error {
	r.mu.Lock()
	if _, running := r.inFlight[curator.ID]; running {
		r.mu.Unlock()
		r.logger.Info("Dropping overlapping run trigger",
			zap.String("curator_id", curator.ID))
		return nil
	}
	r.inFlight[curator.ID] = struct{}{}
	r.mu.Unlock()

	select {
	case r.queue <- curator.ID:
		return nil
	default:
		r.release(curator.ID)
		return fmt.Errorf("run queue is full")
	}
}

func (r *Runner) worker(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case curatorID := <-r.queue:
			if err := r.run(ctx, curatorID); err != nil {
				r.logger.Error("Curator run failed",
					zap.String("curator_id", curatorID),
					zap.Error(err))
			}
			r.release(curatorID)
		}
	}
}

func (r *Runner) release(curatorID string) {
	r.mu.Lock()
	delete(r.inFlight, curatorID)
	r.mu.Unlock()
}

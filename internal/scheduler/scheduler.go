package scheduler

import (
	"context"
	"time"

	"github.com/xaenox/curatord/internal/models"
	"github.com/xaenox/curatord/internal/storage"
	"go.uber.org/zap"
)

// DefaultSweepInterval is how often the scheduler looks for due curators.
const DefaultSweepInterval = 15 * time.Minute

// Enqueuer hands a due curator off to background execution. The scheduler
// never runs curators inline; the LLM call must stay off the sweep's path.
type Enqueuer interface {
	Enqueue(ctx context.Context, curator *models.Curator) error
}

// EnqueueFunc adapts a function to the Enqueuer interface.
type EnqueueFunc func(ctx context.Context, curator *models.Curator) error

func (f EnqueueFunc) Enqueue(ctx context.Context, curator *models.Curator) error {
	return f(ctx, curator)
}

// SweepResult summarizes one scheduler sweep.
type SweepResult struct {
	Due      int
	Enqueued int
	Failed   int
}

// Scheduler periodically finds active curators whose next run time has
// passed and hands them off for execution.
type Scheduler struct {
	curators storage.CuratorStore
	enqueuer Enqueuer
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func New(curators storage.CuratorStore, enqueuer Enqueuer, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Scheduler{
		curators: curators,
		enqueuer: enqueuer,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// RunDue performs one sweep. A failure to enqueue one curator is logged and
// does not affect the others; next_run_at is advanced for every due curator
// regardless, so a failing curator does not retry every sweep. The returned
// error is non-nil only when the due query itself fails.
func (s *Scheduler) RunDue(ctx context.Context) (SweepResult, error) {
	now := s.now()
	due, err := s.curators.ListDueCurators(ctx, now)
	if err != nil {
		return SweepResult{}, err
	}

	result := SweepResult{Due: len(due)}
	for _, curator := range due {
		if err := s.enqueuer.Enqueue(ctx, curator); err != nil {
			result.Failed++
			s.logger.Error("Failed to queue scheduled curator",
				zap.String("curator_id", curator.ID),
				zap.Error(err))
		} else {
			result.Enqueued++
		}

		if err := s.curators.SetRunTimes(ctx, curator.ID, nil, curator.CalculateNextRunTime(now)); err != nil {
			s.logger.Error("Failed to advance curator next run time",
				zap.String("curator_id", curator.ID),
				zap.Error(err))
		}
	}

	s.logger.Info("Scheduler sweep complete",
		zap.Int("due", result.Due),
		zap.Int("enqueued", result.Enqueued),
		zap.Int("failed", result.Failed))
	return result, nil
}

// Start sweeps on a fixed interval until ctx is done. It blocks; run it in
// its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunDue(ctx); err != nil {
				s.logger.Error("Scheduler sweep failed", zap.Error(err))
			}
		}
	}
}

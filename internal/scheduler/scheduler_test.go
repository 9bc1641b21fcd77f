package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/curatord/internal/models"
	"github.com/xaenox/curatord/internal/storage"
	"go.uber.org/zap"
)

func seedCurator(t *testing.T, store *storage.MemoryStorage, status models.CuratorStatus, schedule models.ScheduleType, nextRunAt *time.Time) *models.Curator {
	t.Helper()
	curator := &models.Curator{
		CollectionID:        "col-1",
		Prompt:              "keep it tidy",
		Status:              status,
		ScheduleType:        schedule,
		ConfidenceThreshold: 80,
		NextRunAt:           nextRunAt,
	}
	require.NoError(t, store.CreateCurator(context.Background(), curator))
	return curator
}

func TestRunDueIsolation(t *testing.T) {
	store := storage.NewMemoryStorage()
	past := time.Now().Add(-time.Hour)

	first := seedCurator(t, store, models.CuratorActive, models.ScheduleDaily, &past)
	second := seedCurator(t, store, models.CuratorActive, models.ScheduleDaily, &past)
	third := seedCurator(t, store, models.CuratorActive, models.ScheduleDaily, &past)

	var enqueued []string
	enqueue := EnqueueFunc(func(ctx context.Context, c *models.Curator) error {
		if c.ID == second.ID {
			return errors.New("queue unavailable")
		}
		enqueued = append(enqueued, c.ID)
		return nil
	})

	sched := New(store, enqueue, time.Minute, zap.NewNop())
	result, err := sched.RunDue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Due)
	assert.Equal(t, 2, result.Enqueued)
	assert.Equal(t, 1, result.Failed)
	assert.ElementsMatch(t, []string{first.ID, third.ID}, enqueued)

	// next_run_at advances for every due curator, failing ones included, so
	// a broken curator does not retry every sweep.
	for _, id := range []string{first.ID, second.ID, third.ID} {
		curator, err := store.GetCurator(context.Background(), id)
		require.NoError(t, err)
		require.NotNil(t, curator.NextRunAt)
		assert.True(t, curator.NextRunAt.After(time.Now()))
	}

	again, err := sched.RunDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, again.Due)
}

func TestRunDueSelection(t *testing.T) {
	store := storage.NewMemoryStorage()
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	due := seedCurator(t, store, models.CuratorActive, models.ScheduleDaily, &past)
	neverRun := seedCurator(t, store, models.CuratorActive, models.ScheduleDaily, nil)
	seedCurator(t, store, models.CuratorActive, models.ScheduleDaily, &future)
	seedCurator(t, store, models.CuratorInactive, models.ScheduleDaily, &past)
	seedCurator(t, store, models.CuratorPaused, models.ScheduleDaily, &past)
	seedCurator(t, store, models.CuratorActive, models.ScheduleManual, &past)

	var enqueued []string
	enqueue := EnqueueFunc(func(ctx context.Context, c *models.Curator) error {
		enqueued = append(enqueued, c.ID)
		return nil
	})

	sched := New(store, enqueue, time.Minute, zap.NewNop())
	result, err := sched.RunDue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Due)
	assert.ElementsMatch(t, []string{due.ID, neverRun.ID}, enqueued)
}

func TestRunnerDropsOverlappingTriggers(t *testing.T) {
	runner := NewRunner(func(ctx context.Context, curatorID string) error {
		return nil
	}, 1, 8, zap.NewNop())

	curator := &models.Curator{ID: "c-1"}
	require.NoError(t, runner.Enqueue(context.Background(), curator))
	require.NoError(t, runner.Enqueue(context.Background(), curator))

	// The second trigger was dropped while the first is still queued.
	assert.Len(t, runner.queue, 1)

	other := &models.Curator{ID: "c-2"}
	require.NoError(t, runner.Enqueue(context.Background(), other))
	assert.Len(t, runner.queue, 2)
}

func TestRunnerQueueFull(t *testing.T) {
	runner := NewRunner(func(ctx context.Context, curatorID string) error {
		return nil
	}, 1, 1, zap.NewNop())

	require.NoError(t, runner.Enqueue(context.Background(), &models.Curator{ID: "c-1"}))
	err := runner.Enqueue(context.Background(), &models.Curator{ID: "c-2"})
	require.Error(t, err)

	// The rejected curator is released and can be enqueued again once there
	// is room.
	ready := make(chan string, 2)
	drained := NewRunner(func(ctx context.Context, curatorID string) error {
		ready <- curatorID
		return nil
	}, 1, 4, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	drained.Start(ctx)

	require.NoError(t, drained.Enqueue(ctx, &models.Curator{ID: "c-2"}))
	select {
	case id := <-ready:
		assert.Equal(t, "c-2", id)
	case <-time.After(2 * time.Second):
		t.Fatal("run was never executed")
	}
}

func TestRunnerRunsAfterCompletion(t *testing.T) {
	ran := make(chan string, 4)
	runner := NewRunner(func(ctx context.Context, curatorID string) error {
		ran <- curatorID
		return nil
	}, 2, 8, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner.Start(ctx)

	curator := &models.Curator{ID: "c-1"}
	require.NoError(t, runner.Enqueue(ctx, curator))
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("first run never executed")
	}

	// Once the first run finished and the in-flight guard released, the
	// same curator can run again.
	require.Eventually(t, func() bool {
		runner.mu.Lock()
		_, inFlight := runner.inFlight[curator.ID]
		runner.mu.Unlock()
		return !inFlight
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, runner.Enqueue(ctx, curator))
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("second run never executed")
	}
}

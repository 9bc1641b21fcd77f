package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/curatord/internal/models"
	"github.com/xaenox/curatord/internal/storage"
	"go.uber.org/zap"
)

func seedCurator(t *testing.T, store *storage.MemoryStorage) *models.Curator {
	t.Helper()
	curator := &models.Curator{
		CollectionID:        "col-1",
		Prompt:              "keep it tidy",
		Status:              models.CuratorActive,
		ScheduleType:        models.ScheduleDaily,
		ConfidenceThreshold: 80,
	}
	require.NoError(t, store.CreateCurator(context.Background(), curator))
	return curator
}

func TestDispatcherRunComplete(t *testing.T) {
	store := storage.NewMemoryStorage()
	curator := seedCurator(t, store)

	now := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	dispatcher := NewDispatcher(store, zap.NewNop())
	dispatcher.now = fixedClock(now)

	dispatcher.Handle(map[string]any{
		"type":       "event",
		"event_type": EventCuratorRunComplete,
		"data":       map[string]any{"curator_id": curator.ID},
	})

	updated, err := store.GetCurator(context.Background(), curator.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.LastRunAt)
	assert.Equal(t, now, *updated.LastRunAt)
	require.NotNil(t, updated.NextRunAt)
	assert.Equal(t, now.Add(24*time.Hour), *updated.NextRunAt)
}

func TestDispatcherRunFailed(t *testing.T) {
	store := storage.NewMemoryStorage()
	curator := seedCurator(t, store)

	dispatcher := NewDispatcher(store, zap.NewNop())
	dispatcher.Handle(map[string]any{
		"type":       "event",
		"event_type": EventCuratorRunFailed,
		"data": map[string]any{
			"curator_id": curator.ID,
			"error":      "model timed out",
		},
	})

	updated, err := store.GetCurator(context.Background(), curator.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CuratorError, updated.Status)
	assert.Equal(t, "model timed out", updated.PerformanceMetrics["last_error"])
}

func TestDispatcherIgnoresUnknownEvents(t *testing.T) {
	store := storage.NewMemoryStorage()
	curator := seedCurator(t, store)

	dispatcher := NewDispatcher(store, zap.NewNop())
	dispatcher.Handle(map[string]any{"type": "ack", "original_id": "m-1"})
	dispatcher.Handle(map[string]any{"type": "event", "event_type": "something_new"})
	dispatcher.Handle(map[string]any{"type": "mystery"})
	dispatcher.Handle(map[string]any{})

	updated, err := store.GetCurator(context.Background(), curator.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CuratorActive, updated.Status)
	assert.Nil(t, updated.LastRunAt)
}

func TestBusHandleRawDropsInvalid(t *testing.T) {
	codec := NewCodec("test-secret")
	b := &MessageBus{codec: codec, logger: zap.NewNop()}

	var handled []map[string]any
	handler := func(data map[string]any) { handled = append(handled, data) }

	// Not JSON at all.
	b.handleRaw("not json", handler)
	assert.Empty(t, handled)

	// Signed with a different secret.
	other := NewCodec("another-secret")
	msg, err := other.Sign("event", map[string]any{"event_type": "curator_registered"})
	require.NoError(t, err)
	encoded, err := json.Marshal(msg)
	require.NoError(t, err)
	b.handleRaw(string(encoded), handler)
	assert.Empty(t, handled)

	// Properly signed.
	msg, err = codec.Sign("event", map[string]any{"event_type": "curator_registered"})
	require.NoError(t, err)
	encoded, err = json.Marshal(msg)
	require.NoError(t, err)
	b.handleRaw(string(encoded), handler)
	require.Len(t, handled, 1)
	assert.Equal(t, "event", handled[0]["type"])
}

package storage

import (
	"context"
	"errors"
	"time"

	"github.com/xaenox/curatord/internal/models"
)

var ErrNotFound = errors.New("not found")

// Counter names a curator statistics column. Increments are applied
// atomically at the store level so concurrent reviews cannot lose updates.
type Counter string

const (
	CounterSuggestionsMade     Counter = "suggestions_made"
	CounterSuggestionsApproved Counter = "suggestions_approved"
	CounterSuggestionsRejected Counter = "suggestions_rejected"
)

type CuratorStore interface {
	CreateCurator(ctx context.Context, curator *models.Curator) error
	GetCurator(ctx context.Context, id string) (*models.Curator, error)
	UpdateCurator(ctx context.Context, curator *models.Curator) error
	DeleteCurator(ctx context.Context, id string) error

	// ListDueCurators returns active, non-manual curators whose next_run_at
	// is unset or has passed.
	ListDueCurators(ctx context.Context, now time.Time) ([]*models.Curator, error)

	// SetRunTimes advances the scheduling fields without touching the rest
	// of the row.
	SetRunTimes(ctx context.Context, id string, lastRunAt *time.Time, nextRunAt time.Time) error

	SetCuratorStatus(ctx context.Context, id string, status models.CuratorStatus, lastError string) error
	IncrementCuratorCounter(ctx context.Context, id string, counter Counter, delta int) error
}

type SuggestionStore interface {
	CreateSuggestion(ctx context.Context, suggestion *models.Suggestion) error
	GetSuggestion(ctx context.Context, id string) (*models.Suggestion, error)
	UpdateSuggestion(ctx context.Context, suggestion *models.Suggestion) error

	// HasPendingForItem reports whether the curator already has a pending
	// suggestion naming the same item.
	HasPendingForItem(ctx context.Context, curatorID, itemName string) (bool, error)

	ListSuggestions(ctx context.Context, ids []string) ([]*models.Suggestion, error)
	ListApprovedUnexecuted(ctx context.Context, collectionID string, limit int) ([]*models.Suggestion, error)

	// ExpirePending moves every pending suggestion past its expires_at to
	// expired in one bulk update, returning the number of rows changed.
	ExpirePending(ctx context.Context, now time.Time) (int64, error)
}

type RunLogStore interface {
	CreateRunLog(ctx context.Context, log *models.RunLog) error
	FinalizeRunLog(ctx context.Context, log *models.RunLog) error
}

type Storage interface {
	CuratorStore
	SuggestionStore
	RunLogStore
	Close() error
}

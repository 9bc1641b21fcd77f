package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/curatord/internal/models"
)

// MemoryStorage is a mutex-guarded in-memory Storage used in tests and
// local development.
type MemoryStorage struct {
	mu          sync.RWMutex
	curators    map[string]*models.Curator
	suggestions map[string]*models.Suggestion
	runLogs     map[string]*models.RunLog
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		curators:    make(map[string]*models.Curator),
		suggestions: make(map[string]*models.Suggestion),
		runLogs:     make(map[string]*models.RunLog),
	}
}

func (s *MemoryStorage) CreateCurator(ctx context.Context, curator *models.Curator) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if curator.ID == "" {
		curator.ID = uuid.New().String()
	}
	now := time.Now()
	curator.CreatedAt = now
	curator.UpdatedAt = now
	copied := *curator
	s.curators[curator.ID] = &copied
	return nil
}

func (s *MemoryStorage) GetCurator(ctx context.Context, id string) (*models.Curator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	curator, ok := s.curators[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *curator
	return &copied, nil
}

func (s *MemoryStorage) UpdateCurator(ctx context.Context, curator *models.Curator) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.curators[curator.ID]
	if !ok {
		return ErrNotFound
	}
	curator.CreatedAt = existing.CreatedAt
	curator.UpdatedAt = time.Now()
	copied := *curator
	s.curators[curator.ID] = &copied
	return nil
}

func (s *MemoryStorage) DeleteCurator(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.curators[id]; !ok {
		return ErrNotFound
	}
	delete(s.curators, id)
	return nil
}

func (s *MemoryStorage) ListDueCurators(ctx context.Context, now time.Time) ([]*models.Curator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*models.Curator
	for _, curator := range s.curators {
		if curator.ShouldRunNow(now) {
			copied := *curator
			due = append(due, &copied)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	return due, nil
}

func (s *MemoryStorage) SetRunTimes(ctx context.Context, id string, lastRunAt *time.Time, nextRunAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	curator, ok := s.curators[id]
	if !ok {
		return ErrNotFound
	}
	if lastRunAt != nil {
		t := *lastRunAt
		curator.LastRunAt = &t
	}
	curator.NextRunAt = &nextRunAt
	curator.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) SetCuratorStatus(ctx context.Context, id string, status models.CuratorStatus, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	curator, ok := s.curators[id]
	if !ok {
		return ErrNotFound
	}
	curator.Status = status
	if lastError != "" {
		if curator.PerformanceMetrics == nil {
			curator.PerformanceMetrics = make(map[string]any)
		}
		curator.PerformanceMetrics["last_error"] = lastError
	}
	curator.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) IncrementCuratorCounter(ctx context.Context, id string, counter Counter, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	curator, ok := s.curators[id]
	if !ok {
		return ErrNotFound
	}
	switch counter {
	case CounterSuggestionsMade:
		curator.SuggestionsMade += delta
	case CounterSuggestionsApproved:
		curator.SuggestionsApproved += delta
	case CounterSuggestionsRejected:
		curator.SuggestionsRejected += delta
	}
	curator.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) CreateSuggestion(ctx context.Context, suggestion *models.Suggestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if suggestion.ID == "" {
		suggestion.ID = uuid.New().String()
	}
	now := time.Now()
	suggestion.CreatedAt = now
	suggestion.UpdatedAt = now
	copied := *suggestion
	s.suggestions[suggestion.ID] = &copied
	return nil
}

func (s *MemoryStorage) GetSuggestion(ctx context.Context, id string) (*models.Suggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suggestion, ok := s.suggestions[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *suggestion
	return &copied, nil
}

func (s *MemoryStorage) UpdateSuggestion(ctx context.Context, suggestion *models.Suggestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.suggestions[suggestion.ID]
	if !ok {
		return ErrNotFound
	}
	suggestion.CreatedAt = existing.CreatedAt
	suggestion.UpdatedAt = time.Now()
	copied := *suggestion
	s.suggestions[suggestion.ID] = &copied
	return nil
}

func (s *MemoryStorage) HasPendingForItem(ctx context.Context, curatorID, itemName string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, suggestion := range s.suggestions {
		if suggestion.CuratorID == curatorID &&
			suggestion.Status == models.SuggestionPending &&
			strings.EqualFold(suggestion.ItemName(), itemName) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStorage) ListSuggestions(ctx context.Context, ids []string) ([]*models.Suggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Suggestion
	for _, id := range ids {
		if suggestion, ok := s.suggestions[id]; ok {
			copied := *suggestion
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (s *MemoryStorage) ListApprovedUnexecuted(ctx context.Context, collectionID string, limit int) ([]*models.Suggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Suggestion
	for _, suggestion := range s.suggestions {
		if suggestion.CollectionID == collectionID &&
			suggestion.Status == models.SuggestionApproved &&
			!suggestion.Executed {
			copied := *suggestion
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *MemoryStorage) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired int64
	for _, suggestion := range s.suggestions {
		if suggestion.Status == models.SuggestionPending &&
			suggestion.ExpiresAt != nil &&
			suggestion.ExpiresAt.Before(now) {
			suggestion.Status = models.SuggestionExpired
			suggestion.UpdatedAt = now
			expired++
		}
	}
	return expired, nil
}

func (s *MemoryStorage) CreateRunLog(ctx context.Context, log *models.RunLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	copied := *log
	s.runLogs[log.ID] = &copied
	return nil
}

func (s *MemoryStorage) FinalizeRunLog(ctx context.Context, log *models.RunLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runLogs[log.ID]; !ok {
		return ErrNotFound
	}
	copied := *log
	s.runLogs[log.ID] = &copied
	return nil
}

// GetRunLog returns a stored run log, for test assertions.
func (s *MemoryStorage) GetRunLog(id string) (*models.RunLog, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.runLogs[id]
	if !ok {
		return nil, false
	}
	copied := *log
	return &copied, true
}

// RunLogsByCurator returns every run log for a curator, for test assertions.
func (s *MemoryStorage) RunLogsByCurator(curatorID string) []*models.RunLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.RunLog
	for _, log := range s.runLogs {
		if log.CuratorID == curatorID {
			copied := *log
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.Before(result[j].StartedAt)
	})
	return result
}

// ListSuggestionsByCurator returns every suggestion for a curator, for test
// assertions.
func (s *MemoryStorage) ListSuggestionsByCurator(curatorID string) []*models.Suggestion {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Suggestion
	for _, suggestion := range s.suggestions {
		if suggestion.CuratorID == curatorID {
			copied := *suggestion
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (s *MemoryStorage) Close() error {
	return nil
}

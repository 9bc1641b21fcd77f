package suggestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xaenox/curatord/internal/catalog"
	"github.com/xaenox/curatord/internal/models"
	"github.com/xaenox/curatord/internal/storage"
	"go.uber.org/zap"
)

// DefaultExpiry is how long a new suggestion stays reviewable before the
// expiry sweep retires it.
const DefaultExpiry = 7 * 24 * time.Hour

var (
	ErrNotPending      = errors.New("suggestion has already been reviewed")
	ErrNotApproved     = errors.New("suggestion is not approved")
	ErrAlreadyExecuted = errors.New("suggestion has already been executed")
	ErrMissingAction   = errors.New("suggestion has no action")
)

// Service owns the suggestion lifecycle: pending -> approved/rejected/expired,
// and approved -> executed.
type Service struct {
	store  storage.Storage
	items  catalog.ItemStore
	images catalog.ImageStore
	logger *zap.Logger
	now    func() time.Time
}

func NewService(store storage.Storage, items catalog.ItemStore, images catalog.ImageStore, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		items:  items,
		images: images,
		logger: logger,
		now:    time.Now,
	}
}

// ProposeInput describes a suggestion from any source. CuratorID is empty
// for human-originated suggestions; UserID records the proposing account.
// A negative ConfidenceScore means unspecified and defaults to 80.
type ProposeInput struct {
	CuratorID       string
	UserID          string
	CollectionID    string
	ItemID          string
	Action          models.Action
	Reasoning       string
	ConfidenceScore int
}

// Propose creates a pending suggestion with the default expiry.
func (s *Service) Propose(ctx context.Context, input ProposeInput) (*models.Suggestion, error) {
	if input.Action.Kind() == "" {
		return nil, ErrMissingAction
	}
	if input.CuratorID != "" {
		if _, err := s.store.GetCurator(ctx, input.CuratorID); err != nil {
			return nil, fmt.Errorf("invalid curator reference: %w", err)
		}
	}

	confidence := input.ConfidenceScore
	if confidence < 0 {
		confidence = 80
	}
	expiresAt := s.now().Add(DefaultExpiry)

	suggestion := &models.Suggestion{
		CuratorID:       input.CuratorID,
		UserID:          input.UserID,
		CollectionID:    input.CollectionID,
		ItemID:          input.ItemID,
		Action:          input.Action,
		Reasoning:       input.Reasoning,
		ConfidenceScore: clamp(confidence, 0, 100),
		Status:          models.SuggestionPending,
		ExpiresAt:       &expiresAt,
	}
	if err := s.store.CreateSuggestion(ctx, suggestion); err != nil {
		return nil, err
	}
	return suggestion, nil
}

// Approve moves a pending suggestion to approved and credits the curator.
func (s *Service) Approve(ctx context.Context, id, reviewerID, notes string) (*models.Suggestion, error) {
	return s.review(ctx, id, reviewerID, notes, models.SuggestionApproved)
}

// Reject moves a pending suggestion to rejected.
func (s *Service) Reject(ctx context.Context, id, reviewerID, notes string) (*models.Suggestion, error) {
	return s.review(ctx, id, reviewerID, notes, models.SuggestionRejected)
}

// AutoApprove is the run pipeline's approval path for high-confidence
// suggestions. It skips the reviewer bookkeeping and review counters; the
// reviewed_by field stays empty.
func (s *Service) AutoApprove(ctx context.Context, id string) (*models.Suggestion, error) {
	suggestion, err := s.store.GetSuggestion(ctx, id)
	if err != nil {
		return nil, err
	}
	if !suggestion.IsPending() {
		return nil, ErrNotPending
	}

	suggestion.Status = models.SuggestionApproved
	if err := s.store.UpdateSuggestion(ctx, suggestion); err != nil {
		return nil, err
	}
	return suggestion, nil
}

func (s *Service) review(ctx context.Context, id, reviewerID, notes string, verdict models.SuggestionStatus) (*models.Suggestion, error) {
	suggestion, err := s.store.GetSuggestion(ctx, id)
	if err != nil {
		return nil, err
	}
	if !suggestion.IsPending() {
		return nil, ErrNotPending
	}

	now := s.now()
	suggestion.Status = verdict
	suggestion.ReviewedBy = reviewerID
	suggestion.ReviewedAt = &now
	suggestion.ReviewNotes = notes
	if err := s.store.UpdateSuggestion(ctx, suggestion); err != nil {
		return nil, err
	}

	if suggestion.CuratorID != "" {
		counter := storage.CounterSuggestionsApproved
		if verdict == models.SuggestionRejected {
			counter = storage.CounterSuggestionsRejected
		}
		if err := s.store.IncrementCuratorCounter(ctx, suggestion.CuratorID, counter, 1); err != nil {
			s.logger.Error("Failed to update curator review counter",
				zap.String("curator_id", suggestion.CuratorID),
				zap.Error(err))
		}
	}
	return suggestion, nil
}

// Execute applies an approved, unexecuted suggestion to the collection.
// Execution failures are captured into the execution result and leave the
// suggestion approved and retryable; the returned bool reports success.
func (s *Service) Execute(ctx context.Context, id string) (bool, error) {
	suggestion, err := s.store.GetSuggestion(ctx, id)
	if err != nil {
		return false, err
	}
	if suggestion.Status != models.SuggestionApproved {
		return false, ErrNotApproved
	}
	if suggestion.Executed {
		return false, ErrAlreadyExecuted
	}

	result := s.apply(ctx, suggestion)

	now := s.now()
	suggestion.ExecutionResult = &result
	if result.Status == models.ExecutionSuccess {
		suggestion.Executed = true
		suggestion.ExecutedAt = &now
		if result.ItemID != "" {
			suggestion.ItemID = result.ItemID
		}
	}
	if err := s.store.UpdateSuggestion(ctx, suggestion); err != nil {
		return false, err
	}
	return result.Status == models.ExecutionSuccess, nil
}

// BatchReviewResult summarizes a multi-suggestion review.
type BatchReviewResult struct {
	Approved int
	Rejected int
	Skipped  int
}

// ReviewBatch applies the same verdict to several suggestions independently:
// one failure neither stops nor rolls back the rest, and non-pending entries
// are skipped.
func (s *Service) ReviewBatch(ctx context.Context, ids []string, approve bool, reviewerID, notes string, executeNow bool) (BatchReviewResult, error) {
	suggestions, err := s.store.ListSuggestions(ctx, ids)
	if err != nil {
		return BatchReviewResult{}, err
	}

	var result BatchReviewResult
	for _, suggestion := range suggestions {
		if !suggestion.IsPending() {
			result.Skipped++
			continue
		}
		if approve {
			if _, err := s.Approve(ctx, suggestion.ID, reviewerID, notes); err != nil {
				s.logger.Error("Failed to approve suggestion",
					zap.String("suggestion_id", suggestion.ID), zap.Error(err))
				result.Skipped++
				continue
			}
			result.Approved++
			if executeNow {
				if _, err := s.Execute(ctx, suggestion.ID); err != nil {
					s.logger.Error("Failed to execute suggestion",
						zap.String("suggestion_id", suggestion.ID), zap.Error(err))
				}
			}
		} else {
			if _, err := s.Reject(ctx, suggestion.ID, reviewerID, notes); err != nil {
				s.logger.Error("Failed to reject suggestion",
					zap.String("suggestion_id", suggestion.ID), zap.Error(err))
				result.Skipped++
				continue
			}
			result.Rejected++
		}
	}
	return result, nil
}

// ExecuteApprovedForCollection executes approved, unexecuted suggestions for
// one collection, oldest first.
func (s *Service) ExecuteApprovedForCollection(ctx context.Context, collectionID string, limit int) (executed, failed int, err error) {
	suggestions, err := s.store.ListApprovedUnexecuted(ctx, collectionID, limit)
	if err != nil {
		return 0, 0, err
	}

	for _, suggestion := range suggestions {
		ok, err := s.Execute(ctx, suggestion.ID)
		if err != nil || !ok {
			failed++
			continue
		}
		executed++
	}
	return executed, failed, nil
}

// ExpirePending retires every pending suggestion past its expiry in one bulk
// update. Expired rows keep their review fields untouched.
func (s *Service) ExpirePending(ctx context.Context) (int64, error) {
	expired, err := s.store.ExpirePending(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		s.logger.Info("Expired stale suggestions", zap.Int64("count", expired))
	}
	return expired, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

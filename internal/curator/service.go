package curator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xaenox/curatord/internal/catalog"
	"github.com/xaenox/curatord/internal/models"
	"github.com/xaenox/curatord/internal/storage"
	"github.com/xaenox/curatord/internal/suggestion"
	"go.uber.org/zap"
)

// ErrNotActive means a run was requested for a curator that is not active.
// This is a caller error, not a run failure, so no run log is written.
var ErrNotActive = errors.New("curator is not active")

// RunResult summarizes one completed curator run.
type RunResult struct {
	RunID              string
	ItemsAnalyzed      int
	SuggestionsCreated int
}

// Service executes curator runs end to end: collection context, LLM call,
// suggestion ingestion, and run-log bookkeeping.
type Service struct {
	store       storage.Storage
	collections catalog.CollectionStore
	suggestions *suggestion.Service
	provider    LLMProvider
	temperature float64
	logger      *zap.Logger
	now         func() time.Time
}

func NewService(store storage.Storage, collections catalog.CollectionStore, suggestions *suggestion.Service, provider LLMProvider, temperature float64, logger *zap.Logger) *Service {
	if temperature == 0 {
		temperature = 0.7
	}
	return &Service{
		store:       store,
		collections: collections,
		suggestions: suggestions,
		provider:    provider,
		temperature: temperature,
		logger:      logger,
		now:         time.Now,
	}
}

// Run executes one curator run. Failures after the run log is created
// finalize it as failed, move the curator to error status, and propagate;
// the scheduler isolates them per curator.
func (s *Service) Run(ctx context.Context, curatorID, extraInstructions string) (*RunResult, error) {
	curator, err := s.store.GetCurator(ctx, curatorID)
	if err != nil {
		return nil, err
	}
	if !curator.IsActive() {
		return nil, ErrNotActive
	}

	runLog := &models.RunLog{
		CuratorID: curator.ID,
		Status:    models.RunStarted,
		StartedAt: s.now(),
	}
	if err := s.store.CreateRunLog(ctx, runLog); err != nil {
		return nil, err
	}

	result, err := s.run(ctx, curator, runLog, extraInstructions)
	completedAt := s.now()
	runLog.CompletedAt = &completedAt
	if err != nil {
		s.logger.Error("Curator run failed",
			zap.String("curator_id", curator.ID),
			zap.Error(err))
		runLog.Status = models.RunFailed
		runLog.ErrorMessage = err.Error()
		if finalizeErr := s.store.FinalizeRunLog(ctx, runLog); finalizeErr != nil {
			s.logger.Error("Failed to finalize run log",
				zap.String("run_id", runLog.ID),
				zap.Error(finalizeErr))
		}
		if statusErr := s.store.SetCuratorStatus(ctx, curator.ID, models.CuratorError, err.Error()); statusErr != nil {
			s.logger.Error("Failed to mark curator errored",
				zap.String("curator_id", curator.ID),
				zap.Error(statusErr))
		}
		return nil, err
	}

	runLog.Status = models.RunCompleted
	runLog.ItemsAnalyzed = result.ItemsAnalyzed
	runLog.SuggestionsGenerated = result.SuggestionsCreated
	if err := s.store.FinalizeRunLog(ctx, runLog); err != nil {
		return nil, err
	}

	result.RunID = runLog.ID
	s.logger.Info("Curator run completed",
		zap.String("curator_id", curator.ID),
		zap.Int("items_analyzed", result.ItemsAnalyzed),
		zap.Int("suggestions_created", result.SuggestionsCreated))
	return result, nil
}

func (s *Service) run(ctx context.Context, curator *models.Curator, runLog *models.RunLog, extraInstructions string) (*RunResult, error) {
	collection, err := s.collections.GetCollection(ctx, curator.CollectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load collection: %w", err)
	}
	items, err := s.collections.GetChildren(ctx, curator.CollectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load collection items: %w", err)
	}

	prompt := buildPrompt(curator, collection, items, extraInstructions)
	raw, usage, err := s.provider.Complete(ctx, defaultSystemPrompt, prompt, curator.Model, s.temperature)
	if err != nil {
		return nil, err
	}
	if usage != nil {
		runLog.APIUsage = map[string]any{
			"prompt_tokens":     usage.PromptTokens,
			"completion_tokens": usage.CompletionTokens,
		}
	}

	created := 0
	for _, proposal := range parseSuggestions(raw) {
		stored, err := s.ingest(ctx, curator, proposal)
		if err != nil {
			return nil, err
		}
		if stored {
			created++
		}
	}

	if created > 0 {
		if err := s.store.IncrementCuratorCounter(ctx, curator.ID, storage.CounterSuggestionsMade, created); err != nil {
			return nil, err
		}
	}
	now := s.now()
	if err := s.store.SetRunTimes(ctx, curator.ID, &now, curator.CalculateNextRunTime(now)); err != nil {
		return nil, err
	}

	return &RunResult{
		ItemsAnalyzed:      len(items),
		SuggestionsCreated: created,
	}, nil
}

// ingest persists one proposal unless a pending suggestion for the same item
// already exists, and auto-approves when the curator's policy allows it.
func (s *Service) ingest(ctx context.Context, curator *models.Curator, proposal proposal) (bool, error) {
	exists, err := s.store.HasPendingForItem(ctx, curator.ID, proposal.itemName)
	if err != nil {
		return false, err
	}
	if exists {
		s.logger.Debug("Skipping duplicate pending suggestion",
			zap.String("curator_id", curator.ID),
			zap.String("item_name", proposal.itemName))
		return false, nil
	}

	stored, err := s.suggestions.Propose(ctx, suggestion.ProposeInput{
		CuratorID:       curator.ID,
		CollectionID:    curator.CollectionID,
		Action:          proposal.action,
		Reasoning:       proposal.reasoning,
		ConfidenceScore: proposal.confidence,
	})
	if err != nil {
		return false, err
	}

	if stored.ShouldAutoApprove(curator) {
		if _, err := s.suggestions.AutoApprove(ctx, stored.ID); err != nil {
			return false, err
		}
		if _, err := s.suggestions.Execute(ctx, stored.ID); err != nil {
			s.logger.Error("Failed to execute auto-approved suggestion",
				zap.String("suggestion_id", stored.ID),
				zap.Error(err))
		}
	}
	return true, nil
}

type proposal struct {
	action     models.Action
	itemName   string
	reasoning  string
	confidence int
}

type providerSuggestion struct {
	Action      string         `json:"action"`
	ItemName    string         `json:"item_name"`
	Reason      string         `json:"reason"`
	Confidence  *int           `json:"confidence"`
	SearchQuery string         `json:"search_query"`
	Metadata    map[string]any `json:"metadata"`
}

// parseSuggestions normalizes the provider's JSON. A malformed response or a
// missing suggestions key degrades to an empty list; a run that analyzed
// items and proposed nothing is a valid outcome, not an error.
func parseSuggestions(raw json.RawMessage) []proposal {
	if len(raw) == 0 {
		return nil
	}

	var decoded struct {
		Suggestions []providerSuggestion `json:"suggestions"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil
	}

	var proposals []proposal
	for _, entry := range decoded.Suggestions {
		if entry.ItemName == "" {
			continue
		}
		confidence := 50
		if entry.Confidence != nil {
			confidence = *entry.Confidence
		}
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 100 {
			confidence = 100
		}

		searchQuery := entry.SearchQuery
		if searchQuery == "" {
			searchQuery = entry.ItemName
		}

		var action models.Action
		if entry.Action == "add" {
			action.AddItem = &models.AddItemAction{
				ItemName:       entry.ItemName,
				SearchQuery:    searchQuery,
				SupportingData: entry.Metadata,
			}
		} else {
			action.RemoveItem = &models.RemoveItemAction{
				ItemName: entry.ItemName,
				Reason:   entry.Reason,
			}
		}

		proposals = append(proposals, proposal{
			action:     action,
			itemName:   entry.ItemName,
			reasoning:  entry.Reason,
			confidence: confidence,
		})
	}
	return proposals
}

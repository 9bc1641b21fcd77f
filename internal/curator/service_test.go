package curator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/curatord/internal/catalog"
	"github.com/xaenox/curatord/internal/models"
	"github.com/xaenox/curatord/internal/storage"
	"github.com/xaenox/curatord/internal/suggestion"
	"go.uber.org/zap"
)

type fakeProvider struct {
	response string
	err      error
	calls    int
}

func (p *fakeProvider) Complete(ctx context.Context, systemPrompt, userPrompt, model string, temperature float64) (json.RawMessage, *Usage, error) {
	p.calls++
	if p.err != nil {
		return nil, nil, p.err
	}
	return json.RawMessage(p.response), &Usage{PromptTokens: 120, CompletionTokens: 40}, nil
}

const gammaResponse = `{"suggestions": [{"action": "add", "item_name": "Gamma", "reason": "fills a gap", "confidence": 90, "search_query": "Gamma"}]}`

type runFixture struct {
	store    *storage.MemoryStorage
	cat      *catalog.MemoryCatalog
	provider *fakeProvider
	service  *Service
	curator  *models.Curator
}

func newRunFixture(t *testing.T, autoApprove bool) *runFixture {
	t.Helper()

	store := storage.NewMemoryStorage()
	cat := catalog.NewMemoryCatalog()
	provider := &fakeProvider{response: gammaResponse}

	collectionID := cat.AddItem("Rare Coins", map[string]any{"description": "A coin collection"})
	for _, name := range []string{"Alpha", "Beta"} {
		itemID := cat.AddItem(name, map[string]any{"rarity": "common"})
		cat.Attach(collectionID, itemID)
	}

	curatorModel := &models.Curator{
		CollectionID:        collectionID,
		Prompt:              "fill chronological gaps",
		Status:              models.CuratorActive,
		ScheduleType:        models.ScheduleDaily,
		AutoApprove:         autoApprove,
		ConfidenceThreshold: 80,
	}
	require.NoError(t, store.CreateCurator(context.Background(), curatorModel))

	suggestions := suggestion.NewService(store, cat, cat, zap.NewNop())
	service := NewService(store, cat, suggestions, provider, 0.7, zap.NewNop())

	return &runFixture{
		store:    store,
		cat:      cat,
		provider: provider,
		service:  service,
		curator:  curatorModel,
	}
}

func TestRunCreatesPendingSuggestion(t *testing.T) {
	f := newRunFixture(t, false)

	result, err := f.service.Run(context.Background(), f.curator.ID, "")
	require.NoError(t, err)

	assert.Equal(t, 2, result.ItemsAnalyzed)
	assert.Equal(t, 1, result.SuggestionsCreated)

	suggestions := f.store.ListSuggestionsByCurator(f.curator.ID)
	require.Len(t, suggestions, 1)
	created := suggestions[0]
	assert.Equal(t, models.SuggestionPending, created.Status)
	assert.Equal(t, 90, created.ConfidenceScore)
	assert.Equal(t, models.ActionAddItem, created.Action.Kind())
	assert.Equal(t, "Gamma", created.Action.AddItem.ItemName)
	assert.Equal(t, "fills a gap", created.Reasoning)
	assert.False(t, created.Executed)

	runLog, ok := f.store.GetRunLog(result.RunID)
	require.True(t, ok)
	assert.Equal(t, models.RunCompleted, runLog.Status)
	assert.Equal(t, 2, runLog.ItemsAnalyzed)
	assert.Equal(t, 1, runLog.SuggestionsGenerated)
	require.NotNil(t, runLog.CompletedAt)
	assert.Equal(t, 120, runLog.APIUsage["prompt_tokens"])

	curator, err := f.store.GetCurator(context.Background(), f.curator.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, curator.SuggestionsMade)
	require.NotNil(t, curator.LastRunAt)
	require.NotNil(t, curator.NextRunAt)
	assert.Equal(t, curator.LastRunAt.Add(24*time.Hour), *curator.NextRunAt)
}

func TestRunAutoApprovesAndExecutes(t *testing.T) {
	f := newRunFixture(t, true)

	_, err := f.service.Run(context.Background(), f.curator.ID, "")
	require.NoError(t, err)

	suggestions := f.store.ListSuggestionsByCurator(f.curator.ID)
	require.Len(t, suggestions, 1)
	created := suggestions[0]
	assert.Equal(t, models.SuggestionApproved, created.Status)
	assert.True(t, created.Executed)
	require.NotNil(t, created.ExecutionResult)
	assert.Equal(t, models.ExecutionSuccess, created.ExecutionResult.Status)
	assert.Empty(t, created.ReviewedBy)

	children, err := f.cat.GetChildren(context.Background(), f.curator.CollectionID)
	require.NoError(t, err)
	names := make([]string, 0, len(children))
	for _, child := range children {
		names = append(names, child.Name)
	}
	assert.Contains(t, names, "Gamma")
}

func TestRunBelowThresholdStaysPending(t *testing.T) {
	f := newRunFixture(t, true)
	f.provider.response = `{"suggestions": [{"action": "add", "item_name": "Gamma", "reason": "maybe", "confidence": 79}]}`

	_, err := f.service.Run(context.Background(), f.curator.ID, "")
	require.NoError(t, err)

	suggestions := f.store.ListSuggestionsByCurator(f.curator.ID)
	require.Len(t, suggestions, 1)
	assert.Equal(t, models.SuggestionPending, suggestions[0].Status)
	assert.False(t, suggestions[0].Executed)
}

func TestRunAtThresholdAutoApproves(t *testing.T) {
	f := newRunFixture(t, true)
	f.provider.response = `{"suggestions": [{"action": "add", "item_name": "Gamma", "reason": "solid", "confidence": 80}]}`

	_, err := f.service.Run(context.Background(), f.curator.ID, "")
	require.NoError(t, err)

	suggestions := f.store.ListSuggestionsByCurator(f.curator.ID)
	require.Len(t, suggestions, 1)
	assert.Equal(t, models.SuggestionApproved, suggestions[0].Status)
	assert.True(t, suggestions[0].Executed)
}

func TestRunDeduplicatesPendingSuggestions(t *testing.T) {
	f := newRunFixture(t, false)

	first, err := f.service.Run(context.Background(), f.curator.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 1, first.SuggestionsCreated)

	second, err := f.service.Run(context.Background(), f.curator.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 0, second.SuggestionsCreated)

	assert.Len(t, f.store.ListSuggestionsByCurator(f.curator.ID), 1)

	curator, err := f.store.GetCurator(context.Background(), f.curator.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, curator.SuggestionsMade)
}

func TestRunMalformedResponseCompletesEmpty(t *testing.T) {
	f := newRunFixture(t, false)
	f.provider.response = `this is not json`

	result, err := f.service.Run(context.Background(), f.curator.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 0, result.SuggestionsCreated)
	assert.Equal(t, 2, result.ItemsAnalyzed)

	runLog, ok := f.store.GetRunLog(result.RunID)
	require.True(t, ok)
	assert.Equal(t, models.RunCompleted, runLog.Status)
}

func TestRunProviderFailure(t *testing.T) {
	f := newRunFixture(t, false)
	f.provider.err = errors.New("API request failed: 500")

	_, err := f.service.Run(context.Background(), f.curator.ID, "")
	require.Error(t, err)

	logs := f.store.RunLogsByCurator(f.curator.ID)
	require.Len(t, logs, 1)
	assert.Equal(t, models.RunFailed, logs[0].Status)
	assert.Contains(t, logs[0].ErrorMessage, "API request failed")
	require.NotNil(t, logs[0].CompletedAt)

	curator, err := f.store.GetCurator(context.Background(), f.curator.ID)
	require.NoError(t, err)
	assert.Nil(t, curator.LastRunAt)
	assert.Equal(t, models.CuratorError, curator.Status)
	assert.Contains(t, curator.PerformanceMetrics["last_error"], "API request failed")

	// An errored curator is no longer active, so the scheduler stops
	// selecting it instead of retrying a broken run every day.
	due, err := f.store.ListDueCurators(context.Background(), time.Now().Add(48*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestRunInactiveCuratorRejected(t *testing.T) {
	f := newRunFixture(t, false)
	require.NoError(t, f.store.SetCuratorStatus(context.Background(), f.curator.ID, models.CuratorPaused, ""))

	_, err := f.service.Run(context.Background(), f.curator.ID, "")
	assert.ErrorIs(t, err, ErrNotActive)

	assert.Empty(t, f.store.RunLogsByCurator(f.curator.ID))
	assert.Zero(t, f.provider.calls)
}

func TestParseSuggestionsNormalization(t *testing.T) {
	raw := json.RawMessage(`{"suggestions": [
		{"action": "add", "item_name": "Gamma", "reason": "gap", "confidence": 150},
		{"action": "remove", "item_name": "Beta", "reason": "duplicate", "confidence": -5},
		{"action": "add", "reason": "nameless"},
		{"action": "add", "item_name": "Delta"}
	]}`)

	proposals := parseSuggestions(raw)
	require.Len(t, proposals, 3)

	assert.Equal(t, models.ActionAddItem, proposals[0].action.Kind())
	assert.Equal(t, 100, proposals[0].confidence)
	assert.Equal(t, "Gamma", proposals[0].action.AddItem.SearchQuery)

	assert.Equal(t, models.ActionRemoveItem, proposals[1].action.Kind())
	assert.Equal(t, 0, proposals[1].confidence)

	assert.Equal(t, "Delta", proposals[2].itemName)
	assert.Equal(t, 50, proposals[2].confidence)
}

func TestParseSuggestionsMissingKey(t *testing.T) {
	assert.Empty(t, parseSuggestions(json.RawMessage(`{"items": []}`)))
	assert.Empty(t, parseSuggestions(nil))
	assert.Empty(t, parseSuggestions(json.RawMessage(`[]`)))
}

func TestExtractJSONObject(t *testing.T) {
	text := "Here are my suggestions:\n" + gammaResponse + "\nLet me know!"
	extracted := extractJSONObject(text)
	require.NotNil(t, extracted)

	proposals := parseSuggestions(extracted)
	require.Len(t, proposals, 1)
	assert.Equal(t, "Gamma", proposals[0].itemName)

	assert.Nil(t, extractJSONObject("no object here"))
	assert.NotNil(t, extractJSONObject(`{"nested": {"a": "b}"}}`))
}

func TestBuildPromptShape(t *testing.T) {
	curatorModel := &models.Curator{
		Prompt: "fill chronological gaps",
		Rules:  []string{"only coins minted before 1900"},
	}
	collection := &catalog.CollectionItem{
		Name:       "Rare Coins",
		Attributes: map[string]any{"description": "A coin collection"},
	}
	items := []catalog.CollectionItem{
		{Name: "Alpha", Attributes: map[string]any{"rarity": "common"}},
		{Name: "Beta", Attributes: map[string]any{}},
	}

	prompt := buildPrompt(curatorModel, collection, items, "focus on 1850s")

	assert.Contains(t, prompt, "You are curating the collection: Rare Coins")
	assert.Contains(t, prompt, "Collection Description: A coin collection")
	assert.Contains(t, prompt, "- Alpha (common)")
	assert.Contains(t, prompt, "- Beta\n")
	assert.Contains(t, prompt, "- only coins minted before 1900")
	assert.Contains(t, prompt, "- fill chronological gaps")
	assert.Contains(t, prompt, "Additional instructions for this run: focus on 1850s")
	assert.Contains(t, prompt, `"suggestions"`)
}

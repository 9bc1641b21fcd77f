package suggestion

import (
	"context"
	"fmt"

	"github.com/xaenox/curatord/internal/models"
	"go.uber.org/zap"
)

// apply dispatches on the action variant and performs the catalog mutation.
// The switch is exhaustive over the Action union: a new variant without a
// case here falls through to the unknown-action error.
func (s *Service) apply(ctx context.Context, suggestion *models.Suggestion) models.ExecutionResult {
	var result models.ExecutionResult
	var err error

	switch kind := suggestion.Action.Kind(); kind {
	case models.ActionAddItem:
		result, err = s.applyAddItem(ctx, suggestion, suggestion.Action.AddItem)
	case models.ActionAddSubcollection:
		result, err = s.applyAddSubcollection(ctx, suggestion, suggestion.Action.AddSubcollection)
	case models.ActionRemoveItem:
		result, err = s.applyRemoveItem(ctx, suggestion)
	case models.ActionUpdateItem:
		result, err = s.applyUpdateItem(ctx, suggestion, suggestion.Action.UpdateItem)
	default:
		err = fmt.Errorf("unknown action type: %q", kind)
	}

	if err != nil {
		s.logger.Error("Suggestion execution failed",
			zap.String("suggestion_id", suggestion.ID),
			zap.Error(err))
		return models.ExecutionResult{
			Status:  models.ExecutionError,
			Message: err.Error(),
		}
	}
	return result
}

func (s *Service) applyAddItem(ctx context.Context, suggestion *models.Suggestion, action *models.AddItemAction) (models.ExecutionResult, error) {
	itemType := action.ItemType
	if itemType == "" {
		itemType = "collectible"
	}

	itemID, err := s.items.CreateItem(ctx, action.ItemName, itemType, action.SupportingData)
	if err != nil {
		return models.ExecutionResult{}, fmt.Errorf("failed to create item: %w", err)
	}
	if err := s.items.AttachToCollection(ctx, suggestion.CollectionID, itemID); err != nil {
		return models.ExecutionResult{}, fmt.Errorf("failed to attach item: %w", err)
	}

	return models.ExecutionResult{
		Status:  models.ExecutionSuccess,
		Message: fmt.Sprintf("Added %q to collection", action.ItemName),
		ItemID:  itemID,
	}, nil
}

func (s *Service) applyAddSubcollection(ctx context.Context, suggestion *models.Suggestion, action *models.AddSubcollectionAction) (models.ExecutionResult, error) {
	attributes := map[string]any{}
	for k, v := range action.SupportingData {
		attributes[k] = v
	}
	if action.Description != "" {
		attributes["description"] = action.Description
	}

	subID, err := s.items.CreateItem(ctx, action.Name, "collection", attributes)
	if err != nil {
		return models.ExecutionResult{}, fmt.Errorf("failed to create subcollection: %w", err)
	}
	if err := s.items.AttachToCollection(ctx, suggestion.CollectionID, subID); err != nil {
		return models.ExecutionResult{}, fmt.Errorf("failed to attach subcollection: %w", err)
	}

	if action.LogoURL != "" {
		if err := s.images.CreateImage(ctx, subID, "logo", action.LogoURL); err != nil {
			return models.ExecutionResult{}, fmt.Errorf("failed to record logo image: %w", err)
		}
	}
	if action.SymbolURL != "" {
		if err := s.images.CreateImage(ctx, subID, "symbol", action.SymbolURL); err != nil {
			return models.ExecutionResult{}, fmt.Errorf("failed to record symbol image: %w", err)
		}
	}

	for _, child := range action.Items {
		childType := child.ItemType
		if childType == "" {
			childType = "collectible"
		}
		childID, err := s.items.CreateItem(ctx, child.ItemName, childType, child.SupportingData)
		if err != nil {
			return models.ExecutionResult{}, fmt.Errorf("failed to create nested item %q: %w", child.ItemName, err)
		}
		if err := s.items.AttachToCollection(ctx, subID, childID); err != nil {
			return models.ExecutionResult{}, fmt.Errorf("failed to attach nested item %q: %w", child.ItemName, err)
		}
	}

	return models.ExecutionResult{
		Status:  models.ExecutionSuccess,
		Message: fmt.Sprintf("Created subcollection %q with %d item(s)", action.Name, len(action.Items)),
		ItemID:  subID,
	}, nil
}

func (s *Service) applyRemoveItem(ctx context.Context, suggestion *models.Suggestion) (models.ExecutionResult, error) {
	if suggestion.ItemID == "" {
		return models.ExecutionResult{}, fmt.Errorf("remove_item suggestion has no target item")
	}
	if err := s.items.Detach(ctx, suggestion.CollectionID, suggestion.ItemID); err != nil {
		return models.ExecutionResult{}, fmt.Errorf("failed to detach item: %w", err)
	}

	return models.ExecutionResult{
		Status:  models.ExecutionSuccess,
		Message: "Removed item from collection",
		ItemID:  suggestion.ItemID,
	}, nil
}

func (s *Service) applyUpdateItem(ctx context.Context, suggestion *models.Suggestion, action *models.UpdateItemAction) (models.ExecutionResult, error) {
	if suggestion.ItemID == "" {
		return models.ExecutionResult{}, fmt.Errorf("update_item suggestion has no target item")
	}
	if err := s.items.UpdateAttributes(ctx, suggestion.ItemID, action.Updates); err != nil {
		return models.ExecutionResult{}, fmt.Errorf("failed to update item: %w", err)
	}

	return models.ExecutionResult{
		Status:  models.ExecutionSuccess,
		Message: fmt.Sprintf("Updated %d item field(s)", len(action.Updates)),
		ItemID:  suggestion.ItemID,
	}, nil
}

package models

import (
	"time"
)

type SuggestionStatus string

const (
	SuggestionPending  SuggestionStatus = "pending"
	SuggestionApproved SuggestionStatus = "approved"
	SuggestionRejected SuggestionStatus = "rejected"
	SuggestionExpired  SuggestionStatus = "expired"
)

// Action is the mutation a suggestion proposes. Exactly one variant is set;
// Kind reports which. New action types extend this union and the compiler
// flags every switch that misses them.
type Action struct {
	AddItem          *AddItemAction          `json:"add_item,omitempty"`
	AddSubcollection *AddSubcollectionAction `json:"add_subcollection,omitempty"`
	RemoveItem       *RemoveItemAction       `json:"remove_item,omitempty"`
	UpdateItem       *UpdateItemAction       `json:"update_item,omitempty"`
}

type ActionKind string

const (
	ActionAddItem          ActionKind = "add_item"
	ActionAddSubcollection ActionKind = "add_subcollection"
	ActionRemoveItem       ActionKind = "remove_item"
	ActionUpdateItem       ActionKind = "update_item"
)

func (a Action) Kind() ActionKind {
	switch {
	case a.AddItem != nil:
		return ActionAddItem
	case a.AddSubcollection != nil:
		return ActionAddSubcollection
	case a.RemoveItem != nil:
		return ActionRemoveItem
	case a.UpdateItem != nil:
		return ActionUpdateItem
	}
	return ""
}

type AddItemAction struct {
	ItemName       string         `json:"item_name"`
	ItemType       string         `json:"item_type,omitempty"`
	SearchQuery    string         `json:"search_query,omitempty"`
	SupportingData map[string]any `json:"supporting_data,omitempty"`
}

type AddSubcollectionAction struct {
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	LogoURL        string          `json:"logo_url,omitempty"`
	SymbolURL      string          `json:"symbol_url,omitempty"`
	Items          []AddItemAction `json:"items,omitempty"`
	SupportingData map[string]any  `json:"supporting_data,omitempty"`
}

type RemoveItemAction struct {
	ItemName string `json:"item_name,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type UpdateItemAction struct {
	Updates map[string]any `json:"updates"`
}

type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionError   ExecutionStatus = "error"
)

type ExecutionResult struct {
	Status  ExecutionStatus `json:"status"`
	Message string          `json:"message,omitempty"`
	ItemID  string          `json:"item_id,omitempty"`
}

// Suggestion is a single proposed change to a collection awaiting review.
// CuratorID is empty when the suggestion came from a human rather than a
// curator run; UserID records the proposing account in that case.
type Suggestion struct {
	ID              string           `json:"id"`
	CuratorID       string           `json:"curator_id,omitempty"`
	UserID          string           `json:"user_id,omitempty"`
	CollectionID    string           `json:"collection_id"`
	ItemID          string           `json:"item_id,omitempty"`
	Action          Action           `json:"action"`
	Reasoning       string           `json:"reasoning"`
	ConfidenceScore int              `json:"confidence_score"`
	Status          SuggestionStatus `json:"status"`
	ReviewedBy      string           `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time       `json:"reviewed_at,omitempty"`
	ReviewNotes     string           `json:"review_notes,omitempty"`
	Executed        bool             `json:"executed"`
	ExecutedAt      *time.Time       `json:"executed_at,omitempty"`
	ExecutionResult *ExecutionResult `json:"execution_result,omitempty"`
	ExpiresAt       *time.Time       `json:"expires_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

func (s *Suggestion) IsPending() bool {
	return s.Status == SuggestionPending
}

// ItemName returns the item name the action targets, used for pending-
// suggestion deduplication across runs.
func (s *Suggestion) ItemName() string {
	switch {
	case s.Action.AddItem != nil:
		return s.Action.AddItem.ItemName
	case s.Action.AddSubcollection != nil:
		return s.Action.AddSubcollection.Name
	case s.Action.RemoveItem != nil:
		return s.Action.RemoveItem.ItemName
	}
	return ""
}

func (s *Suggestion) ShouldAutoApprove(c *Curator) bool {
	return c.AutoApprove && s.ConfidenceScore >= c.ConfidenceThreshold
}

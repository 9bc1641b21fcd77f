package models

import (
	"time"
)

type CuratorStatus string

const (
	CuratorInactive CuratorStatus = "inactive"
	CuratorActive   CuratorStatus = "active"
	CuratorPaused   CuratorStatus = "paused"
	CuratorError    CuratorStatus = "error"
)

type ScheduleType string

const (
	ScheduleManual ScheduleType = "manual"
	ScheduleDaily  ScheduleType = "daily"
)

// Curator is one automated curation agent bound to a single collection.
type Curator struct {
	ID                  string         `json:"id"`
	CollectionID        string         `json:"collection_id"`
	Name                string         `json:"name"`
	Prompt              string         `json:"prompt"`
	Model               string         `json:"model,omitempty"`
	Status              CuratorStatus  `json:"status"`
	ScheduleType        ScheduleType   `json:"schedule_type"`
	AutoApprove         bool           `json:"auto_approve"`
	ConfidenceThreshold int            `json:"confidence_threshold"`
	Rules               []string       `json:"rules,omitempty"`
	LastRunAt           *time.Time     `json:"last_run_at,omitempty"`
	NextRunAt           *time.Time     `json:"next_run_at,omitempty"`
	SuggestionsMade     int            `json:"suggestions_made"`
	SuggestionsApproved int            `json:"suggestions_approved"`
	SuggestionsRejected int            `json:"suggestions_rejected"`
	PerformanceMetrics  map[string]any `json:"performance_metrics,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

func (c *Curator) IsActive() bool {
	return c.Status == CuratorActive
}

func (c *Curator) ShouldRunNow(now time.Time) bool {
	if !c.IsActive() || c.ScheduleType == ScheduleManual {
		return false
	}
	return c.NextRunAt == nil || !c.NextRunAt.After(now)
}

// CalculateNextRunTime returns the next scheduled run. Curators always run
// daily; the schedule_type field only distinguishes manual from scheduled.
func (c *Curator) CalculateNextRunTime(now time.Time) time.Time {
	return now.Add(24 * time.Hour)
}

func (c *Curator) ApprovalRate() float64 {
	total := c.SuggestionsApproved + c.SuggestionsRejected
	if total == 0 {
		return 0
	}
	return float64(c.SuggestionsApproved) / float64(total) * 100
}

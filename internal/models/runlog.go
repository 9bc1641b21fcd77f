package models

import (
	"time"
)

type RunStatus string

const (
	RunStarted   RunStatus = "started"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunLog is the immutable audit record of one curator run. It is created as
// started and finalized exactly once as completed or failed.
type RunLog struct {
	ID                   string         `json:"id"`
	CuratorID            string         `json:"curator_id"`
	Status               RunStatus      `json:"status"`
	StartedAt            time.Time      `json:"started_at"`
	CompletedAt          *time.Time     `json:"completed_at,omitempty"`
	ItemsAnalyzed        int            `json:"items_analyzed"`
	SuggestionsGenerated int            `json:"suggestions_generated"`
	APIUsage             map[string]any `json:"api_usage,omitempty"`
	ErrorMessage         string         `json:"error_message,omitempty"`
}

func (r *RunLog) IsSuccessful() bool {
	return r.Status == RunCompleted
}

func (r *RunLog) IsRunning() bool {
	return r.Status == RunStarted && r.CompletedAt == nil
}

func (r *RunLog) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

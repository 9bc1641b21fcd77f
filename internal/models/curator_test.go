package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldRunNow(t *testing.T) {
	now := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	cases := []struct {
		name    string
		curator Curator
		want    bool
	}{
		{"active and overdue", Curator{Status: CuratorActive, ScheduleType: ScheduleDaily, NextRunAt: &past}, true},
		{"active and never run", Curator{Status: CuratorActive, ScheduleType: ScheduleDaily}, true},
		{"active but not due yet", Curator{Status: CuratorActive, ScheduleType: ScheduleDaily, NextRunAt: &future}, false},
		{"manual schedule", Curator{Status: CuratorActive, ScheduleType: ScheduleManual, NextRunAt: &past}, false},
		{"inactive", Curator{Status: CuratorInactive, ScheduleType: ScheduleDaily, NextRunAt: &past}, false},
		{"paused", Curator{Status: CuratorPaused, ScheduleType: ScheduleDaily, NextRunAt: &past}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.curator.ShouldRunNow(now))
		})
	}
}

func TestCalculateNextRunTime(t *testing.T) {
	now := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	c := Curator{ScheduleType: ScheduleDaily}
	assert.Equal(t, now.Add(24*time.Hour), c.CalculateNextRunTime(now))
}

func TestApprovalRate(t *testing.T) {
	assert.Zero(t, (&Curator{}).ApprovalRate())
	assert.InDelta(t, 75.0, (&Curator{SuggestionsApproved: 3, SuggestionsRejected: 1}).ApprovalRate(), 0.001)
}

func TestActionKind(t *testing.T) {
	assert.Equal(t, ActionAddItem, Action{AddItem: &AddItemAction{ItemName: "x"}}.Kind())
	assert.Equal(t, ActionAddSubcollection, Action{AddSubcollection: &AddSubcollectionAction{Name: "x"}}.Kind())
	assert.Equal(t, ActionRemoveItem, Action{RemoveItem: &RemoveItemAction{}}.Kind())
	assert.Equal(t, ActionUpdateItem, Action{UpdateItem: &UpdateItemAction{}}.Kind())
	assert.Empty(t, Action{}.Kind())
}

func TestShouldAutoApprove(t *testing.T) {
	curator := &Curator{AutoApprove: true, ConfidenceThreshold: 80}

	assert.True(t, (&Suggestion{ConfidenceScore: 80}).ShouldAutoApprove(curator))
	assert.True(t, (&Suggestion{ConfidenceScore: 100}).ShouldAutoApprove(curator))
	assert.False(t, (&Suggestion{ConfidenceScore: 79}).ShouldAutoApprove(curator))

	curator.AutoApprove = false
	assert.False(t, (&Suggestion{ConfidenceScore: 100}).ShouldAutoApprove(curator))
}

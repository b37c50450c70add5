package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal"
)

func recordsWithScores(scores ...float64) []internal.CheckInRecord {
	out := make([]internal.CheckInRecord, len(scores))
	for i, s := range scores {
		out[i] = internal.CheckInRecord{ComplianceScore: s}
	}
	return out
}

func TestStreakMilestoneAwardedOnce(t *testing.T) {
	st := &internal.UserState{Streak: internal.StreakState{Current: 7}}

	res := EvaluateMilestones(st, nil)
	assert.Equal(t, []int{7}, res.Milestones)
	assert.Contains(t, res.Badges, "streak_week")

	// Re-evaluating after the celebration is persisted stays quiet.
	st.MilestonesCelebrated = []int{7}
	res = EvaluateMilestones(st, nil)
	assert.True(t, res.Empty())
}

func TestStreakMilestoneOnlyAtExactLength(t *testing.T) {
	st := &internal.UserState{Streak: internal.StreakState{Current: 8}}
	res := EvaluateMilestones(st, nil)
	assert.Empty(t, res.Milestones)
}

func TestPerfectWeekBadge(t *testing.T) {
	st := &internal.UserState{Streak: internal.StreakState{Current: 7}}
	recent := recordsWithScores(100, 100, 100, 100, 100, 100, 100)

	res := EvaluateMilestones(st, recent)
	assert.Contains(t, res.Badges, BadgePerfectWeek)
}

func TestPerfectWeekNeedsSevenPerfectScores(t *testing.T) {
	st := &internal.UserState{}
	recent := recordsWithScores(100, 100, 100, 83.33, 100, 100, 100)
	res := EvaluateMilestones(st, recent)
	assert.NotContains(t, res.Badges, BadgePerfectWeek)

	// Six perfect days are not enough history.
	res = EvaluateMilestones(st, recordsWithScores(100, 100, 100, 100, 100, 100))
	assert.NotContains(t, res.Badges, BadgePerfectWeek)
}

func TestPerfectWeekNotReawarded(t *testing.T) {
	st := &internal.UserState{Achievements: []string{BadgePerfectWeek}}
	recent := recordsWithScores(100, 100, 100, 100, 100, 100, 100)
	res := EvaluateMilestones(st, recent)
	assert.NotContains(t, res.Badges, BadgePerfectWeek)
}

func TestComebackBadge(t *testing.T) {
	st := &internal.UserState{Streak: internal.StreakState{Current: 5, StreakBeforeReset: 5}}
	res := EvaluateMilestones(st, nil)
	assert.Contains(t, res.Badges, BadgeComeback)

	// Still short of the pre-reset streak: no badge yet.
	st = &internal.UserState{Streak: internal.StreakState{Current: 4, StreakBeforeReset: 5}}
	res = EvaluateMilestones(st, nil)
	assert.NotContains(t, res.Badges, BadgeComeback)

	// Never reset: nothing to come back from.
	st = &internal.UserState{Streak: internal.StreakState{Current: 10}}
	res = EvaluateMilestones(st, nil)
	assert.NotContains(t, res.Badges, BadgeComeback)
}

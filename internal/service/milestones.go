package service

import "github.com/ayush-jaipuriar/accountability-agent-sub002/internal"

const (
	BadgePerfectWeek = "perfect_week"
	BadgeComeback    = "comeback"
)

// streakMilestones are the streak lengths worth celebrating, ascending.
var streakMilestones = []int{7, 14, 30, 60, 90, 180, 365}

type MilestoneResult struct {
	Badges     []string
	Milestones []int // streak lengths newly celebrated
}

func (r MilestoneResult) Empty() bool {
	return len(r.Badges) == 0 && len(r.Milestones) == 0
}

// EvaluateMilestones inspects the post-commit state and recent history and
// returns newly earned badges and milestone streak lengths. It is pure: the
// caller persists the result into Achievements / MilestonesCelebrated.
// recent must be ordered newest first and include the just-committed record.
func EvaluateMilestones(state *internal.UserState, recent []internal.CheckInRecord) MilestoneResult {
	var res MilestoneResult

	for _, m := range streakMilestones {
		if state.Streak.Current == m && !state.MilestoneCelebrated(m) {
			res.Milestones = append(res.Milestones, m)
			res.Badges = append(res.Badges, badgeForStreak(m))
		}
	}

	if len(recent) >= 7 && !state.HasAchievement(BadgePerfectWeek) {
		perfect := true
		for _, r := range recent[:7] {
			if r.ComplianceScore < 100 {
				perfect = false
				break
			}
		}
		if perfect {
			res.Badges = append(res.Badges, BadgePerfectWeek)
		}
	}

	if state.Streak.StreakBeforeReset > 0 &&
		state.Streak.Current >= state.Streak.StreakBeforeReset &&
		!state.HasAchievement(BadgeComeback) {
		res.Badges = append(res.Badges, BadgeComeback)
	}

	return res
}

func badgeForStreak(n int) string {
	switch n {
	case 7:
		return "streak_week"
	case 14:
		return "streak_fortnight"
	case 30:
		return "streak_month"
	case 60:
		return "streak_two_months"
	case 90:
		return "streak_quarter"
	case 180:
		return "streak_half_year"
	case 365:
		return "streak_year"
	}
	return ""
}

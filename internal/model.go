package internal

import (
	"sort"
	"time"
)

// DayKey is the logical date a check-in counts toward, formatted YYYY-MM-DD.
// It may differ from the submission's wall-clock date because of the
// late-night cutoff rule.
type DayKey string

const dayKeyLayout = "2006-01-02"

func NewDayKey(t time.Time) DayKey {
	return DayKey(t.Format(dayKeyLayout))
}

func (d DayKey) Time() time.Time {
	t, _ := time.Parse(dayKeyLayout, string(d))
	return t
}

func (d DayKey) AddDays(n int) DayKey {
	return NewDayKey(d.Time().AddDate(0, 0, n))
}

// DaysBetween returns b - a in whole days.
func DaysBetween(a, b DayKey) int {
	return int(b.Time().Sub(a.Time()).Hours() / 24)
}

type User struct {
	ID    string `json:"id"`
	Token string `json:"token"`
	Name  string `json:"name"`
}

type StreakState struct {
	Current           int     `json:"current"`
	Longest           int     `json:"longest"`
	LastCheckInDay    *DayKey `json:"last_checkin_day,omitempty"`
	TotalCheckIns     int     `json:"total_checkins"`
	StreakBeforeReset int     `json:"streak_before_reset"`
	LastResetDay      *DayKey `json:"last_reset_day,omitempty"`
}

type ShieldState struct {
	Total       int    `json:"total"`
	Used        int    `json:"used"`
	PeriodStart DayKey `json:"period_start"`
}

func (s ShieldState) Available() int {
	return s.Total - s.Used
}

// UserState is the single per-user document the streak engine mutates.
// Version is the optimistic-concurrency counter; every successful write
// increments it and writes carrying a stale version are rejected.
type UserState struct {
	UserID               string      `json:"user_id"`
	Timezone             string      `json:"timezone"`
	CutoffHour           int         `json:"cutoff_hour"`
	Streak               StreakState `json:"streak"`
	Shields              ShieldState `json:"shields"`
	Achievements         []string    `json:"achievements,omitempty"`
	MilestonesCelebrated []int       `json:"milestones_celebrated,omitempty"`
	Version              int64       `json:"version"`
}

// Clone returns a deep copy whose slices and pointers never alias the
// receiver's. Stores hand out clones so callers can mutate freely and a
// rejected write can never leak partial changes into the stored document.
func (u *UserState) Clone() *UserState {
	cp := *u
	if u.Achievements != nil {
		cp.Achievements = append([]string(nil), u.Achievements...)
	}
	if u.MilestonesCelebrated != nil {
		cp.MilestonesCelebrated = append([]int(nil), u.MilestonesCelebrated...)
	}
	if u.Streak.LastCheckInDay != nil {
		d := *u.Streak.LastCheckInDay
		cp.Streak.LastCheckInDay = &d
	}
	if u.Streak.LastResetDay != nil {
		d := *u.Streak.LastResetDay
		cp.Streak.LastResetDay = &d
	}
	return &cp
}

func (u *UserState) HasAchievement(badge string) bool {
	for _, b := range u.Achievements {
		if b == badge {
			return true
		}
	}
	return false
}

func (u *UserState) AddAchievement(badge string) {
	if !u.HasAchievement(badge) {
		u.Achievements = append(u.Achievements, badge)
		sort.Strings(u.Achievements)
	}
}

func (u *UserState) MilestoneCelebrated(n int) bool {
	for _, m := range u.MilestonesCelebrated {
		if m == n {
			return true
		}
	}
	return false
}

type Tier1Answer struct {
	ItemID string   `json:"item_id"`
	Done   bool     `json:"done"`
	Hours  *float64 `json:"hours,omitempty"`
}

type FreeTextAnswer struct {
	PromptID string `json:"prompt_id"`
	Text     string `json:"text"`
}

// Known metadata keys. Metadata is an open numeric map so new signals can be
// added without a schema change; pattern rules that read it must treat a
// missing key as "no data", never as a failure.
const (
	MetaWakeHour     = "wake_hour"
	MetaLeisureHours = "leisure_hours"
)

type CheckInRecord struct {
	ID              string             `json:"id"`
	UserID          string             `json:"user_id"`
	DayKey          DayKey             `json:"day_key"`
	Tier1           []Tier1Answer      `json:"tier1_answers"`
	FreeText        []FreeTextAnswer   `json:"free_text_answers,omitempty"`
	ComplianceScore float64            `json:"compliance_score"`
	IsAbbreviated   bool               `json:"is_abbreviated"`
	SubmittedAt     time.Time          `json:"submitted_at"`
	CorrectedAt     *time.Time         `json:"corrected_at,omitempty"`
	Metadata        map[string]float64 `json:"metadata,omitempty"`
}

// Clone returns a deep copy; see UserState.Clone for why stores use it.
func (r *CheckInRecord) Clone() *CheckInRecord {
	cp := *r
	if r.Tier1 != nil {
		cp.Tier1 = make([]Tier1Answer, len(r.Tier1))
		copy(cp.Tier1, r.Tier1)
	}
	if r.FreeText != nil {
		cp.FreeText = make([]FreeTextAnswer, len(r.FreeText))
		copy(cp.FreeText, r.FreeText)
	}
	if r.Metadata != nil {
		cp.Metadata = make(map[string]float64, len(r.Metadata))
		for k, v := range r.Metadata {
			cp.Metadata[k] = v
		}
	}
	if r.CorrectedAt != nil {
		t := *r.CorrectedAt
		cp.CorrectedAt = &t
	}
	return &cp
}

func (r *CheckInRecord) Answer(itemID string) (Tier1Answer, bool) {
	for _, a := range r.Tier1 {
		if a.ItemID == itemID {
			return a, true
		}
	}
	return Tier1Answer{}, false
}

func (r *CheckInRecord) Meta(key string) (float64, bool) {
	if r.Metadata == nil {
		return 0, false
	}
	v, ok := r.Metadata[key]
	return v, ok
}

type PatternType string

const (
	PatternSleepDegradation    PatternType = "sleep_degradation"
	PatternTrainingNeglect     PatternType = "training_neglect"
	PatternComplianceDecline   PatternType = "compliance_decline"
	PatternBoundaryCorrelation PatternType = "boundary_correlation"
	PatternLateWake            PatternType = "late_wake"
	PatternGhosting            PatternType = "ghosting"
)

type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	}
	return "unknown"
}

// PatternEvent is append-only; resolution only sets ResolvedAt.
// Evidence keys are rule-specific (counts, averages, date lists,
// correlation_pct).
type PatternEvent struct {
	ID         string                 `json:"id"`
	UserID     string                 `json:"user_id"`
	Type       PatternType            `json:"type"`
	Severity   Severity               `json:"severity"`
	DetectedAt time.Time              `json:"detected_at"`
	Evidence   map[string]interface{} `json:"evidence,omitempty"`
	ResolvedAt *time.Time             `json:"resolved_at,omitempty"`
}

package service

import (
	"context"
	"errors"
	"time"

	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/catalog"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/clock"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/config"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/storage"
)

// Engine owns every mutation of streak, shield and check-in state. All
// writes go through the store's transactional primitives with optimistic
// retries, so two racing submissions can never both land.
type Engine struct {
	store   storage.Store
	clock   clock.Clock
	catalog *catalog.Catalog
	logger  internal.Logger

	maxRetries       int
	shieldsPerPeriod int
	correctionWindow time.Duration
	defaultTimezone  string
	cutoffHour       int
}

func NewEngine(store storage.Store, clk clock.Clock, cat *catalog.Catalog, cfg *config.Config, logger internal.Logger) *Engine {
	return &Engine{
		store:            store,
		clock:            clk,
		catalog:          cat,
		logger:           logger,
		maxRetries:       cfg.CommitMaxRetries,
		shieldsPerPeriod: cfg.ShieldsPerPeriod,
		correctionWindow: time.Duration(cfg.CorrectionWindowM) * time.Minute,
		defaultTimezone:  cfg.DefaultTimezone,
		cutoffHour:       cfg.CutoffHour,
	}
}

type CommitResult struct {
	Record     *internal.CheckInRecord `json:"record"`
	Streak     internal.StreakState    `json:"streak"`
	WasReset   bool                    `json:"was_reset"`
	Milestones MilestoneResult         `json:"-"`
	NewBadges  []string                `json:"new_badges,omitempty"`
}

// Catalog exposes the item catalog the engine scores against.
func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

// Now reads the engine's injected clock; handlers use it so tests can pin time.
func (e *Engine) Now() time.Time { return e.clock.Now() }

// State returns the user's state, or a fresh default for first-time users.
// The default is not persisted until the first successful write.
func (e *Engine) State(ctx context.Context, userID string) (*internal.UserState, error) {
	st, err := e.store.GetUserState(ctx, userID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		st = e.defaultState(userID)
	}
	return st, nil
}

func (e *Engine) defaultState(userID string) *internal.UserState {
	return &internal.UserState{
		UserID:     userID,
		Timezone:   e.defaultTimezone,
		CutoffHour: e.cutoffHour,
		Shields: internal.ShieldState{
			Total:       e.shieldsPerPeriod,
			PeriodStart: clock.PeriodStart(e.clock.Now(), e.defaultTimezone),
		},
	}
}

// LogicalDay resolves an instant to the user's logical day key.
func (e *Engine) LogicalDay(st *internal.UserState, t time.Time) internal.DayKey {
	return clock.LogicalDay(t, st.Timezone, st.CutoffHour)
}

// Commit atomically writes the check-in record and the streak mutation it
// implies. Record and state land in one transaction; the retry loop only
// re-runs when another writer bumped the state version in between, and a
// duplicate record for the day surfaces as ErrDuplicateCheckIn with state
// untouched.
func (e *Engine) Commit(ctx context.Context, userID string, record *internal.CheckInRecord) (*CommitResult, error) {
	var lastErr error
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		st, err := e.State(ctx, userID)
		if err != nil {
			return nil, err
		}

		wasReset := e.applyStreak(st, record.DayKey)

		recent, err := e.store.RecentRecords(ctx, userID, 7)
		if err != nil {
			return nil, err
		}
		withNew := append([]internal.CheckInRecord{*record}, recent...)
		milestones := EvaluateMilestones(st, withNew)
		for _, b := range milestones.Badges {
			st.AddAchievement(b)
		}
		st.MilestonesCelebrated = append(st.MilestonesCelebrated, milestones.Milestones...)

		err = e.store.CommitCheckIn(ctx, record, st)
		if err == nil {
			return &CommitResult{
				Record:     record,
				Streak:     st.Streak,
				WasReset:   wasReset,
				Milestones: milestones,
				NewBadges:  milestones.Badges,
			}, nil
		}
		if errors.Is(err, internal.ErrConcurrentModification) {
			lastErr = err
			continue
		}
		return nil, err
	}
	e.logger.Warnf("commit for user %s gave up after %d attempts", userID, e.maxRetries)
	return nil, lastErr
}

// applyStreak mutates st's streak fields for a check-in on day and reports
// whether the streak was reset.
func (e *Engine) applyStreak(st *internal.UserState, day internal.DayKey) bool {
	s := &st.Streak
	wasReset := false

	switch {
	case s.LastCheckInDay == nil:
		s.Current = 1
	default:
		gap := internal.DaysBetween(*s.LastCheckInDay, day)
		switch {
		case gap == 1:
			s.Current++
		case gap >= 2:
			s.StreakBeforeReset = s.Current
			d := day
			s.LastResetDay = &d
			s.Current = 1
			wasReset = true
		default:
			// Backfill of an older day: counts, but never moves the streak.
		}
	}
	if s.Current > s.Longest {
		s.Longest = s.Current
	}
	s.TotalCheckIns++
	if s.LastCheckInDay == nil || day > *s.LastCheckInDay {
		d := day
		s.LastCheckInDay = &d
	}
	return wasReset
}

// UseShield spends one shield to bridge yesterday's missed check-in: it
// advances last_checkin_day to yesterday so the next real check-in sees a
// gap of one. No record is created and current/total are untouched. Shields
// replenish once per calendar month; skipping whole periods while inactive
// never accumulates extra shields.
func (e *Engine) UseShield(ctx context.Context, userID string) (*internal.UserState, error) {
	var lastErr error
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		st, err := e.store.GetUserState(ctx, userID)
		if err != nil {
			return nil, err
		}
		if st == nil {
			return nil, internal.ErrUserStateNotFound
		}

		now := e.clock.Now()
		period := clock.PeriodStart(now, st.Timezone)
		if st.Shields.PeriodStart < period {
			st.Shields = internal.ShieldState{Total: e.shieldsPerPeriod, PeriodStart: period}
		}
		if st.Shields.Available() <= 0 {
			return nil, internal.ErrNoShieldsAvailable
		}

		yesterday := e.LogicalDay(st, now).AddDays(-1)
		if st.Streak.LastCheckInDay == nil {
			return nil, internal.ErrShieldNotNeeded
		}
		if *st.Streak.LastCheckInDay >= yesterday {
			return nil, internal.ErrShieldNotNeeded
		}

		st.Shields.Used++
		st.Streak.LastCheckInDay = &yesterday

		err = e.store.PutUserState(ctx, st)
		if err == nil {
			return st, nil
		}
		if errors.Is(err, internal.ErrConcurrentModification) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

// CorrectionOpen reports whether the bounded correction flow is still
// available for the record.
func (e *Engine) CorrectionOpen(record *internal.CheckInRecord) bool {
	if record.CorrectedAt != nil {
		return false
	}
	return e.clock.Now().Sub(record.SubmittedAt) <= e.correctionWindow
}

// ApplyCorrection toggles the named boolean answers on an existing record,
// recomputes its score and overwrites it exactly once. The second attempt
// fails with ErrCorrectionAlreadyUsed; past the window it fails with
// ErrCorrectionWindowExpired.
func (e *Engine) ApplyCorrection(ctx context.Context, userID string, day internal.DayKey, toggles []string) (*internal.CheckInRecord, error) {
	record, err := e.store.GetRecord(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, internal.NewDomainError(internal.KindNotFound, "record_not_found",
			"no check-in record for this day")
	}
	if record.CorrectedAt != nil {
		return nil, internal.ErrCorrectionAlreadyUsed
	}
	now := e.clock.Now()
	if now.Sub(record.SubmittedAt) > e.correctionWindow {
		return nil, internal.ErrCorrectionWindowExpired
	}
	if len(toggles) == 0 {
		return nil, internal.NewDomainError(internal.KindValidation, "empty_correction",
			"a correction must toggle at least one item")
	}

	// Validate every toggle id before touching anything: a rejected
	// correction must leave the record exactly as it was.
	for _, id := range toggles {
		if _, ok := record.Answer(id); !ok {
			return nil, internal.ErrUnexpectedItem
		}
	}
	for _, id := range toggles {
		for i := range record.Tier1 {
			if record.Tier1[i].ItemID == id {
				record.Tier1[i].Done = !record.Tier1[i].Done
				break
			}
		}
	}

	record.ComplianceScore = ComplianceScore(e.catalog, record.DayKey, record.Tier1)
	record.CorrectedAt = &now

	if err := e.store.UpdateRecord(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

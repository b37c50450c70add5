package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/catalog"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/clock"
)

func day(s string) internal.DayKey { return internal.DayKey(s) }

func TestCommitFirstCheckIn(t *testing.T) {
	clk := &clock.FixedClock{T: mustTime(t, "2025-07-10T12:00:00Z")}
	engine, _ := newTestEngine(t, clk)

	res, err := engine.Commit(context.Background(), "u1", checkin("u1", day("2025-07-10")))
	require.NoError(t, err)

	assert.Equal(t, 1, res.Streak.Current)
	assert.Equal(t, 1, res.Streak.Longest)
	assert.Equal(t, 1, res.Streak.TotalCheckIns)
	assert.Equal(t, day("2025-07-10"), *res.Streak.LastCheckInDay)
	assert.False(t, res.WasReset)
}

func TestCommitConsecutiveDayIncrements(t *testing.T) {
	clk := &clock.FixedClock{T: mustTime(t, "2025-07-10T12:00:00Z")}
	engine, _ := newTestEngine(t, clk)
	ctx := context.Background()

	_, err := engine.Commit(ctx, "u1", checkin("u1", day("2025-07-10")))
	require.NoError(t, err)

	clk.T = mustTime(t, "2025-07-11T12:00:00Z")
	res, err := engine.Commit(ctx, "u1", checkin("u1", day("2025-07-11")))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Streak.Current)
	assert.Equal(t, 2, res.Streak.Longest)
	assert.False(t, res.WasReset)
}

func TestCommitGapResetsStreak(t *testing.T) {
	clk := &clock.FixedClock{T: mustTime(t, "2025-07-10T12:00:00Z")}
	engine, _ := newTestEngine(t, clk)
	ctx := context.Background()

	for _, d := range []string{"2025-07-10", "2025-07-11"} {
		_, err := engine.Commit(ctx, "u1", checkin("u1", day(d)))
		require.NoError(t, err)
	}

	clk.T = mustTime(t, "2025-07-14T12:00:00Z")
	res, err := engine.Commit(ctx, "u1", checkin("u1", day("2025-07-14")))
	require.NoError(t, err)

	assert.True(t, res.WasReset)
	assert.Equal(t, 1, res.Streak.Current)
	assert.Equal(t, 2, res.Streak.StreakBeforeReset)
	assert.Equal(t, day("2025-07-14"), *res.Streak.LastResetDay)
	assert.Equal(t, 2, res.Streak.Longest) // longest survives the reset
	assert.Equal(t, 3, res.Streak.TotalCheckIns)
}

func TestCommitDuplicateDayRejected(t *testing.T) {
	clk := &clock.FixedClock{T: mustTime(t, "2025-07-10T12:00:00Z")}
	engine, store := newTestEngine(t, clk)
	ctx := context.Background()

	_, err := engine.Commit(ctx, "u1", checkin("u1", day("2025-07-10")))
	require.NoError(t, err)

	_, err = engine.Commit(ctx, "u1", checkin("u1", day("2025-07-10")))
	assert.ErrorIs(t, err, internal.ErrDuplicateCheckIn)

	// The failed commit must not have touched the persisted state.
	st, err := store.GetUserState(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Streak.Current)
	assert.Equal(t, 1, st.Streak.TotalCheckIns)
	assert.Equal(t, int64(1), st.Version)
}

func TestCommitBackfillCountsWithoutMovingStreak(t *testing.T) {
	clk := &clock.FixedClock{T: mustTime(t, "2025-07-10T12:00:00Z")}
	engine, _ := newTestEngine(t, clk)
	ctx := context.Background()

	_, err := engine.Commit(ctx, "u1", checkin("u1", day("2025-07-10")))
	require.NoError(t, err)

	res, err := engine.Commit(ctx, "u1", checkin("u1", day("2025-07-08")))
	require.NoError(t, err)

	assert.Equal(t, 1, res.Streak.Current)
	assert.Equal(t, 2, res.Streak.TotalCheckIns)
	assert.Equal(t, day("2025-07-10"), *res.Streak.LastCheckInDay)
	assert.False(t, res.WasReset)
}

func TestCommitAwardsWeekBadges(t *testing.T) {
	clk := &clock.FixedClock{T: mustTime(t, "2025-07-10T12:00:00Z")}
	engine, store := newTestEngine(t, clk)
	ctx := context.Background()

	var last *CommitResult
	d := day("2025-07-10")
	for i := 0; i < 7; i++ {
		clk.T = d.Time().Add(12 * time.Hour)
		res, err := engine.Commit(ctx, "u1", checkin("u1", d))
		require.NoError(t, err)
		last = res
		d = d.AddDays(1)
	}

	assert.Equal(t, 7, last.Streak.Current)
	assert.Contains(t, last.NewBadges, "streak_week")
	assert.Contains(t, last.NewBadges, BadgePerfectWeek)

	st, err := store.GetUserState(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, st.HasAchievement("streak_week"))
	assert.True(t, st.HasAchievement(BadgePerfectWeek))
	assert.True(t, st.MilestoneCelebrated(7))
}

// --- Shields ---

func TestUseShieldBridgesMissedDay(t *testing.T) {
	clk := &clock.FixedClock{T: mustTime(t, "2025-07-10T12:00:00Z")}
	engine, _ := newTestEngine(t, clk)
	ctx := context.Background()

	_, err := engine.Commit(ctx, "u1", checkin("u1", day("2025-07-10")))
	require.NoError(t, err)

	// The 11th is missed; on the 12th a shield bridges the gap.
	clk.T = mustTime(t, "2025-07-12T09:00:00Z")
	st, err := engine.UseShield(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Shields.Used)
	assert.Equal(t, 2, st.Shields.Available())
	assert.Equal(t, day("2025-07-11"), *st.Streak.LastCheckInDay)
	assert.Equal(t, 1, st.Streak.Current) // shields never add to the streak

	res, err := engine.Commit(ctx, "u1", checkin("u1", day("2025-07-12")))
	require.NoError(t, err)
	assert.False(t, res.WasReset)
	assert.Equal(t, 2, res.Streak.Current)
}

func TestUseShieldNotNeededWhenCurrent(t *testing.T) {
	clk := &clock.FixedClock{T: mustTime(t, "2025-07-10T12:00:00Z")}
	engine, _ := newTestEngine(t, clk)
	ctx := context.Background()

	_, err := engine.Commit(ctx, "u1", checkin("u1", day("2025-07-10")))
	require.NoError(t, err)

	// Same day: nothing missed yet.
	_, err = engine.UseShield(ctx, "u1")
	assert.ErrorIs(t, err, internal.ErrShieldNotNeeded)

	// Next day: yesterday is covered by the real check-in.
	clk.T = mustTime(t, "2025-07-11T12:00:00Z")
	_, err = engine.UseShield(ctx, "u1")
	assert.ErrorIs(t, err, internal.ErrShieldNotNeeded)
}

func TestUseShieldExhausted(t *testing.T) {
	clk := &clock.FixedClock{T: mustTime(t, "2025-07-10T12:00:00Z")}
	engine, store := newTestEngine(t, clk)
	ctx := context.Background()

	_, err := engine.Commit(ctx, "u1", checkin("u1", day("2025-07-10")))
	require.NoError(t, err)

	st, err := store.GetUserState(ctx, "u1")
	require.NoError(t, err)
	st.Shields.Used = st.Shields.Total
	require.NoError(t, store.PutUserState(ctx, st))

	clk.T = mustTime(t, "2025-07-13T12:00:00Z")
	_, err = engine.UseShield(ctx, "u1")
	assert.ErrorIs(t, err, internal.ErrNoShieldsAvailable)
}

func TestUseShieldReplenishesMonthly(t *testing.T) {
	clk := &clock.FixedClock{T: mustTime(t, "2025-06-10T12:00:00Z")}
	engine, store := newTestEngine(t, clk)
	ctx := context.Background()

	_, err := engine.Commit(ctx, "u1", checkin("u1", day("2025-06-10")))
	require.NoError(t, err)

	st, err := store.GetUserState(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, day("2025-06-01"), st.Shields.PeriodStart)
	st.Shields.Used = st.Shields.Total
	require.NoError(t, store.PutUserState(ctx, st))

	// A month later the allowance resets exactly once; the idle June does
	// not stack a second allowance.
	clk.T = mustTime(t, "2025-07-05T12:00:00Z")
	st, err = engine.UseShield(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, day("2025-07-01"), st.Shields.PeriodStart)
	assert.Equal(t, 1, st.Shields.Used)
	assert.Equal(t, 2, st.Shields.Available())
	assert.Equal(t, day("2025-07-04"), *st.Streak.LastCheckInDay)
}

func TestUseShieldWithoutState(t *testing.T) {
	clk := &clock.FixedClock{T: mustTime(t, "2025-07-10T12:00:00Z")}
	engine, _ := newTestEngine(t, clk)

	_, err := engine.UseShield(context.Background(), "ghost")
	assert.ErrorIs(t, err, internal.ErrUserStateNotFound)
}

// --- Corrections ---

func TestApplyCorrectionTogglesAndRescores(t *testing.T) {
	clk := &clock.FixedClock{T: mustTime(t, "2025-07-10T12:00:00Z")}
	engine, store := newTestEngine(t, clk)
	ctx := context.Background()

	rec := checkin("u1", day("2025-07-10"), catalog.ItemTraining)
	_, err := engine.Commit(ctx, "u1", rec)
	require.NoError(t, err)
	assert.InDelta(t, 83.33, rec.ComplianceScore, 0.01)

	clk.T = mustTime(t, "2025-07-10T13:00:00Z")
	corrected, err := engine.ApplyCorrection(ctx, "u1", day("2025-07-10"), []string{catalog.ItemTraining})
	require.NoError(t, err)

	a, ok := corrected.Answer(catalog.ItemTraining)
	require.True(t, ok)
	assert.True(t, a.Done)
	assert.Equal(t, 100.0, corrected.ComplianceScore)
	assert.NotNil(t, corrected.CorrectedAt)

	stored, err := store.GetRecord(ctx, "u1", day("2025-07-10"))
	require.NoError(t, err)
	assert.Equal(t, 100.0, stored.ComplianceScore)
}

func TestApplyCorrectionOnlyOnce(t *testing.T) {
	clk := &clock.FixedClock{T: mustTime(t, "2025-07-10T12:00:00Z")}
	engine, _ := newTestEngine(t, clk)
	ctx := context.Background()

	_, err := engine.Commit(ctx, "u1", checkin("u1", day("2025-07-10"), catalog.ItemTraining))
	require.NoError(t, err)

	_, err = engine.ApplyCorrection(ctx, "u1", day("2025-07-10"), []string{catalog.ItemTraining})
	require.NoError(t, err)

	_, err = engine.ApplyCorrection(ctx, "u1", day("2025-07-10"), []string{catalog.ItemSleep})
	assert.ErrorIs(t, err, internal.ErrCorrectionAlreadyUsed)
}

func TestApplyCorrectionWindowExpires(t *testing.T) {
	clk := &clock.FixedClock{T: mustTime(t, "2025-07-10T12:00:00Z")}
	engine, _ := newTestEngine(t, clk)
	ctx := context.Background()

	rec := checkin("u1", day("2025-07-10"), catalog.ItemTraining)
	_, err := engine.Commit(ctx, "u1", rec)
	require.NoError(t, err)

	assert.True(t, engine.CorrectionOpen(rec))

	clk.T = rec.SubmittedAt.Add(121 * time.Minute)
	assert.False(t, engine.CorrectionOpen(rec))
	_, err = engine.ApplyCorrection(ctx, "u1", day("2025-07-10"), []string{catalog.ItemTraining})
	assert.ErrorIs(t, err, internal.ErrCorrectionWindowExpired)
}

func TestApplyCorrectionRejectedLeavesRecordUntouched(t *testing.T) {
	clk := &clock.FixedClock{T: mustTime(t, "2025-07-10T12:00:00Z")}
	engine, store := newTestEngine(t, clk)
	ctx := context.Background()

	rec := checkin("u1", day("2025-07-10"), catalog.ItemTraining)
	_, err := engine.Commit(ctx, "u1", rec)
	require.NoError(t, err)

	// One valid toggle, one unknown: the whole correction is rejected and
	// the stored record must be byte-for-byte what it was.
	_, err = engine.ApplyCorrection(ctx, "u1", day("2025-07-10"),
		[]string{catalog.ItemTraining, "made_up"})
	assert.ErrorIs(t, err, internal.ErrUnexpectedItem)

	stored, err := store.GetRecord(ctx, "u1", day("2025-07-10"))
	require.NoError(t, err)
	training, ok := stored.Answer(catalog.ItemTraining)
	require.True(t, ok)
	assert.False(t, training.Done)
	assert.InDelta(t, 83.33, stored.ComplianceScore, 0.01)
	assert.Nil(t, stored.CorrectedAt)

	// The correction is still available and applies cleanly, with no
	// double-toggle from the rejected attempt.
	corrected, err := engine.ApplyCorrection(ctx, "u1", day("2025-07-10"),
		[]string{catalog.ItemTraining})
	require.NoError(t, err)
	training, _ = corrected.Answer(catalog.ItemTraining)
	assert.True(t, training.Done)
	assert.Equal(t, 100.0, corrected.ComplianceScore)
}

func TestApplyCorrectionValidation(t *testing.T) {
	clk := &clock.FixedClock{T: mustTime(t, "2025-07-10T12:00:00Z")}
	engine, _ := newTestEngine(t, clk)
	ctx := context.Background()

	_, err := engine.Commit(ctx, "u1", checkin("u1", day("2025-07-10")))
	require.NoError(t, err)

	_, err = engine.ApplyCorrection(ctx, "u1", day("2025-07-10"), nil)
	assert.Equal(t, internal.KindValidation, internal.KindOf(err))

	_, err = engine.ApplyCorrection(ctx, "u1", day("2025-07-10"), []string{"made_up"})
	assert.ErrorIs(t, err, internal.ErrUnexpectedItem)

	_, err = engine.ApplyCorrection(ctx, "u1", day("2025-07-09"), []string{catalog.ItemSleep})
	assert.Equal(t, internal.KindNotFound, internal.KindOf(err))
}

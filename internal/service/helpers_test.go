package service

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/catalog"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/clock"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/config"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/storage"
)

func testConfig() *config.Config {
	return &config.Config{
		DefaultTimezone:   "UTC",
		CutoffHour:        3,
		ShieldsPerPeriod:  3,
		CorrectionWindowM: 120,
		SessionIdleM:      15,
		CommitMaxRetries:  5,
		PatternWindow:     7,
		PatternMinSample:  3,
		CorrelationPct:    70,
	}
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func newTestStore(t *testing.T) *storage.FileStorage {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFileStorage(
		filepath.Join(dir, "states.json"),
		filepath.Join(dir, "records.json"),
		filepath.Join(dir, "events.json"),
		internal.NewNopLogger(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestEngine(t *testing.T, clk clock.Clock) (*Engine, *storage.FileStorage) {
	t.Helper()
	store := newTestStore(t)
	engine := NewEngine(store, clk, catalog.Default(), testConfig(), internal.NewNopLogger())
	return engine, store
}

// checkin builds a scored record for day with every catalog item done except
// the listed failures.
func checkin(userID string, day internal.DayKey, failing ...string) *internal.CheckInRecord {
	cat := catalog.Default()
	answers := answersFor(cat, day, failing...)
	return &internal.CheckInRecord{
		ID:              uuid.NewString(),
		UserID:          userID,
		DayKey:          day,
		Tier1:           answers,
		ComplianceScore: ComplianceScore(cat, day, answers),
		SubmittedAt:     day.Time().Add(12 * time.Hour),
	}
}

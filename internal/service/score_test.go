package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/catalog"
)

func answersFor(cat *catalog.Catalog, day internal.DayKey, failing ...string) []internal.Tier1Answer {
	failed := make(map[string]bool, len(failing))
	for _, id := range failing {
		failed[id] = true
	}
	items := cat.ItemsFor(day)
	out := make([]internal.Tier1Answer, 0, len(items))
	for _, it := range items {
		out = append(out, internal.Tier1Answer{ItemID: it.ID, Done: !failed[it.ID]})
	}
	return out
}

func TestComplianceScoreAllDone(t *testing.T) {
	cat := catalog.Default()
	day := internal.DayKey("2025-07-10")
	score := ComplianceScore(cat, day, answersFor(cat, day))
	assert.Equal(t, 100.0, score)
}

func TestComplianceScorePartial(t *testing.T) {
	cat := catalog.Default()
	day := internal.DayKey("2025-07-10") // 6 items in effect
	score := ComplianceScore(cat, day, answersFor(cat, day, catalog.ItemTraining))
	assert.InDelta(t, 83.33, score, 0.01)
}

func TestComplianceScoreUsesItemSetOfRecordDay(t *testing.T) {
	cat := catalog.Default()
	// Before the reading item's cutover only five items count, so one miss
	// costs 20 points, not 16.67.
	day := internal.DayKey("2025-05-10")
	assert.Len(t, cat.ItemsFor(day), 5)
	score := ComplianceScore(cat, day, answersFor(cat, day, catalog.ItemTraining))
	assert.Equal(t, 80.0, score)
}

func TestComplianceScoreIgnoresAnswersOutsideCatalog(t *testing.T) {
	cat := catalog.Default()
	day := internal.DayKey("2025-07-10")
	answers := answersFor(cat, day)
	answers = append(answers, internal.Tier1Answer{ItemID: "made_up", Done: true})
	assert.Equal(t, 100.0, ComplianceScore(cat, day, answers))
}

func TestComplianceScoreEmptyCatalog(t *testing.T) {
	cat := catalog.NewCatalog(nil)
	assert.Equal(t, 0.0, ComplianceScore(cat, "2025-07-10", nil))
}

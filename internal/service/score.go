package service

import (
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/catalog"
)

// ComplianceScore computes 100 * completed / N against the item set in
// effect for the record's own day key. Scoring against the live catalog
// would silently re-grade history every time an item is added, so the day
// key, not the current date, picks the denominator.
func ComplianceScore(cat *catalog.Catalog, day internal.DayKey, answers []internal.Tier1Answer) float64 {
	items := cat.ItemsFor(day)
	if len(items) == 0 {
		return 0
	}
	done := 0
	for _, it := range items {
		for _, a := range answers {
			if a.ItemID == it.ID && a.Done {
				done++
				break
			}
		}
	}
	return 100 * float64(done) / float64(len(items))
}

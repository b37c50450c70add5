package catalog

import "github.com/ayush-jaipuriar/accountability-agent-sub002/internal"

// Item is one tier-1 check-in question. Items carry an effective-from date so
// the catalog can grow without retroactively changing the denominator of
// historical compliance scores: a record is always scored against the item
// set in effect for its own day key.
type Item struct {
	ID            string
	Label         string
	HasHours      bool
	EffectiveFrom internal.DayKey
}

const (
	ItemDeepWork   = "deep_work"
	ItemTraining   = "training"
	ItemSleep      = "sleep"
	ItemNutrition  = "nutrition"
	ItemBoundaries = "boundaries"
	ItemReading    = "reading"
)

type Catalog struct {
	items []Item
}

// Default returns the production item set. Reading was added later and only
// counts for records dated on or after its cutover date.
func Default() *Catalog {
	return &Catalog{items: []Item{
		{ID: ItemDeepWork, Label: "Did you complete your deep work block?", HasHours: true},
		{ID: ItemTraining, Label: "Did you train today?"},
		{ID: ItemSleep, Label: "Did you get enough sleep?", HasHours: true},
		{ID: ItemNutrition, Label: "Did you stick to your nutrition plan?"},
		{ID: ItemBoundaries, Label: "Did you hold your boundaries (no doomscrolling, no late screens)?"},
		{ID: ItemReading, Label: "Did you read?", EffectiveFrom: "2025-06-01"},
	}}
}

func NewCatalog(items []Item) *Catalog {
	return &Catalog{items: items}
}

// ItemsFor returns the items in effect for the given day key, in prompt order.
func (c *Catalog) ItemsFor(day internal.DayKey) []Item {
	out := make([]Item, 0, len(c.items))
	for _, it := range c.items {
		if it.EffectiveFrom != "" && day < it.EffectiveFrom {
			continue
		}
		out = append(out, it)
	}
	return out
}

func (c *Catalog) Item(id string) (Item, bool) {
	for _, it := range c.items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// FreeTextPrompts are the reflection questions asked in full sessions only.
type FreeTextPrompt struct {
	ID    string
	Label string
}

func (c *Catalog) FreeTextPrompts() []FreeTextPrompt {
	return []FreeTextPrompt{
		{ID: "win", Label: "What was today's biggest win?"},
		{ID: "friction", Label: "Where did you lose time or focus?"},
		{ID: "tomorrow", Label: "What is the one thing tomorrow?"},
	}
}

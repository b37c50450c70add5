package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestItemsForHonorsEffectiveFrom(t *testing.T) {
	cat := Default()

	before := cat.ItemsFor("2025-05-31")
	assert.Len(t, before, 5)
	for _, it := range before {
		assert.NotEqual(t, ItemReading, it.ID)
	}

	after := cat.ItemsFor("2025-06-01")
	assert.Len(t, after, 6)
	assert.Equal(t, ItemReading, after[5].ID)
}

func TestItemLookup(t *testing.T) {
	cat := Default()

	it, ok := cat.Item(ItemSleep)
	assert.True(t, ok)
	assert.True(t, it.HasHours)

	_, ok = cat.Item("made_up")
	assert.False(t, ok)
}

func TestFreeTextPromptOrder(t *testing.T) {
	prompts := Default().FreeTextPrompts()
	assert.Len(t, prompts, 3)
	assert.Equal(t, "win", prompts[0].ID)
	assert.Equal(t, "friction", prompts[1].ID)
	assert.Equal(t, "tomorrow", prompts[2].ID)
}

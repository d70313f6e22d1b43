package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBudgetReserve(t *testing.T) {
	b := NewContextBudget(1000, 0.20)
	alloc := b.Allocate("system prompt", "skills prompt")
	assert.Equal(t, 200, alloc.ResponseReserve)
	assert.Positive(t, alloc.SystemPrompt)
	assert.Positive(t, alloc.Skills)
	assert.Positive(t, alloc.Summaries)
	assert.Positive(t, alloc.RecentHistory)
}

func TestBudgetRatios(t *testing.T) {
	b := NewContextBudget(10_000, 0.20)
	alloc := b.Allocate("", "")

	// available = 8000 after the reserve.
	assert.Equal(t, 2000, alloc.ResponseReserve)
	assert.Equal(t, 640, alloc.Summaries)
	assert.Equal(t, 640, alloc.SemanticRecall)
	assert.Equal(t, 320, alloc.CrossSession)
	assert.Equal(t, 2400, alloc.CodeContext)
	assert.Equal(t, 4000, alloc.RecentHistory)
	assert.Equal(t, alloc.Summaries, alloc.SemanticRecall)
	assert.Less(t, alloc.CrossSession, alloc.Summaries)
}

func TestBudgetSumWithinWindow(t *testing.T) {
	for _, window := range []int{1000, 4096, 32768, 200_000} {
		b := NewContextBudget(window, 0.20)
		alloc := b.Allocate(strings.Repeat("s", 400), strings.Repeat("k", 200))
		total := alloc.SystemPrompt + alloc.Skills + alloc.Summaries + alloc.SemanticRecall +
			alloc.CrossSession + alloc.CodeContext + alloc.RecentHistory + alloc.ResponseReserve
		assert.LessOrEqual(t, total, window, "window %d", window)
	}
}

func TestBudgetZeroWindowDisables(t *testing.T) {
	b := NewContextBudget(0, 0.20)
	alloc := b.Allocate("test", "test")
	assert.Equal(t, BudgetAllocation{}, alloc)
}

func TestBudgetOversizedPrompts(t *testing.T) {
	b := NewContextBudget(100, 0.20)
	alloc := b.Allocate(strings.Repeat("x", 2000), strings.Repeat("y", 2000))
	assert.Equal(t, 20, alloc.ResponseReserve)
	assert.Zero(t, alloc.RecentHistory)
	assert.Zero(t, alloc.CodeContext)
}

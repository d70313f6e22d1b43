// Package agent implements the turn engine: context assembly over the
// memory hierarchy, the bounded tool-use loop, and the command layer.
package agent

import "github.com/osamaelmahalawi/zeph/internal/memory"

// Region ratios of the available window after system, skills, and the
// response reserve are subtracted.
const (
	ratioSummaries      = 0.08
	ratioSemanticRecall = 0.08
	ratioCrossSession   = 0.04
	ratioCodeContext    = 0.30
	ratioRecentHistory  = 0.50
)

// BudgetAllocation is the token partition of one turn's window.
type BudgetAllocation struct {
	SystemPrompt    int
	Skills          int
	Summaries       int
	SemanticRecall  int
	CrossSession    int
	CodeContext     int
	RecentHistory   int
	ResponseReserve int
}

// ContextBudget partitions a context window across the seven regions
// at fixed ratios.
type ContextBudget struct {
	maxTokens    int
	reserveRatio float64
}

// NewContextBudget creates the allocator. maxTokens of 0 disables
// budgeting: every region allocates to 0.
func NewContextBudget(maxTokens int, reserveRatio float64) *ContextBudget {
	return &ContextBudget{maxTokens: maxTokens, reserveRatio: reserveRatio}
}

// MaxTokens returns the window size.
func (b *ContextBudget) MaxTokens() int { return b.maxTokens }

// Allocate sizes every region for a turn with the given system and
// skills prompts already assembled.
func (b *ContextBudget) Allocate(systemPrompt, skillsPrompt string) BudgetAllocation {
	if b.maxTokens == 0 {
		return BudgetAllocation{}
	}

	responseReserve := int(float64(b.maxTokens) * b.reserveRatio)
	available := b.maxTokens - responseReserve

	systemTokens := memory.EstimateTokens(systemPrompt)
	skillsTokens := memory.EstimateTokens(skillsPrompt)

	available -= systemTokens + skillsTokens
	if available < 0 {
		available = 0
	}

	return BudgetAllocation{
		SystemPrompt:    systemTokens,
		Skills:          skillsTokens,
		Summaries:       int(float64(available) * ratioSummaries),
		SemanticRecall:  int(float64(available) * ratioSemanticRecall),
		CrossSession:    int(float64(available) * ratioCrossSession),
		CodeContext:     int(float64(available) * ratioCodeContext),
		RecentHistory:   int(float64(available) * ratioRecentHistory),
		ResponseReserve: responseReserve,
	}
}

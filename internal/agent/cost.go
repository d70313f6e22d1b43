package agent

import (
	"fmt"
	"sync"
	"time"
)

// CostBudgetExceededError halts a turn before it starts when cost
// tracking is enabled and the day's budget is spent.
type CostBudgetExceededError struct {
	SpentCents  int
	BudgetCents int
}

func (e *CostBudgetExceededError) Error() string {
	return fmt.Sprintf("cost budget exhausted: spent %d¢ of %d¢ today", e.SpentCents, e.BudgetCents)
}

// CostLedger accumulates spend per day. The day key rolls over under
// the lock; process-wide state initialized at agent construction.
type CostLedger struct {
	budgetCents int

	mu         sync.Mutex
	dayKey     int
	spentCents int
	now        func() time.Time
}

// NewCostLedger creates a ledger with the given daily budget. A budget
// of 0 disables the check.
func NewCostLedger(budgetCents int) *CostLedger {
	return &CostLedger{budgetCents: budgetCents, now: time.Now}
}

func dayKeyOf(t time.Time) int {
	y, m, d := t.Date()
	return y*10_000 + int(m)*100 + d
}

// rolloverLocked resets the counter when the day changed.
func (l *CostLedger) rolloverLocked() {
	key := dayKeyOf(l.now())
	if key != l.dayKey {
		l.dayKey = key
		l.spentCents = 0
	}
}

// Add records spend in cents.
func (l *CostLedger) Add(cents int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked()
	l.spentCents += cents
}

// SpentToday returns today's cumulative spend.
func (l *CostLedger) SpentToday() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked()
	return l.spentCents
}

// Check returns CostBudgetExceededError when the budget is spent.
func (l *CostLedger) Check() error {
	if l.budgetCents <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked()
	if l.spentCents >= l.budgetCents {
		return &CostBudgetExceededError{SpentCents: l.spentCents, BudgetCents: l.budgetCents}
	}
	return nil
}

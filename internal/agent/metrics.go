package agent

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TurnMetrics is the per-conversation metrics snapshot: single writer
// (the engine), many readers, no history.
type TurnMetrics struct {
	PromptTokens     int
	CompletionTokens int
	ToolExecutions   int
	Iterations       int
	BudgetUsedTokens int
	CacheReadTokens  int
}

// MetricsSnapshot publishes the most recent TurnMetrics.
type MetricsSnapshot struct {
	current atomic.Pointer[TurnMetrics]
}

// NewMetricsSnapshot starts with a zero snapshot.
func NewMetricsSnapshot() *MetricsSnapshot {
	s := &MetricsSnapshot{}
	s.current.Store(&TurnMetrics{})
	return s
}

// Publish replaces the snapshot.
func (s *MetricsSnapshot) Publish(m TurnMetrics) {
	s.current.Store(&m)
}

// Load returns the most recent snapshot.
func (s *MetricsSnapshot) Load() TurnMetrics {
	return *s.current.Load()
}

// Prometheus counters for the runtime, registered once per process.
var (
	turnsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zeph_turns_total",
		Help: "Completed agent turns.",
	})
	toolExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zeph_tool_executions_total",
		Help: "Tool executions by tool id.",
	}, []string{"tool"})
	providerFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zeph_provider_fallbacks_total",
		Help: "Provider failures that triggered fallback routing.",
	})
	toolDenialsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zeph_tool_denials_total",
		Help: "Tool calls denied by policy or trust gating.",
	})
)

// RecordProviderFallback counts one provider failure that triggered
// fallback routing. Wired into the router's status callback.
func RecordProviderFallback() {
	providerFallbacksTotal.Inc()
}

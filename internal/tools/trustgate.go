package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/osamaelmahalawi/zeph/pkg/models"
)

// quarantineDenied are the tools denied while a Quarantined skill is
// active, regardless of the permission policy.
var quarantineDenied = map[string]bool{
	ToolBash:      true,
	ToolFileWrite: true,
	ToolWebScrape: true,
}

// TrustGate wraps an inner Executor and overlays the effective skill
// trust level onto every dispatch. The gate enforces the trust level
// current at call time even if the system prompt was assembled under a
// different level.
type TrustGate struct {
	inner  Executor
	policy *PermissionPolicy

	mu    sync.RWMutex
	trust models.TrustLevel
}

// NewTrustGate wraps inner with trust and permission checks.
func NewTrustGate(inner Executor, policy *PermissionPolicy) *TrustGate {
	return &TrustGate{inner: inner, policy: policy, trust: models.TrustTrusted}
}

// SetEffectiveTrust updates the trust level for subsequent calls.
func (g *TrustGate) SetEffectiveTrust(level models.TrustLevel) {
	g.mu.Lock()
	g.trust = level
	g.mu.Unlock()
}

// EffectiveTrust returns the current level.
func (g *TrustGate) EffectiveTrust() models.TrustLevel {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.trust
}

// checkTrust evaluates the trust overlay then the permission policy
// for one call.
func (g *TrustGate) checkTrust(toolID, input string) error {
	switch g.EffectiveTrust() {
	case models.TrustBlocked:
		return Blocked("all tools blocked (trust=blocked)")
	case models.TrustQuarantined:
		if quarantineDenied[toolID] {
			return Blocked(fmt.Sprintf("%s denied (trust=quarantined)", toolID))
		}
	}

	switch g.policy.Check(toolID, input) {
	case ActionAllow:
		return nil
	case ActionAsk:
		return ConfirmationRequired(input)
	default:
		return Blocked(input)
	}
}

// checkFenced applies the trust overlay to fenced-mode dispatch by
// inspecting the fence tags present in the text.
func (g *TrustGate) checkFenced(assistantText string) error {
	switch g.EffectiveTrust() {
	case models.TrustBlocked:
		return Blocked("all tools blocked (trust=blocked)")
	case models.TrustQuarantined:
		for _, block := range ExtractFencedBlocks(assistantText) {
			toolID := FencedToolID(block.Tag)
			if quarantineDenied[toolID] {
				return Blocked(fmt.Sprintf("%s denied (trust=quarantined)", toolID))
			}
		}
	}
	return nil
}

func (g *TrustGate) Execute(ctx context.Context, assistantText string) (*ToolOutput, error) {
	if err := g.checkFenced(assistantText); err != nil {
		return nil, err
	}
	return g.inner.Execute(ctx, assistantText)
}

func (g *TrustGate) ExecuteConfirmed(ctx context.Context, assistantText string) (*ToolOutput, error) {
	if err := g.checkFenced(assistantText); err != nil {
		return nil, err
	}
	return g.inner.ExecuteConfirmed(ctx, assistantText)
}

func (g *TrustGate) ExecuteToolCall(ctx context.Context, call *models.ToolCall) (*ToolOutput, error) {
	input := call.StringParam("command")
	if err := g.checkTrust(call.ToolID, input); err != nil {
		return nil, err
	}
	return g.inner.ExecuteToolCall(ctx, call)
}

func (g *TrustGate) ToolDefinitions() []models.ToolDef {
	return g.inner.ToolDefinitions()
}

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/osamaelmahalawi/zeph/internal/tools"
	"github.com/osamaelmahalawi/zeph/pkg/models"
)

// Executor adapts the manager to the tool executor interface.
//
// Fenced `mcp` body format: first line `server.tool`, remaining lines
// an optional JSON argument object. Structured calls address tools as
// `server.tool` with the arguments as call params.
type Executor struct {
	manager *Manager
	policy  *tools.PermissionPolicy
}

// NewExecutor wraps the manager. policy gates fenced-mode blocks;
// structured calls are gated upstream by the trust gate.
func NewExecutor(manager *Manager, policy *tools.PermissionPolicy) *Executor {
	return &Executor{manager: manager, policy: policy}
}

func (e *Executor) ToolDefinitions() []models.ToolDef {
	return ToolDefs(e.manager.Tools())
}

func (e *Executor) Execute(ctx context.Context, assistantText string) (*tools.ToolOutput, error) {
	for _, block := range tools.ExtractFencedBlocks(assistantText) {
		if block.Tag != "mcp" {
			continue
		}
		switch e.policy.Check(tools.ToolMCP, block.Body) {
		case tools.ActionAsk:
			return nil, tools.ConfirmationRequired(block.Body)
		case tools.ActionDeny:
			return nil, tools.Blocked(block.Body)
		}
		return e.runFenced(ctx, block.Body)
	}
	return nil, nil
}

// ExecuteConfirmed runs the first fenced mcp block without the policy
// check, assuming prior human approval.
func (e *Executor) ExecuteConfirmed(ctx context.Context, assistantText string) (*tools.ToolOutput, error) {
	for _, block := range tools.ExtractFencedBlocks(assistantText) {
		if block.Tag != "mcp" {
			continue
		}
		return e.runFenced(ctx, block.Body)
	}
	return nil, nil
}

func (e *Executor) runFenced(ctx context.Context, body string) (*tools.ToolOutput, error) {
	target, rest, _ := strings.Cut(body, "\n")
	server, tool, ok := strings.Cut(strings.TrimSpace(target), ".")
	if !ok {
		return nil, &tools.ToolError{Kind: tools.ErrKindExecutionFailed, Command: "mcp",
			Err: fmt.Errorf("expected server.tool on first line")}
	}

	args := map[string]any{}
	if trimmed := strings.TrimSpace(rest); trimmed != "" {
		if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
			return nil, &tools.ToolError{Kind: tools.ErrKindExecutionFailed, Command: "mcp",
				Err: fmt.Errorf("invalid argument JSON: %w", err)}
		}
	}

	return e.call(ctx, server, tool, args)
}

func (e *Executor) ExecuteToolCall(ctx context.Context, call *models.ToolCall) (*tools.ToolOutput, error) {
	server, tool, ok := strings.Cut(call.ToolID, ".")
	if !ok || server == "" {
		return nil, nil
	}
	// Only registered servers are routable; anything else falls
	// through to the next executor in the chain.
	registered := false
	for _, name := range e.manager.Servers() {
		if name == server {
			registered = true
			break
		}
	}
	if !registered {
		return nil, nil
	}

	args := make(map[string]any, len(call.Params))
	for key, raw := range call.Params {
		var value any
		if err := json.Unmarshal(raw, &value); err == nil {
			args[key] = value
		}
	}
	return e.call(ctx, server, tool, args)
}

func (e *Executor) call(ctx context.Context, server, tool string, args map[string]any) (*tools.ToolOutput, error) {
	text, err := e.manager.Call(ctx, server, tool, args)
	if err != nil {
		return nil, &tools.ToolError{Kind: tools.ErrKindExecutionFailed, Command: server + "." + tool, Err: err}
	}
	return &tools.ToolOutput{
		ToolName:       server + "." + tool,
		Summary:        text,
		BlocksExecuted: 1,
	}, nil
}

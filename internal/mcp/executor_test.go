package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osamaelmahalawi/zeph/internal/tools"
	"github.com/osamaelmahalawi/zeph/pkg/models"
)

func mcpCall(toolID string) *models.ToolCall {
	return &models.ToolCall{ToolID: toolID}
}

func TestExecutorFencedPolicyDeny(t *testing.T) {
	policy := tools.NewPermissionPolicy()
	policy.AddRule(tools.ToolMCP, "*", tools.ActionDeny)
	exec := NewExecutor(NewManager(4, nil, nil), policy)

	_, err := exec.Execute(context.Background(), "```mcp\nfiles.search\n{\"q\":\"x\"}\n```")
	var toolErr *tools.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, tools.ErrKindBlocked, toolErr.Kind)
}

func TestExecutorFencedPolicyAsk(t *testing.T) {
	policy := tools.NewPermissionPolicy()
	policy.AddRule(tools.ToolMCP, "files.*", tools.ActionAsk)
	exec := NewExecutor(NewManager(4, nil, nil), policy)

	_, err := exec.Execute(context.Background(), "```mcp\nfiles.search\n```")
	var toolErr *tools.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, tools.ErrKindConfirmRequired, toolErr.Kind)
}

func TestExecutorNoFencedBlockFallsThrough(t *testing.T) {
	exec := NewExecutor(NewManager(4, nil, nil), tools.NewPermissionPolicy())
	out, err := exec.Execute(context.Background(), "plain text, no blocks")
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestExecutorStructuredCallUnknownServerFallsThrough(t *testing.T) {
	exec := NewExecutor(NewManager(4, nil, nil), tools.NewPermissionPolicy())
	out, err := exec.ExecuteToolCall(context.Background(), mcpCall("ghost.search"))
	require.NoError(t, err)
	assert.Nil(t, out)
}

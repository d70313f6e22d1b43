// Package tools implements the tool execution substrate: fenced-block
// and structured tool dispatch, permission and trust gating, and the
// output filter pipeline.
package tools

import (
	"context"
	"fmt"

	"github.com/osamaelmahalawi/zeph/pkg/models"
)

// Canonical built-in tool ids.
const (
	ToolBash      = "bash"
	ToolFileRead  = "file_read"
	ToolFileWrite = "file_write"
	ToolFileEdit  = "file_edit"
	ToolGlob      = "glob"
	ToolGrep      = "grep"
	ToolWebScrape = "web_scrape"
	ToolMCP       = "mcp"
)

// FilterConfidence classifies how lossy a filtered output is.
type FilterConfidence string

const (
	ConfidenceFull     FilterConfidence = "full"     // lossless summary
	ConfidencePartial  FilterConfidence = "partial"  // lossy truncation
	ConfidenceFallback FilterConfidence = "fallback" // raw passthrough
)

// FilterStats reports the token effect of output filtering.
type FilterStats struct {
	RawTokens   int              `json:"raw_tokens"`
	SavedTokens int              `json:"saved_tokens"`
	Confidence  FilterConfidence `json:"confidence"`
}

// FileDiff summarizes an edit applied to one file.
type FileDiff struct {
	Path    string `json:"path"`
	Added   int    `json:"added"`
	Removed int    `json:"removed"`
	Unified string `json:"unified,omitempty"`
}

// ToolOutput is the result of one tool dispatch.
type ToolOutput struct {
	ToolName       string       `json:"tool_name"`
	Summary        string       `json:"summary"`
	BlocksExecuted int          `json:"blocks_executed"`
	FilterStats    *FilterStats `json:"filter_stats,omitempty"`
	Diff           *FileDiff    `json:"diff,omitempty"`
	Streamed       bool         `json:"streamed"`
}

// ErrorKind tags tool failures.
type ErrorKind string

const (
	ErrKindBlocked         ErrorKind = "blocked"
	ErrKindConfirmRequired ErrorKind = "confirmation_required"
	ErrKindExecutionFailed ErrorKind = "execution_failed"
	ErrKindTimeout         ErrorKind = "timeout"
)

// ToolError is the tagged tool failure. Blocked and execution-failed
// are appended to history as tool results so the model can react;
// confirmation-required propagates to the transport.
type ToolError struct {
	Kind    ErrorKind
	Command string
	Err     error
}

func (e *ToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tool %s: %s: %v", e.Kind, e.Command, e.Err)
	}
	return fmt.Sprintf("tool %s: %s", e.Kind, e.Command)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Blocked builds a blocked-tool error.
func Blocked(command string) *ToolError {
	return &ToolError{Kind: ErrKindBlocked, Command: command}
}

// ConfirmationRequired builds a confirmation-required error carrying
// the command to confirm.
func ConfirmationRequired(command string) *ToolError {
	return &ToolError{Kind: ErrKindConfirmRequired, Command: command}
}

// Executor dispatches tool invocations. Execute scans assistant text
// for fenced code blocks; ExecuteToolCall handles structured calls.
// Both return (nil, nil) when nothing matched, so a composite can fall
// through.
type Executor interface {
	Execute(ctx context.Context, assistantText string) (*ToolOutput, error)
	ExecuteToolCall(ctx context.Context, call *models.ToolCall) (*ToolOutput, error)

	// ExecuteConfirmed assumes prior human approval and skips the
	// Ask path.
	ExecuteConfirmed(ctx context.Context, assistantText string) (*ToolOutput, error)

	ToolDefinitions() []models.ToolDef
}

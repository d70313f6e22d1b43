package tools

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/osamaelmahalawi/zeph/internal/tools/filter"
	"github.com/osamaelmahalawi/zeph/pkg/models"
)

// ShellExecutor runs fenced `bash` blocks and structured bash calls
// through `sh -c`, filtering output through the pipeline.
type ShellExecutor struct {
	policy   *PermissionPolicy
	pipeline *filter.Pipeline
	timeout  time.Duration
	workdir  string
}

// NewShellExecutor creates the executor. policy gates fenced-mode
// commands; structured calls are gated upstream by the trust gate.
func NewShellExecutor(policy *PermissionPolicy, pipeline *filter.Pipeline, timeout time.Duration, workdir string) *ShellExecutor {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ShellExecutor{policy: policy, pipeline: pipeline, timeout: timeout, workdir: workdir}
}

func (e *ShellExecutor) ToolDefinitions() []models.ToolDef {
	return []models.ToolDef{{
		ID:          ToolBash,
		Description: "Run a shell command and return its filtered output.",
		Params: []models.ToolParam{
			{Name: "command", Type: "string", Required: true},
		},
	}}
}

func (e *ShellExecutor) bashBlocks(text string) []string {
	var blocks []string
	for _, b := range ExtractFencedBlocks(text) {
		if b.Tag == "bash" && strings.TrimSpace(b.Body) != "" {
			blocks = append(blocks, b.Body)
		}
	}
	return blocks
}

func (e *ShellExecutor) Execute(ctx context.Context, assistantText string) (*ToolOutput, error) {
	blocks := e.bashBlocks(assistantText)
	if len(blocks) == 0 {
		return nil, nil
	}
	for _, block := range blocks {
		switch e.policy.Check(ToolBash, block) {
		case ActionAsk:
			return nil, ConfirmationRequired(block)
		case ActionDeny:
			return nil, Blocked(block)
		}
	}
	return e.run(ctx, blocks)
}

func (e *ShellExecutor) ExecuteConfirmed(ctx context.Context, assistantText string) (*ToolOutput, error) {
	blocks := e.bashBlocks(assistantText)
	if len(blocks) == 0 {
		return nil, nil
	}
	return e.run(ctx, blocks)
}

func (e *ShellExecutor) ExecuteToolCall(ctx context.Context, call *models.ToolCall) (*ToolOutput, error) {
	if call.ToolID != ToolBash {
		return nil, nil
	}
	command := call.StringParam("command")
	if command == "" {
		return nil, &ToolError{Kind: ErrKindExecutionFailed, Command: call.ToolID, Err: errors.New("missing command parameter")}
	}
	return e.run(ctx, []string{command})
}

func (e *ShellExecutor) run(ctx context.Context, blocks []string) (*ToolOutput, error) {
	var (
		summary strings.Builder
		stats   *FilterStats
	)
	for i, block := range blocks {
		output, exitCode, err := e.runBlock(ctx, block)
		if err != nil {
			return nil, err
		}

		res := e.pipeline.Apply(firstLine(block), output, exitCode)
		if stats == nil {
			stats = &FilterStats{Confidence: FilterConfidence(res.Confidence)}
		}
		stats.RawTokens += res.RawTokens
		stats.SavedTokens += res.SavedTokens

		if i > 0 {
			summary.WriteString("\n")
		}
		if exitCode != 0 {
			fmt.Fprintf(&summary, "(exit %d) ", exitCode)
		}
		summary.WriteString(res.Output)
	}

	return &ToolOutput{
		ToolName:       ToolBash,
		Summary:        summary.String(),
		BlocksExecuted: len(blocks),
		FilterStats:    stats,
	}, nil
}

// runBlock executes one shell block. A non-zero exit is not an error:
// the output goes back to the model. Timeouts and cancellation abort.
func (e *ShellExecutor) runBlock(ctx context.Context, block string) (string, int, error) {
	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", block)
	if e.workdir != "" {
		cmd.Dir = e.workdir
	}
	output, err := cmd.CombinedOutput()

	if runCtx.Err() == context.DeadlineExceeded {
		return "", 0, &ToolError{Kind: ErrKindTimeout, Command: firstLine(block), Err: runCtx.Err()}
	}
	if ctx.Err() != nil {
		return "", 0, ctx.Err()
	}

	exitCode := 0
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	} else if err != nil {
		return "", 0, &ToolError{Kind: ErrKindExecutionFailed, Command: firstLine(block), Err: err}
	}
	return string(output), exitCode, nil
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

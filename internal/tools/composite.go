package tools

import (
	"context"

	"github.com/osamaelmahalawi/zeph/pkg/models"
)

// Composite chains two executors with first-match-wins semantics: the
// first executor runs; a "no match" (nil, nil) falls through to the
// second; errors short-circuit.
type Composite struct {
	first  Executor
	second Executor
}

// NewComposite chains first over second.
func NewComposite(first, second Executor) *Composite {
	return &Composite{first: first, second: second}
}

// Chain folds a list of executors into nested composites. A single
// executor is returned unwrapped; an empty list yields nil.
func Chain(executors ...Executor) Executor {
	switch len(executors) {
	case 0:
		return nil
	case 1:
		return executors[0]
	default:
		return NewComposite(executors[0], Chain(executors[1:]...))
	}
}

func (c *Composite) Execute(ctx context.Context, assistantText string) (*ToolOutput, error) {
	out, err := c.first.Execute(ctx, assistantText)
	if err != nil {
		return nil, err
	}
	if out != nil {
		return out, nil
	}
	return c.second.Execute(ctx, assistantText)
}

func (c *Composite) ExecuteConfirmed(ctx context.Context, assistantText string) (*ToolOutput, error) {
	out, err := c.first.ExecuteConfirmed(ctx, assistantText)
	if err != nil {
		return nil, err
	}
	if out != nil {
		return out, nil
	}
	return c.second.ExecuteConfirmed(ctx, assistantText)
}

func (c *Composite) ExecuteToolCall(ctx context.Context, call *models.ToolCall) (*ToolOutput, error) {
	out, err := c.first.ExecuteToolCall(ctx, call)
	if err != nil {
		return nil, err
	}
	if out != nil {
		return out, nil
	}
	return c.second.ExecuteToolCall(ctx, call)
}

func (c *Composite) ToolDefinitions() []models.ToolDef {
	defs := c.first.ToolDefinitions()
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		seen[d.ID] = true
	}
	for _, d := range c.second.ToolDefinitions() {
		if !seen[d.ID] {
			defs = append(defs, d)
		}
	}
	return defs
}

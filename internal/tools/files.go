package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/osamaelmahalawi/zeph/pkg/models"
)

// maxFileReadBytes caps how much of a file re-enters the context.
const maxFileReadBytes = 64 * 1024

// FileExecutor implements the read/write/edit/glob/grep tools, both as
// synthetic fenced tags and as structured calls.
//
// Fenced body formats:
//
//	read:  one path per line
//	write: first line is the path, the rest is the content
//	edit:  first line is the path, then old text, a line `---`, new text
//	glob:  one pattern per line
//	grep:  first line is the pattern, optional second line a root dir
type FileExecutor struct {
	policy  *PermissionPolicy
	workdir string
}

// NewFileExecutor roots relative paths at workdir. policy gates
// fenced-mode blocks; structured calls are gated upstream by the
// trust gate.
func NewFileExecutor(policy *PermissionPolicy, workdir string) *FileExecutor {
	return &FileExecutor{policy: policy, workdir: workdir}
}

func (e *FileExecutor) ToolDefinitions() []models.ToolDef {
	return []models.ToolDef{
		{ID: ToolFileRead, Description: "Read a file's contents.", Params: []models.ToolParam{
			{Name: "path", Type: "string", Required: true},
		}},
		{ID: ToolFileWrite, Description: "Write content to a file, replacing it.", Params: []models.ToolParam{
			{Name: "path", Type: "string", Required: true},
			{Name: "content", Type: "string", Required: true},
		}},
		{ID: ToolFileEdit, Description: "Replace an exact text span in a file.", Params: []models.ToolParam{
			{Name: "path", Type: "string", Required: true},
			{Name: "old", Type: "string", Required: true},
			{Name: "new", Type: "string", Required: true},
		}},
		{ID: ToolGlob, Description: "List files matching a glob pattern.", Params: []models.ToolParam{
			{Name: "pattern", Type: "string", Required: true},
		}},
		{ID: ToolGrep, Description: "Search files for a substring.", Params: []models.ToolParam{
			{Name: "pattern", Type: "string", Required: true},
			{Name: "path", Type: "string", Required: false},
		}},
	}
}

func (e *FileExecutor) resolve(path string) string {
	if filepath.IsAbs(path) || e.workdir == "" {
		return path
	}
	return filepath.Join(e.workdir, path)
}

func (e *FileExecutor) Execute(ctx context.Context, assistantText string) (*ToolOutput, error) {
	for _, block := range ExtractFencedBlocks(assistantText) {
		toolID := FencedToolID(block.Tag)
		switch toolID {
		case ToolFileRead, ToolFileWrite, ToolFileEdit, ToolGlob, ToolGrep:
			switch e.policy.Check(toolID, block.Body) {
			case ActionAsk:
				return nil, ConfirmationRequired(block.Body)
			case ActionDeny:
				return nil, Blocked(block.Body)
			}
			return e.runFenced(ctx, toolID, block.Body)
		}
	}
	return nil, nil
}

// ExecuteConfirmed runs the first matching fenced block without the
// policy check, assuming prior human approval.
func (e *FileExecutor) ExecuteConfirmed(ctx context.Context, assistantText string) (*ToolOutput, error) {
	for _, block := range ExtractFencedBlocks(assistantText) {
		toolID := FencedToolID(block.Tag)
		switch toolID {
		case ToolFileRead, ToolFileWrite, ToolFileEdit, ToolGlob, ToolGrep:
			return e.runFenced(ctx, toolID, block.Body)
		}
	}
	return nil, nil
}

func (e *FileExecutor) runFenced(ctx context.Context, toolID, body string) (*ToolOutput, error) {
	lines := strings.SplitN(body, "\n", 2)
	first := strings.TrimSpace(lines[0])
	rest := ""
	if len(lines) > 1 {
		rest = lines[1]
	}

	switch toolID {
	case ToolFileRead:
		var outputs []string
		count := 0
		for _, path := range strings.Split(body, "\n") {
			path = strings.TrimSpace(path)
			if path == "" {
				continue
			}
			content, err := e.readFile(path)
			if err != nil {
				return nil, err
			}
			outputs = append(outputs, content)
			count++
		}
		if count == 0 {
			return nil, nil
		}
		return &ToolOutput{ToolName: ToolFileRead, Summary: strings.Join(outputs, "\n"), BlocksExecuted: count}, nil

	case ToolFileWrite:
		return e.write(first, rest)

	case ToolFileEdit:
		old, newText, ok := strings.Cut(rest, "\n---\n")
		if !ok {
			return nil, &ToolError{Kind: ErrKindExecutionFailed, Command: toolID,
				Err: fmt.Errorf("edit block missing --- separator")}
		}
		return e.edit(first, old, newText)

	case ToolGlob:
		return e.glob(ctx, strings.Split(body, "\n"))

	case ToolGrep:
		root := strings.TrimSpace(rest)
		return e.grep(ctx, first, root)
	}
	return nil, nil
}

func (e *FileExecutor) ExecuteToolCall(ctx context.Context, call *models.ToolCall) (*ToolOutput, error) {
	switch call.ToolID {
	case ToolFileRead:
		content, err := e.readFile(call.StringParam("path"))
		if err != nil {
			return nil, err
		}
		return &ToolOutput{ToolName: ToolFileRead, Summary: content, BlocksExecuted: 1}, nil
	case ToolFileWrite:
		return e.write(call.StringParam("path"), call.StringParam("content"))
	case ToolFileEdit:
		return e.edit(call.StringParam("path"), call.StringParam("old"), call.StringParam("new"))
	case ToolGlob:
		return e.glob(ctx, []string{call.StringParam("pattern")})
	case ToolGrep:
		return e.grep(ctx, call.StringParam("pattern"), call.StringParam("path"))
	default:
		return nil, nil
	}
}

func (e *FileExecutor) readFile(path string) (string, error) {
	data, err := os.ReadFile(e.resolve(path))
	if err != nil {
		return "", &ToolError{Kind: ErrKindExecutionFailed, Command: ToolFileRead, Err: err}
	}
	if len(data) > maxFileReadBytes {
		return string(data[:maxFileReadBytes]) + "\n... (truncated)", nil
	}
	return string(data), nil
}

func (e *FileExecutor) write(path, content string) (*ToolOutput, error) {
	if path == "" {
		return nil, &ToolError{Kind: ErrKindExecutionFailed, Command: ToolFileWrite, Err: fmt.Errorf("missing path")}
	}
	full := e.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, &ToolError{Kind: ErrKindExecutionFailed, Command: ToolFileWrite, Err: err}
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return nil, &ToolError{Kind: ErrKindExecutionFailed, Command: ToolFileWrite, Err: err}
	}
	added := strings.Count(content, "\n") + 1
	return &ToolOutput{
		ToolName:       ToolFileWrite,
		Summary:        fmt.Sprintf("wrote %d bytes to %s", len(content), path),
		BlocksExecuted: 1,
		Diff:           &FileDiff{Path: path, Added: added},
	}, nil
}

func (e *FileExecutor) edit(path, old, newText string) (*ToolOutput, error) {
	if path == "" || old == "" {
		return nil, &ToolError{Kind: ErrKindExecutionFailed, Command: ToolFileEdit, Err: fmt.Errorf("missing path or old text")}
	}
	full := e.resolve(path)
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, &ToolError{Kind: ErrKindExecutionFailed, Command: ToolFileEdit, Err: err}
	}
	content := string(data)
	if !strings.Contains(content, old) {
		return nil, &ToolError{Kind: ErrKindExecutionFailed, Command: ToolFileEdit,
			Err: fmt.Errorf("old text not found in %s", path)}
	}
	updated := strings.Replace(content, old, newText, 1)
	if err := os.WriteFile(full, []byte(updated), 0o644); err != nil {
		return nil, &ToolError{Kind: ErrKindExecutionFailed, Command: ToolFileEdit, Err: err}
	}

	removed := strings.Count(old, "\n") + 1
	added := strings.Count(newText, "\n") + 1
	diff := &FileDiff{
		Path:    path,
		Added:   added,
		Removed: removed,
		Unified: unifiedSnippet(old, newText),
	}
	return &ToolOutput{
		ToolName:       ToolFileEdit,
		Summary:        fmt.Sprintf("edited %s (+%d -%d)", path, added, removed),
		BlocksExecuted: 1,
		Diff:           diff,
	}, nil
}

func unifiedSnippet(old, newText string) string {
	var out strings.Builder
	for _, line := range strings.Split(old, "\n") {
		out.WriteString("-" + line + "\n")
	}
	for _, line := range strings.Split(newText, "\n") {
		out.WriteString("+" + line + "\n")
	}
	return strings.TrimRight(out.String(), "\n")
}

func (e *FileExecutor) glob(ctx context.Context, patterns []string) (*ToolOutput, error) {
	var matches []string
	count := 0
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		found, err := filepath.Glob(e.resolve(pattern))
		if err != nil {
			return nil, &ToolError{Kind: ErrKindExecutionFailed, Command: ToolGlob, Err: err}
		}
		matches = append(matches, found...)
		count++
	}
	if count == 0 {
		return nil, nil
	}
	summary := strings.Join(matches, "\n")
	if summary == "" {
		summary = "(no matches)"
	}
	return &ToolOutput{ToolName: ToolGlob, Summary: summary, BlocksExecuted: count}, nil
}

func (e *FileExecutor) grep(ctx context.Context, pattern, root string) (*ToolOutput, error) {
	if pattern == "" {
		return nil, &ToolError{Kind: ErrKindExecutionFailed, Command: ToolGrep, Err: fmt.Errorf("missing pattern")}
	}
	if root == "" {
		root = "."
	}
	root = e.resolve(root)

	var out strings.Builder
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if info.Size() > maxFileReadBytes {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		for i, line := range strings.Split(string(data), "\n") {
			if strings.Contains(line, pattern) {
				fmt.Fprintf(&out, "%s:%d:%s\n", path, i+1, line)
			}
		}
		return nil
	})
	if err != nil {
		return nil, &ToolError{Kind: ErrKindExecutionFailed, Command: ToolGrep, Err: err}
	}

	summary := strings.TrimRight(out.String(), "\n")
	if summary == "" {
		summary = "(no matches)"
	}
	return &ToolOutput{ToolName: ToolGrep, Summary: summary, BlocksExecuted: 1}, nil
}

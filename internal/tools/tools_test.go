package tools

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osamaelmahalawi/zeph/internal/tools/filter"
	"github.com/osamaelmahalawi/zeph/pkg/models"
)

func strParam(s string) json.RawMessage {
	raw, _ := json.Marshal(s)
	return raw
}

func bashCall(command string) *models.ToolCall {
	return &models.ToolCall{
		ToolID: ToolBash,
		Params: map[string]json.RawMessage{"command": strParam(command)},
	}
}

func TestGlobMatch(t *testing.T) {
	cases := []struct {
		pattern, input string
		want           bool
	}{
		{"rm *", "rm tmp.txt", true},
		{"rm *", "rm", false},
		{"*", "anything at all", true},
		{"git push*", "git push origin main", true},
		{"git push*", "git pull", false},
		{"exact", "exact", true},
		{"exact", "exactly", false},
		{"*--force*", "git push --force origin", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, globMatch(tc.pattern, tc.input), "%q vs %q", tc.pattern, tc.input)
	}
}

func TestPermissionFirstMatchWins(t *testing.T) {
	p := NewPermissionPolicy()
	p.AddRule(ToolBash, "rm *", ActionAsk)
	p.AddRule(ToolBash, "*", ActionAllow)

	assert.Equal(t, ActionAsk, p.Check(ToolBash, "rm tmp.txt"))
	assert.Equal(t, ActionAllow, p.Check(ToolBash, "ls -la"))
}

func TestPermissionDefaults(t *testing.T) {
	p := NewPermissionPolicy()
	// No rules at all: Allow.
	assert.Equal(t, ActionAllow, p.Check(ToolBash, "ls"))

	// Rules exist but none match: Ask.
	p.AddRule(ToolBash, "rm *", ActionDeny)
	assert.Equal(t, ActionAsk, p.Check(ToolBash, "ls"))
	assert.Equal(t, ActionDeny, p.Check(ToolBash, "rm -rf /"))
}

func TestPermissionAutonomyDowngrade(t *testing.T) {
	p := NewPermissionPolicy()
	p.AddRule(ToolFileRead, "secret*", ActionDeny)
	p.AddRule(ToolBash, "rm *", ActionDeny)

	// Unmatched input defaults to Ask for both tools.
	assert.Equal(t, ActionAsk, p.Check(ToolFileRead, "notes.txt"))
	assert.Equal(t, ActionAsk, p.Check(ToolBash, "ls"))

	p.SetAutonomy(AutonomyHigh)
	// Only safe categories downgrade.
	assert.Equal(t, ActionAllow, p.Check(ToolFileRead, "notes.txt"))
	assert.Equal(t, ActionAsk, p.Check(ToolBash, "ls"))
}

func TestFullyDenied(t *testing.T) {
	p := NewPermissionPolicy()
	p.AddRule(ToolWebScrape, "*", ActionDeny)
	assert.True(t, p.FullyDenied(ToolWebScrape))
	assert.False(t, p.FullyDenied(ToolBash))
}

func TestExtractFencedBlocks(t *testing.T) {
	text := "Let me check.\n```bash\nls -la\n```\nand read:\n```read\nmain.go\n```\n```python\nprint(1)\n```"
	blocks := ExtractFencedBlocks(text)
	require.Len(t, blocks, 2, "unrecognized tags are skipped")
	assert.Equal(t, "bash", blocks[0].Tag)
	assert.Equal(t, "ls -la", blocks[0].Body)
	assert.Equal(t, "read", blocks[1].Tag)
}

func newShell(t *testing.T, policy *PermissionPolicy) *ShellExecutor {
	t.Helper()
	return NewShellExecutor(policy, filter.NewPipeline(nil), 10*time.Second, t.TempDir())
}

func TestShellExecuteFenced(t *testing.T) {
	exec := newShell(t, NewPermissionPolicy())
	out, err := exec.Execute(context.Background(), "```bash\necho hello\n```")
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, 1, out.BlocksExecuted)
	assert.Contains(t, out.Summary, "hello")
}

func TestShellNoMatchFallsThrough(t *testing.T) {
	exec := newShell(t, NewPermissionPolicy())
	out, err := exec.Execute(context.Background(), "no code blocks here")
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestShellAskPath(t *testing.T) {
	policy := NewPermissionPolicy()
	policy.AddRule(ToolBash, "rm *", ActionAsk)
	policy.AddRule(ToolBash, "*", ActionAllow)
	exec := newShell(t, policy)

	_, err := exec.Execute(context.Background(), "```bash\nrm tmp.txt\n```")
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, ErrKindConfirmRequired, toolErr.Kind)
	assert.Equal(t, "rm tmp.txt", toolErr.Command)

	// Confirmed execution bypasses the Ask.
	out, err := exec.ExecuteConfirmed(context.Background(), "```bash\nrm -f tmp.txt\n```")
	require.NoError(t, err)
	require.NotNil(t, out)
}

func TestShellStructuredCall(t *testing.T) {
	exec := newShell(t, NewPermissionPolicy())
	out, err := exec.ExecuteToolCall(context.Background(), bashCall("echo structured"))
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Contains(t, out.Summary, "structured")
}

func TestShellNonZeroExitIsNotError(t *testing.T) {
	exec := newShell(t, NewPermissionPolicy())
	out, err := exec.ExecuteToolCall(context.Background(), bashCall("exit 3"))
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Contains(t, out.Summary, "(exit 3)")
}

func TestTrustGateBlocked(t *testing.T) {
	policy := NewPermissionPolicy()
	gate := NewTrustGate(newShell(t, policy), policy)
	gate.SetEffectiveTrust(models.TrustBlocked)

	_, err := gate.Execute(context.Background(), "```bash\nls\n```")
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, ErrKindBlocked, toolErr.Kind)

	_, err = gate.ExecuteToolCall(context.Background(), bashCall("ls"))
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, ErrKindBlocked, toolErr.Kind)
}

func TestTrustGateQuarantineDeniesFencedBash(t *testing.T) {
	policy := NewPermissionPolicy()
	gate := NewTrustGate(newShell(t, policy), policy)
	gate.SetEffectiveTrust(models.TrustQuarantined)

	_, err := gate.Execute(context.Background(), "```bash\nls\n```")
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, ErrKindBlocked, toolErr.Kind)
	assert.Contains(t, toolErr.Command, "trust=quarantined")
}

func TestTrustGatePolicyDeny(t *testing.T) {
	policy := NewPermissionPolicy()
	policy.AddRule(ToolBash, "*", ActionDeny)
	gate := NewTrustGate(newShell(t, policy), policy)

	_, err := gate.ExecuteToolCall(context.Background(), bashCall("ls"))
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, ErrKindBlocked, toolErr.Kind)
}

func TestTrustGatePolicyAsk(t *testing.T) {
	policy := NewPermissionPolicy()
	policy.AddRule(ToolBash, "rm *", ActionAsk)
	gate := NewTrustGate(newShell(t, policy), policy)

	_, err := gate.ExecuteToolCall(context.Background(), bashCall("rm tmp.txt"))
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, ErrKindConfirmRequired, toolErr.Kind)
}

// errExecutor always errors, to verify composite short-circuit.
type errExecutor struct{}

func (errExecutor) Execute(context.Context, string) (*ToolOutput, error) {
	return nil, errors.New("boom")
}
func (errExecutor) ExecuteConfirmed(context.Context, string) (*ToolOutput, error) {
	return nil, errors.New("boom")
}
func (errExecutor) ExecuteToolCall(context.Context, *models.ToolCall) (*ToolOutput, error) {
	return nil, errors.New("boom")
}
func (errExecutor) ToolDefinitions() []models.ToolDef { return nil }

func TestCompositeFirstMatchWins(t *testing.T) {
	shell := newShell(t, NewPermissionPolicy())
	files := NewFileExecutor(NewPermissionPolicy(), t.TempDir())
	composite := NewComposite(shell, files)

	// bash matches the first executor.
	out, err := composite.Execute(context.Background(), "```bash\necho via-shell\n```")
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, ToolBash, out.ToolName)

	// glob falls through to the second.
	out, err = composite.Execute(context.Background(), "```glob\n*.go\n```")
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, ToolGlob, out.ToolName)
}

func TestCompositeErrorShortCircuits(t *testing.T) {
	composite := NewComposite(errExecutor{}, newShell(t, NewPermissionPolicy()))
	_, err := composite.Execute(context.Background(), "```bash\nls\n```")
	assert.Error(t, err)
}

func TestFileExecutorRoundTrip(t *testing.T) {
	dir := t.TempDir()
	exec := NewFileExecutor(NewPermissionPolicy(), dir)
	ctx := context.Background()

	out, err := exec.Execute(ctx, "```write\nnotes.txt\nhello\nworld\n```")
	require.NoError(t, err)
	require.NotNil(t, out)
	require.NotNil(t, out.Diff)
	assert.Equal(t, "notes.txt", out.Diff.Path)

	out, err = exec.Execute(ctx, "```read\nnotes.txt\n```")
	require.NoError(t, err)
	assert.Contains(t, out.Summary, "hello\nworld")

	out, err = exec.Execute(ctx, "```edit\nnotes.txt\nhello\n---\ngoodbye\n```")
	require.NoError(t, err)
	require.NotNil(t, out.Diff)
	assert.Equal(t, 1, out.Diff.Added)
	assert.Equal(t, 1, out.Diff.Removed)
	assert.Contains(t, out.Diff.Unified, "-hello")
	assert.Contains(t, out.Diff.Unified, "+goodbye")

	data, err := os.ReadFile(filepath.Join(dir, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "goodbye\nworld", string(data))
}

func TestFileExecutorFencedPolicyDeny(t *testing.T) {
	dir := t.TempDir()
	policy := NewPermissionPolicy()
	policy.AddRule(ToolFileWrite, "*", ActionDeny)
	exec := NewFileExecutor(policy, dir)

	_, err := exec.Execute(context.Background(), "```write\nowned.txt\nowned\n```")
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, ErrKindBlocked, toolErr.Kind)
	_, statErr := os.Stat(filepath.Join(dir, "owned.txt"))
	assert.True(t, os.IsNotExist(statErr), "denied write must not touch disk")
}

func TestFileExecutorFencedPolicyAsk(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("old text"), 0o644))
	policy := NewPermissionPolicy()
	policy.AddRule(ToolFileEdit, "*", ActionAsk)
	exec := NewFileExecutor(policy, dir)

	block := "```edit\nf.txt\nold\n---\nnew\n```"
	_, err := exec.Execute(context.Background(), block)
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, ErrKindConfirmRequired, toolErr.Kind)

	// Confirmed execution bypasses the Ask.
	out, err := exec.ExecuteConfirmed(context.Background(), block)
	require.NoError(t, err)
	require.NotNil(t, out)
	data, err := os.ReadFile(filepath.Join(dir, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "new text", string(data))
}

func TestFileExecutorFencedPolicyGrep(t *testing.T) {
	policy := NewPermissionPolicy()
	policy.AddRule(ToolGrep, "secret*", ActionDeny)
	exec := NewFileExecutor(policy, t.TempDir())

	_, err := exec.Execute(context.Background(), "```grep\nsecret token\n```")
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, ErrKindBlocked, toolErr.Kind)
}

func TestFileExecutorEditMissingOldText(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("content"), 0o644))
	exec := NewFileExecutor(NewPermissionPolicy(), dir)

	_, err := exec.Execute(context.Background(), "```edit\nf.txt\nnot-there\n---\nnew\n```")
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, ErrKindExecutionFailed, toolErr.Kind)
}

func TestFileExecutorGrep(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("find me here\nnot this"), 0o644))
	exec := NewFileExecutor(NewPermissionPolicy(), dir)

	out, err := exec.Execute(context.Background(), "```grep\nfind me\n```")
	require.NoError(t, err)
	assert.Contains(t, out.Summary, "a.txt:1:find me here")
}

func TestFormatToolCatalogOmitsFullyDenied(t *testing.T) {
	policy := NewPermissionPolicy()
	policy.AddRule(ToolWebScrape, "*", ActionDeny)

	executor := Chain(newShell(t, policy), NewFileExecutor(policy, ""), NewWebScrapeExecutor(0, 0))
	catalog := FormatToolCatalog(executor, policy)
	assert.Contains(t, catalog, `<tool id="bash">`)
	assert.Contains(t, catalog, `<tool id="file_read">`)
	assert.NotContains(t, catalog, ToolWebScrape)
}

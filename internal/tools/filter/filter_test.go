package filter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCargoBuildStripsNoise(t *testing.T) {
	f := NewCargoBuildFilter()
	assert.True(t, f.Match("cargo build --release"))
	assert.True(t, f.Match("cargo fetch"))
	assert.False(t, f.Match("cargo test"))
	assert.False(t, f.Match("cargo nextest run"))
	assert.False(t, f.Match("go build"))

	raw := strings.Join([]string{
		"   Compiling serde v1.0.0",
		"   Compiling tokio v1.38.0",
		"warning: unused variable `x`",
		"    Finished release [optimized] target(s) in 12.3s",
	}, "\n")

	res := f.Filter("cargo build", raw, 0)
	assert.Equal(t, ConfidenceFull, res.Confidence)
	assert.Contains(t, res.Output, "Finished release")
	assert.Contains(t, res.Output, "warning: unused variable")
	assert.NotContains(t, res.Output, "Compiling serde")
	assert.Positive(t, res.SavedTokens)
}

func TestCargoBuildLongOutputNoNoise(t *testing.T) {
	f := NewCargoBuildFilter()
	lines := make([]string, 50)
	for i := range lines {
		lines[i] = "line"
	}
	res := f.Filter("cargo run", strings.Join(lines, "\n"), 0)
	assert.Equal(t, ConfidencePartial, res.Confidence)
	assert.Contains(t, res.Output, "lines elided")
}

func TestCargoBuildShortOutputPassthrough(t *testing.T) {
	f := NewCargoBuildFilter()
	res := f.Filter("cargo run", "hello\nworld", 0)
	assert.Equal(t, ConfidenceFallback, res.Confidence)
	assert.Equal(t, "hello\nworld", res.Output)
}

func TestCargoTestSummaryOnSuccess(t *testing.T) {
	f := NewCargoTestFilter()
	assert.True(t, f.Match("cargo test"))
	assert.True(t, f.Match("cargo nextest run"))

	raw := "running 12 tests\n............\ntest result: ok. 12 passed; 0 failed; 0 ignored; 0 measured\n"
	res := f.Filter("cargo test", raw, 0)
	assert.Equal(t, ConfidenceFull, res.Confidence)
	assert.Equal(t, "test result: ok. 12 passed; 0 failed; 0 ignored", res.Output)
}

func TestCargoTestKeepsFailureBlocks(t *testing.T) {
	f := NewCargoTestFilter()
	raw := strings.Join([]string{
		"running 2 tests",
		"---- tests::broken stdout ----",
		"assertion failed: left == right",
		"failures:",
		"    tests::broken",
		"test result: FAILED. 1 passed; 1 failed; 0 ignored; 0 measured",
	}, "\n")

	res := f.Filter("cargo test", raw, 101)
	assert.Contains(t, res.Output, "assertion failed")
	assert.Contains(t, res.Output, "test result: FAILED")
}

func TestGitStatusCounts(t *testing.T) {
	f := NewGitFilter()
	raw := " M internal/agent/engine.go\n M internal/llm/router.go\n?? notes.txt\n"
	res := f.Filter("git status --short", raw, 0)
	assert.Equal(t, ConfidenceFull, res.Confidence)
	assert.Equal(t, "M  2 files | A  0 files | D  0 files | ??  1 files", res.Output)
}

func TestGitDiffPerFileCounts(t *testing.T) {
	f := NewGitFilter()
	raw := strings.Join([]string{
		"diff --git a/main.go b/main.go",
		"--- a/main.go",
		"+++ b/main.go",
		"+added line",
		"+another",
		"-removed",
		"diff --git a/util.go b/util.go",
		"+one more",
	}, "\n")
	res := f.Filter("git diff", raw, 0)
	assert.Contains(t, res.Output, "main.go | +2 -1")
	assert.Contains(t, res.Output, "util.go | +1 -0")
	assert.Contains(t, res.Output, "2 files changed, +3 -1")
}

func TestGitUnknownSubcommandPassthrough(t *testing.T) {
	f := NewGitFilter()
	res := f.Filter("git stash", "Saved working directory", 0)
	assert.Equal(t, ConfidenceFallback, res.Confidence)
}

func TestLogDedupCollapses(t *testing.T) {
	f := NewLogDedupFilter()
	assert.True(t, f.Match("journalctl -u nginx"))
	assert.True(t, f.Match("docker logs web"))
	assert.True(t, f.Match("tail -f /var/log/app.log"))
	assert.False(t, f.Match("ls -la"))

	raw := strings.Join([]string{
		"2024-01-15T10:00:01Z request from 10.0.0.1 id=5f2b1c3d-aaaa-bbbb-cccc-1234567890ab",
		"2024-01-15T10:00:02Z request from 10.0.0.2 id=5f2b1c3d-aaaa-bbbb-cccc-1234567890ac",
		"2024-01-15T10:00:03Z request from 10.0.0.3 id=5f2b1c3d-aaaa-bbbb-cccc-1234567890ad",
		"startup complete",
	}, "\n")

	res := f.Filter("journalctl -u app", raw, 0)
	require.Equal(t, ConfidenceFull, res.Confidence)
	assert.Contains(t, res.Output, "<TS> request from <IP> id=<UUID> (x3)")
	assert.Contains(t, res.Output, "startup complete")
}

func TestPipelineFirstMatchAndSecurityPreservation(t *testing.T) {
	p := NewPipeline([]string{"custom-alert"})

	raw := "   Compiling app v0.1.0\npermission denied: /etc/shadow\ncustom-alert triggered\n    Finished dev target(s)"
	res := p.Apply("cargo build", raw, 0)

	assert.Contains(t, res.Output, "## Security Warnings")
	assert.Contains(t, res.Output, "permission denied: /etc/shadow")
	assert.Contains(t, res.Output, "custom-alert triggered")
	assert.NotContains(t, strings.Split(res.Output, "## Security Warnings")[0], "Compiling")
}

func TestPipelinePassthroughUnmatched(t *testing.T) {
	p := NewPipeline(nil)
	res := p.Apply("echo hi", "hi", 0)
	assert.Equal(t, ConfidenceFallback, res.Confidence)
	assert.Equal(t, "hi", res.Output)
}

package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// noisePrefixes are cargo progress lines stripped by the build filter.
var noisePrefixes = []string{
	"Compiling ", "Downloading ", "Downloaded ", "Updating ", "Fetching ",
	"Fresh ", "Packaging ", "Verifying ", "Archiving ", "Locking ",
	"Adding ", "Removing ", "Checking ", "Documenting ", "Running ",
	"Loaded ", "Blocking ", "Unpacking ",
}

const (
	longOutputThreshold = 30
	keepHead            = 10
	keepTail            = 5
)

func isNoise(line string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	for _, p := range noisePrefixes {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	return false
}

// CargoBuildFilter strips compile/fetch progress from cargo build and
// fetch output, keeping the Finished line and any warning/error lines.
type CargoBuildFilter struct{}

func NewCargoBuildFilter() *CargoBuildFilter { return &CargoBuildFilter{} }

func (f *CargoBuildFilter) Name() string { return "cargo_build" }

func (f *CargoBuildFilter) Match(command string) bool {
	tokens := strings.Fields(strings.ToLower(command))
	if len(tokens) == 0 || tokens[0] != "cargo" {
		return false
	}
	for _, t := range tokens[1:] {
		if t == "test" || t == "nextest" || t == "clippy" {
			return false
		}
	}
	return true
}

func (f *CargoBuildFilter) Filter(_ string, raw string, _ int) Result {
	lines := strings.Split(raw, "\n")
	var (
		kept         []string
		finishedLine string
		noiseCount   int
	)
	for _, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		switch {
		case strings.HasPrefix(trimmed, "Finished "):
			finishedLine = line
		case isNoise(line):
			noiseCount++
		case strings.Contains(line, "warning:") || strings.Contains(line, "error:"):
			kept = append(kept, line)
		default:
			kept = append(kept, line)
		}
	}

	if noiseCount == 0 {
		// No recognizable noise: truncate only when the output is long.
		if len(lines) <= longOutputThreshold {
			return makeResult(raw, raw, ConfidenceFallback)
		}
		out := strings.Join(lines[:keepHead], "\n") +
			fmt.Sprintf("\n... (%d lines elided) ...\n", len(lines)-keepHead-keepTail) +
			strings.Join(lines[len(lines)-keepTail:], "\n")
		return makeResult(raw, out, ConfidencePartial)
	}

	var out []string
	if finishedLine != "" {
		out = append(out, finishedLine)
	}
	for _, line := range kept {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return makeResult(raw, strings.Join(out, "\n"), ConfidenceFull)
}

// CargoTestFilter parses cargo test / nextest summaries; on failure it
// preserves failure blocks up to a cap and truncates long stack traces.
type CargoTestFilter struct {
	maxFailureLines int
}

func NewCargoTestFilter() *CargoTestFilter {
	return &CargoTestFilter{maxFailureLines: 40}
}

func (f *CargoTestFilter) Name() string { return "cargo_test" }

func (f *CargoTestFilter) Match(command string) bool {
	tokens := strings.Fields(strings.ToLower(command))
	if len(tokens) < 2 || tokens[0] != "cargo" {
		return false
	}
	for _, t := range tokens[1:] {
		if t == "test" || t == "nextest" {
			return true
		}
	}
	return false
}

var testSummaryRe = regexp.MustCompile(`test result: (\w+)\. (\d+) passed; (\d+) failed; (\d+) ignored`)

func (f *CargoTestFilter) Filter(_ string, raw string, exitCode int) Result {
	summary := testSummaryRe.FindString(raw)

	if exitCode == 0 && summary != "" {
		return makeResult(raw, summary, ConfidenceFull)
	}

	// Failure: keep the failure blocks up to the cap, then the summary.
	lines := strings.Split(raw, "\n")
	var kept []string
	inFailure := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "---- ") && strings.Contains(trimmed, " stdout ----") {
			inFailure = true
		}
		if strings.HasPrefix(trimmed, "failures:") || strings.HasPrefix(trimmed, "test result:") {
			inFailure = false
			kept = append(kept, line)
			continue
		}
		if inFailure {
			kept = append(kept, line)
			if len(kept) >= f.maxFailureLines {
				kept = append(kept, "... (failure output truncated)")
				inFailure = false
			}
		}
	}

	if len(kept) == 0 {
		return makeResult(raw, raw, ConfidenceFallback)
	}
	return makeResult(raw, strings.Join(kept, "\n"), ConfidencePartial)
}

package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// GitFilter compresses git output by subcommand: status becomes
// counts, diff becomes per-file +/- totals, log keeps the top entries,
// push keeps summary lines. Other subcommands pass through raw.
type GitFilter struct {
	maxLogEntries int
}

func NewGitFilter() *GitFilter { return &GitFilter{maxLogEntries: 10} }

func (f *GitFilter) Name() string { return "git" }

func (f *GitFilter) Match(command string) bool {
	return strings.HasPrefix(strings.TrimLeft(command, " \t"), "git ")
}

func (f *GitFilter) Filter(command, raw string, _ int) Result {
	fields := strings.Fields(command)
	subcmd := ""
	if len(fields) > 1 {
		subcmd = fields[1]
	}

	switch subcmd {
	case "status":
		return filterStatus(raw)
	case "diff":
		return filterDiff(raw)
	case "log":
		return filterLog(raw, f.maxLogEntries)
	case "push":
		return filterPush(raw)
	default:
		return makeResult(raw, raw, ConfidenceFallback)
	}
}

func filterStatus(raw string) Result {
	var modified, added, deleted, untracked int
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "M ") || strings.HasPrefix(trimmed, "MM") ||
			strings.HasPrefix(trimmed, "modified:"):
			modified++
		case strings.HasPrefix(trimmed, "A ") || strings.HasPrefix(trimmed, "AM") ||
			strings.HasPrefix(trimmed, "new file:"):
			added++
		case strings.HasPrefix(trimmed, "D ") || strings.HasPrefix(trimmed, "deleted:"):
			deleted++
		case strings.HasPrefix(trimmed, "??"):
			untracked++
		}
	}
	total := modified + added + deleted + untracked
	if total == 0 {
		return makeResult(raw, raw, ConfidenceFallback)
	}
	out := fmt.Sprintf("M  %d files | A  %d files | D  %d files | ??  %d files",
		modified, added, deleted, untracked)
	return makeResult(raw, out, ConfidenceFull)
}

var diffFileRe = regexp.MustCompile(`^diff --git a/(\S+) b/\S+`)

func filterDiff(raw string) Result {
	type fileStat struct {
		path           string
		added, removed int
	}
	var (
		files   []fileStat
		current *fileStat
	)
	for _, line := range strings.Split(raw, "\n") {
		if m := diffFileRe.FindStringSubmatch(line); m != nil {
			files = append(files, fileStat{path: m[1]})
			current = &files[len(files)-1]
			continue
		}
		if current == nil {
			continue
		}
		switch {
		case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
			current.added++
		case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
			current.removed++
		}
	}
	if len(files) == 0 {
		return makeResult(raw, raw, ConfidenceFallback)
	}

	var out strings.Builder
	totalAdded, totalRemoved := 0, 0
	for _, f := range files {
		fmt.Fprintf(&out, "%s | +%d -%d\n", f.path, f.added, f.removed)
		totalAdded += f.added
		totalRemoved += f.removed
	}
	fmt.Fprintf(&out, "%d files changed, +%d -%d", len(files), totalAdded, totalRemoved)
	return makeResult(raw, out.String(), ConfidenceFull)
}

func filterLog(raw string, maxEntries int) Result {
	lines := strings.Split(raw, "\n")
	var entries []string
	count := 0
	for _, line := range lines {
		if strings.HasPrefix(line, "commit ") {
			count++
			if count > maxEntries {
				break
			}
		}
		if count > 0 && count <= maxEntries {
			entries = append(entries, line)
		}
	}
	if count == 0 {
		return makeResult(raw, raw, ConfidenceFallback)
	}
	out := strings.Join(entries, "\n")
	if count > maxEntries {
		out += fmt.Sprintf("\n... (more entries, showing first %d)", maxEntries)
		return makeResult(raw, out, ConfidencePartial)
	}
	return makeResult(raw, out, ConfidenceFull)
}

func filterPush(raw string) Result {
	var kept []string
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "To ") ||
			strings.Contains(trimmed, "->") ||
			strings.HasPrefix(trimmed, "Everything up-to-date") ||
			strings.HasPrefix(trimmed, "! [rejected]") {
			kept = append(kept, line)
		}
	}
	if len(kept) == 0 {
		return makeResult(raw, raw, ConfidenceFallback)
	}
	return makeResult(raw, strings.Join(kept, "\n"), ConfidenceFull)
}

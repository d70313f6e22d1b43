package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// maxUniquePatterns bounds the dedup map so hostile output cannot grow
// it without limit.
const maxUniquePatterns = 10_000

var (
	tsRe = regexp.MustCompile(
		`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:[.,]\d+)?(?:Z|[+-]\d{2}:?\d{2})?` +
			`|\w{3}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2}`)
	uuidRe = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	ipRe   = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	numRe  = regexp.MustCompile(`\b\d{2,}\b`)
)

// LogDedupFilter normalizes and deduplicates log-style output from
// journalctl, tail -f, docker logs, and plain log files. Each line is
// normalized (timestamps to <TS>, UUIDs to <UUID>, IPs to <IP>,
// ports/PIDs to <N>), duplicates collapse to one line with an (xN)
// suffix.
type LogDedupFilter struct{}

func NewLogDedupFilter() *LogDedupFilter { return &LogDedupFilter{} }

func (f *LogDedupFilter) Name() string { return "log_dedup" }

func (f *LogDedupFilter) Match(command string) bool {
	c := strings.ToLower(strings.TrimSpace(command))
	switch {
	case strings.HasPrefix(c, "journalctl"),
		strings.HasPrefix(c, "docker logs"),
		strings.HasPrefix(c, "kubectl logs"),
		strings.HasPrefix(c, "tail ") && strings.Contains(c, "-f"):
		return true
	case (strings.HasPrefix(c, "tail ") || strings.HasPrefix(c, "cat ")) &&
		strings.Contains(c, ".log"):
		return true
	}
	return false
}

func normalizeLine(line string) string {
	line = tsRe.ReplaceAllString(line, "<TS>")
	line = uuidRe.ReplaceAllString(line, "<UUID>")
	line = ipRe.ReplaceAllString(line, "<IP>")
	line = numRe.ReplaceAllString(line, "<N>")
	return line
}

func (f *LogDedupFilter) Filter(_ string, raw string, _ int) Result {
	counts := make(map[string]int)
	var order []string
	overflow := false

	for _, line := range strings.Split(raw, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		norm := normalizeLine(line)
		if _, seen := counts[norm]; !seen {
			if len(counts) >= maxUniquePatterns {
				overflow = true
				continue
			}
			order = append(order, norm)
		}
		counts[norm]++
	}

	if len(order) == 0 {
		return makeResult(raw, raw, ConfidenceFallback)
	}

	var out strings.Builder
	for _, norm := range order {
		if n := counts[norm]; n > 1 {
			fmt.Fprintf(&out, "%s (x%d)\n", norm, n)
		} else {
			out.WriteString(norm)
			out.WriteByte('\n')
		}
	}
	if overflow {
		out.WriteString("... (unique pattern cap reached, further lines dropped)\n")
	}

	confidence := ConfidenceFull
	if overflow {
		confidence = ConfidencePartial
	}
	return makeResult(raw, strings.TrimRight(out.String(), "\n"), confidence)
}

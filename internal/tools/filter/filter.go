// Package filter compresses raw tool output before it re-enters the
// context window, preserving security-relevant lines regardless of how
// aggressive the compression was.
package filter

// Confidence classifies how lossy a filter result is.
type Confidence string

const (
	ConfidenceFull     Confidence = "full"
	ConfidencePartial  Confidence = "partial"
	ConfidenceFallback Confidence = "fallback"
)

// Result is one filtered output.
type Result struct {
	Output      string
	Confidence  Confidence
	RawTokens   int
	SavedTokens int
}

// Filter compresses the output of commands it matches.
type Filter interface {
	Name() string
	Match(command string) bool
	Filter(command, rawOutput string, exitCode int) Result
}

// estimateTokens mirrors the runtime-wide bytes/4 estimator so filter
// savings are comparable to budget numbers.
func estimateTokens(text string) int { return len(text) / 4 }

func makeResult(raw, output string, confidence Confidence) Result {
	rawTokens := estimateTokens(raw)
	outTokens := estimateTokens(output)
	saved := rawTokens - outTokens
	if saved < 0 {
		saved = 0
	}
	return Result{
		Output:      output,
		Confidence:  confidence,
		RawTokens:   rawTokens,
		SavedTokens: saved,
	}
}

// Pipeline dispatches to the first matching filter; unmatched commands
// pass through raw. Security-relevant lines from the raw output are
// always re-appended to the filtered result.
type Pipeline struct {
	filters  []Filter
	security *securityPreserver
}

// NewPipeline builds the pipeline with the built-in filters plus
// user-configured extra security patterns.
func NewPipeline(extraSecurityPatterns []string) *Pipeline {
	return &Pipeline{
		filters: []Filter{
			NewCargoBuildFilter(),
			NewCargoTestFilter(),
			NewGitFilter(),
			NewLogDedupFilter(),
		},
		security: newSecurityPreserver(extraSecurityPatterns),
	}
}

// Apply filters rawOutput for command. The returned result always
// contains any security warnings found in the raw output.
func (p *Pipeline) Apply(command, rawOutput string, exitCode int) Result {
	var res Result
	matched := false
	for _, f := range p.filters {
		if f.Match(command) {
			res = f.Filter(command, rawOutput, exitCode)
			matched = true
			break
		}
	}
	if !matched {
		res = makeResult(rawOutput, rawOutput, ConfidenceFallback)
	}

	if warnings := p.security.extract(rawOutput); warnings != "" {
		res.Output += "\n\n## Security Warnings\n" + warnings
		res.SavedTokens = res.RawTokens - estimateTokens(res.Output)
		if res.SavedTokens < 0 {
			res.SavedTokens = 0
		}
	}
	return res
}

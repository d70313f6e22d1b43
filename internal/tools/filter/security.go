package filter

import "strings"

// builtinSecurityPatterns are substrings that mark a line as
// security-relevant. Matching is case-insensitive.
var builtinSecurityPatterns = []string{
	"panic",
	"rustsec",
	"authentication failed",
	"permission denied",
	"401",
	"403",
	"sql injection",
	"weak cipher",
	"insecure",
	"vulnerability",
	"cve-",
	"segfault",
	"stack overflow",
	"unauthorized",
	"certificate verify failed",
}

// securityPreserver extracts lines matching the built-in pattern list
// plus user-configured extras.
type securityPreserver struct {
	patterns []string
}

func newSecurityPreserver(extra []string) *securityPreserver {
	patterns := make([]string, 0, len(builtinSecurityPatterns)+len(extra))
	patterns = append(patterns, builtinSecurityPatterns...)
	for _, p := range extra {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			patterns = append(patterns, p)
		}
	}
	return &securityPreserver{patterns: patterns}
}

// extract returns the security-relevant lines of raw joined by
// newlines, or "" when none match.
func (s *securityPreserver) extract(raw string) string {
	var kept []string
	for _, line := range strings.Split(raw, "\n") {
		lower := strings.ToLower(line)
		for _, p := range s.patterns {
			if strings.Contains(lower, p) {
				kept = append(kept, line)
				break
			}
		}
	}
	return strings.Join(kept, "\n")
}

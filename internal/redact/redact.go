// Package redact scrubs secrets and filesystem paths from text before
// it reaches a transport or a log line.
package redact

import (
	"regexp"
	"strings"
	"sync"
)

// secretPrefixes are the token prefixes treated as secrets. The raw
// forms are used for the fast substring check; the regexp escapes the
// dotted entries.
var secretPrefixes = []string{
	"sk-",
	"sk_live_",
	"sk_test_",
	"AKIA",
	"ghp_",
	"gho_",
	"-----BEGIN",
	"xoxb-",
	"xoxp-",
	"AIza",
	"ya29.",
	"glpat-",
	"hf_",
	"npm_",
	"dckr_pat_",
}

var pathPrefixes = []string{"/home/", "/Users/", "/root/", "/tmp/", "/var/"}

var (
	secretOnce sync.Once
	secretRe   *regexp.Regexp

	pathOnce sync.Once
	pathRe   *regexp.Regexp
)

func secretRegexp() *regexp.Regexp {
	secretOnce.Do(func() {
		escaped := make([]string, len(secretPrefixes))
		for i, p := range secretPrefixes {
			escaped[i] = regexp.QuoteMeta(p)
		}
		secretRe = regexp.MustCompile(`(?:` + strings.Join(escaped, "|") + `)[^\s"'` + "`" + `,;{}\[\]]*`)
	})
	return secretRe
}

func pathRegexp() *regexp.Regexp {
	pathOnce.Do(func() {
		pathRe = regexp.MustCompile(`(?:/home/|/Users/|/root/|/tmp/|/var/)[^\s"'` + "`" + `,;{}\[\]]*`)
	})
	return pathRe
}

// RedactSecrets replaces tokens with known secret prefixes by
// [REDACTED]. Text without any known prefix is returned unchanged
// without allocation. The function is idempotent: the replacement
// marker contains no secret prefix.
func RedactSecrets(text string) string {
	found := false
	for _, p := range secretPrefixes {
		if strings.Contains(text, p) {
			found = true
			break
		}
	}
	if !found {
		return text
	}
	return secretRegexp().ReplaceAllString(text, "[REDACTED]")
}

// SanitizePaths replaces absolute filesystem paths under well-known
// roots with [PATH].
func SanitizePaths(text string) string {
	found := false
	for _, p := range pathPrefixes {
		if strings.Contains(text, p) {
			found = true
			break
		}
	}
	if !found {
		return text
	}
	return pathRegexp().ReplaceAllString(text, "[PATH]")
}

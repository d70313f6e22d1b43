// Package mcp manages dynamic external tool servers speaking the model
// context protocol, over stdio or streamable HTTP transports.
package mcp

import (
	"fmt"
	"strings"
)

// defaultAllowedCommands are the bare command names a stdio server may
// launch without extra configuration.
var defaultAllowedCommands = []string{
	"npx", "uvx", "node", "python3", "python", "docker", "deno", "bun",
}

// blockedEnvVars are loader/interpreter injection vectors that must
// never reach a spawned server.
var blockedEnvVars = map[string]bool{
	"LD_PRELOAD":                 true,
	"LD_LIBRARY_PATH":            true,
	"LD_AUDIT":                   true,
	"LD_PROFILE":                 true,
	"DYLD_INSERT_LIBRARIES":      true,
	"DYLD_LIBRARY_PATH":          true,
	"DYLD_FRAMEWORK_PATH":        true,
	"DYLD_FALLBACK_LIBRARY_PATH": true,
	"BASH_ENV":                   true,
	"ENV":                        true,
	"CDPATH":                     true,
	"GLOBIGNORE":                 true,
	"PYTHONPATH":                 true,
	"PYTHONSTARTUP":              true,
	"RUBYLIB":                    true,
	"RUBYOPT":                    true,
	"NODE_OPTIONS":               true,
	"NODE_PATH":                  true,
	"PERL5LIB":                   true,
	"PERL5OPT":                   true,
	"JAVA_TOOL_OPTIONS":          true,
}

// ValidateCommand checks that command is a bare name on the allowlist.
// Path separators are rejected outright to prevent symlink bypasses.
func ValidateCommand(command string, extraAllowed []string) error {
	if strings.ContainsAny(command, `/\`) {
		return fmt.Errorf("mcp: command %q not allowed: path separators rejected", command)
	}
	for _, allowed := range defaultAllowedCommands {
		if command == allowed {
			return nil
		}
	}
	for _, allowed := range extraAllowed {
		if command == allowed {
			return nil
		}
	}
	return fmt.Errorf("mcp: command %q not on allowlist", command)
}

// ValidateEnv checks that no blocked env var (or BASH_FUNC_* key) is
// present.
func ValidateEnv(env map[string]string) error {
	for key := range env {
		if blockedEnvVars[key] || strings.HasPrefix(key, "BASH_FUNC_") {
			return fmt.Errorf("mcp: env var %q is blocked", key)
		}
	}
	return nil
}

package agent

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

const basePrompt = `You are Zeph, an AI coding assistant running in the user's terminal.

## Tool Use
The ONLY way to execute commands is by writing bash in a fenced code block with the ` + "`bash`" + ` language tag. The block runs automatically and the output is returned to you.

Example:
` + "```bash" + `
ls -la
` + "```" + `

Do NOT invent other formats (tool_code, tool_call, <execute>, etc.). Only ` + "```bash" + ` blocks are executed; anything else is treated as plain text.

## Skills
Skills are instructions that may appear below inside XML tags. Read them and follow the instructions; use ` + "```bash" + ` blocks to act.

If you see a list of other skill names and descriptions, those are for reference only. You cannot invoke or load them. Ignore them unless the user explicitly asks about a skill by name.

## Guidelines
- Be concise. Avoid unnecessary preamble.
- Before editing files, read them first to understand current state.
- When exploring a codebase, start with directory listing, then targeted grep/find.
- For destructive commands (rm, git push --force), warn the user first.
- Do not hallucinate file contents or command outputs.
- If a command fails, analyze the error before retrying.

## Security
- Never include secrets, API keys, or tokens in command output.
- Do not force-push to main/master branches.
- Do not execute commands that could cause data loss without confirmation.`

// EnvironmentContext is the optional environment block of the system
// prompt.
type EnvironmentContext struct {
	WorkingDir string
	GitBranch  string
	OS         string
	ModelName  string
}

// GatherEnvironment collects the current process environment.
func GatherEnvironment(modelName string) EnvironmentContext {
	wd, err := os.Getwd()
	if err != nil {
		wd = "unknown"
	}

	branch := ""
	if out, err := exec.Command("git", "branch", "--show-current").Output(); err == nil {
		branch = strings.TrimSpace(string(out))
	}

	return EnvironmentContext{
		WorkingDir: wd,
		GitBranch:  branch,
		OS:         runtime.GOOS,
		ModelName:  modelName,
	}
}

// Format renders the environment block.
func (e EnvironmentContext) Format() string {
	var out strings.Builder
	out.WriteString("<environment>\n")
	fmt.Fprintf(&out, "  working_directory: %s\n", e.WorkingDir)
	fmt.Fprintf(&out, "  os: %s\n", e.OS)
	fmt.Fprintf(&out, "  model: %s\n", e.ModelName)
	if e.GitBranch != "" {
		fmt.Fprintf(&out, "  git_branch: %s\n", e.GitBranch)
	}
	out.WriteString("</environment>")
	return out.String()
}

// BuildSystemPrompt concatenates the base instructions with the
// optional environment block, tool catalog, and skills prompt.
func BuildSystemPrompt(skillsPrompt string, env *EnvironmentContext, toolCatalog string) string {
	prompt := basePrompt
	if env != nil {
		prompt += "\n\n" + env.Format()
	}
	if toolCatalog != "" {
		prompt += "\n\n" + toolCatalog
	}
	if skillsPrompt != "" {
		prompt += "\n\n" + skillsPrompt
	}
	return prompt
}

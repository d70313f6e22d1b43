package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildSystemPromptWithoutSkills(t *testing.T) {
	prompt := BuildSystemPrompt("", nil, "")
	assert.NotEmpty(t, prompt)
	assert.Contains(t, prompt, "You are Zeph")
	assert.Contains(t, prompt, "## Tool Use")
	assert.Contains(t, prompt, "## Security")
	assert.NotContains(t, prompt, "<available_skills>")
	assert.NotContains(t, prompt, "<environment>")
}

func TestBuildSystemPromptWithEnvAndSkills(t *testing.T) {
	env := &EnvironmentContext{
		WorkingDir: "/tmp/project",
		GitBranch:  "main",
		OS:         "linux",
		ModelName:  "test-model",
	}
	prompt := BuildSystemPrompt("<available_skills>x</available_skills>", env, "<tools>y</tools>")
	assert.Contains(t, prompt, "working_directory: /tmp/project")
	assert.Contains(t, prompt, "git_branch: main")
	assert.Contains(t, prompt, "<tools>y</tools>")
	assert.Contains(t, prompt, "<available_skills>")
}

func TestEnvironmentFormatOmitsEmptyBranch(t *testing.T) {
	env := EnvironmentContext{WorkingDir: "/tmp", OS: "linux", ModelName: "m"}
	formatted := env.Format()
	assert.NotContains(t, formatted, "git_branch")
	assert.Contains(t, formatted, "os: linux")
}

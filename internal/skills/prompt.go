package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var osNames = []string{"linux", "macos", "windows"}

// shouldIncludeReference reports whether a references/ file applies to
// the runtime OS: files named after another OS are skipped, everything
// else is generic.
func shouldIncludeReference(filename, osFamily string) bool {
	stem := strings.TrimSuffix(filename, ".md")
	for _, name := range osNames {
		if stem == name {
			return stem == osFamily
		}
	}
	return true
}

// FormatSkillsPrompt renders the selected skills as the
// <available_skills> system prompt block, inlining OS-matching
// reference files. An empty selection yields an empty string.
func FormatSkillsPrompt(selected []*Skill, osFamily string) string {
	if len(selected) == 0 {
		return ""
	}

	var out strings.Builder
	out.WriteString("<available_skills>\n")
	for _, skill := range selected {
		fmt.Fprintf(&out, "  <skill name=%q>\n    <description>%s</description>\n    <instructions>\n%s",
			skill.Name, skill.Description, skill.Body)

		refDir := filepath.Join(skill.Dir, "references")
		entries, err := os.ReadDir(refDir)
		if err == nil {
			for _, entry := range entries {
				if entry.IsDir() || !shouldIncludeReference(entry.Name(), osFamily) {
					continue
				}
				content, err := os.ReadFile(filepath.Join(refDir, entry.Name()))
				if err != nil {
					continue
				}
				fmt.Fprintf(&out, "\n<reference name=%q>\n%s\n</reference>", entry.Name(), content)
			}
		}

		out.WriteString("\n    </instructions>\n  </skill>\n")
	}
	out.WriteString("</available_skills>")
	return out.String()
}

package tools

import (
	"fmt"
	"strings"
)

// FormatToolCatalog renders the tool definitions as a system prompt
// block, omitting tools the policy fully denies. Returns "" when no
// tool survives filtering.
func FormatToolCatalog(executor Executor, policy *PermissionPolicy) string {
	defs := executor.ToolDefinitions()
	var out strings.Builder
	count := 0
	for _, def := range defs {
		if policy.FullyDenied(def.ID) {
			continue
		}
		if count == 0 {
			out.WriteString("<tools>\n")
		}
		fmt.Fprintf(&out, "  <tool id=%q>%s", def.ID, def.Description)
		if len(def.Params) > 0 {
			params := make([]string, 0, len(def.Params))
			for _, p := range def.Params {
				marker := ""
				if p.Required {
					marker = "*"
				}
				params = append(params, p.Name+marker)
			}
			fmt.Fprintf(&out, " (params: %s)", strings.Join(params, ", "))
		}
		out.WriteString("</tool>\n")
		count++
	}
	if count == 0 {
		return ""
	}
	out.WriteString("</tools>")
	return out.String()
}

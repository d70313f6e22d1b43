package tools

import "strings"

// FencedBlock is one fenced code block extracted from assistant text.
type FencedBlock struct {
	Tag  string
	Body string
}

// fencedTagTools maps recognized fence language tags to tool ids.
// read/write/edit/glob/grep are synthetic tags for the file tools.
var fencedTagTools = map[string]string{
	"bash":  ToolBash,
	"mcp":   ToolMCP,
	"read":  ToolFileRead,
	"write": ToolFileWrite,
	"edit":  ToolFileEdit,
	"glob":  ToolGlob,
	"grep":  ToolGrep,
}

// ExtractFencedBlocks returns the fenced code blocks in text whose
// language tag is recognized, in order of appearance.
func ExtractFencedBlocks(text string) []FencedBlock {
	var blocks []FencedBlock
	rest := text
	for {
		start := strings.Index(rest, "```")
		if start < 0 {
			return blocks
		}
		rest = rest[start+3:]

		nl := strings.IndexByte(rest, '\n')
		if nl < 0 {
			return blocks
		}
		tag := strings.TrimSpace(rest[:nl])
		rest = rest[nl+1:]

		end := strings.Index(rest, "```")
		if end < 0 {
			return blocks
		}
		body := rest[:end]
		rest = rest[end+3:]

		if _, ok := fencedTagTools[tag]; ok {
			blocks = append(blocks, FencedBlock{Tag: tag, Body: strings.TrimRight(body, "\n")})
		}
	}
}

// FencedToolID maps a fence tag to its tool id, "" when unrecognized.
func FencedToolID(tag string) string {
	return fencedTagTools[tag]
}

// Package models defines the shared data types that flow between the
// engine, the memory hierarchy, the tool layer, and the transports.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType discriminates typed message parts.
type PartType string

const (
	PartCodeContext PartType = "code_context"
	PartToolResult  PartType = "tool_result"
)

// Part is a typed attachment carried alongside message content.
type Part struct {
	Type PartType `json:"type"`

	// Path and Snippet are set for code-context parts.
	Path    string `json:"path,omitempty"`
	Snippet string `json:"snippet,omitempty"`

	// ToolName and Output are set for tool-result parts.
	ToolName string `json:"tool_name,omitempty"`
	Output   string `json:"output,omitempty"`
	IsError  bool   `json:"is_error,omitempty"`
}

// Message is one entry in a conversation log. Messages are immutable
// once persisted; ids are strictly increasing within a conversation.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Parts          []Part    `json:"parts,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Conversation owns an ordered message log. Destroyed only by explicit
// admin action.
type Conversation struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary covers a contiguous message id range of one conversation.
// Ranges are non-overlapping and cover a prefix of the log.
type Summary struct {
	ID             int64  `json:"id"`
	ConversationID int64  `json:"conversation_id"`
	Content        string `json:"content"`
	FirstMessageID int64  `json:"first_message_id"`
	LastMessageID  int64  `json:"last_message_id"`
	Tokens         int    `json:"tokens"`
}

// ToolCall is a structured tool invocation, either provider-emitted or
// parsed from a fenced code block.
type ToolCall struct {
	ID     string                     `json:"id,omitempty"`
	ToolID string                     `json:"tool_id"`
	Params map[string]json.RawMessage `json:"params,omitempty"`
}

// StringParam returns the named parameter as a string, or "" when absent
// or not a JSON string.
func (c *ToolCall) StringParam(name string) string {
	raw, ok := c.Params[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// ToolParam describes one parameter of a tool definition.
type ToolParam struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// ToolDef describes a tool exposed to the model.
type ToolDef struct {
	ID          string      `json:"id"`
	Description string      `json:"description"`
	Params      []ToolParam `json:"params,omitempty"`
}

// TrustLevel orders skill trust by severity. Higher values are more
// severe; the effective trust of an active set is the max-severity
// member.
type TrustLevel int

const (
	TrustTrusted TrustLevel = iota
	TrustVerified
	TrustQuarantined
	TrustBlocked
)

// String returns the canonical lowercase name.
func (t TrustLevel) String() string {
	switch t {
	case TrustTrusted:
		return "trusted"
	case TrustVerified:
		return "verified"
	case TrustQuarantined:
		return "quarantined"
	case TrustBlocked:
		return "blocked"
	default:
		return fmt.Sprintf("trust(%d)", int(t))
	}
}

// ParseTrustLevel parses a canonical trust level name.
func ParseTrustLevel(s string) (TrustLevel, error) {
	switch s {
	case "trusted":
		return TrustTrusted, nil
	case "verified":
		return TrustVerified, nil
	case "quarantined":
		return TrustQuarantined, nil
	case "blocked":
		return TrustBlocked, nil
	}
	return TrustTrusted, fmt.Errorf("unknown trust level %q", s)
}

// MaxSeverity returns the more severe of two trust levels.
func MaxSeverity(a, b TrustLevel) TrustLevel {
	if b > a {
		return b
	}
	return a
}

// MarshalJSON encodes the trust level as its canonical name.
func (t TrustLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a canonical trust level name.
func (t *TrustLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTrustLevel(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// SourceKind identifies where a skill was installed from.
type SourceKind string

const (
	SourceLocal SourceKind = "local"
	SourceHub   SourceKind = "hub"
	SourceFile  SourceKind = "file"
)

// SkillSource records the provenance of an installed skill.
type SkillSource struct {
	Kind SourceKind `json:"kind"`
	URL  string     `json:"url,omitempty"`
	Path string     `json:"path,omitempty"`
}

// EmbeddingRecord links a message to an external vector, one per
// (message id, embedding model) pair.
type EmbeddingRecord struct {
	MessageID int64  `json:"message_id"`
	Model     string `json:"model"`
	VectorID  string `json:"vector_id"`
}

package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrustLevelOrdering(t *testing.T) {
	assert.True(t, TrustTrusted < TrustVerified)
	assert.True(t, TrustVerified < TrustQuarantined)
	assert.True(t, TrustQuarantined < TrustBlocked)
	assert.Equal(t, TrustBlocked, MaxSeverity(TrustVerified, TrustBlocked))
	assert.Equal(t, TrustVerified, MaxSeverity(TrustVerified, TrustTrusted))
}

func TestTrustLevelJSONRoundTrip(t *testing.T) {
	for _, level := range []TrustLevel{TrustTrusted, TrustVerified, TrustQuarantined, TrustBlocked} {
		data, err := json.Marshal(level)
		require.NoError(t, err)
		var decoded TrustLevel
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, level, decoded)
	}

	var bad TrustLevel
	assert.Error(t, json.Unmarshal([]byte(`"sketchy"`), &bad))
}

func TestMessageRoundTrip(t *testing.T) {
	msg := Message{
		ID:             7,
		ConversationID: 3,
		Role:           RoleAssistant,
		Content:        "done",
		Parts: []Part{
			{Type: PartToolResult, ToolName: "bash", Output: "ok"},
			{Type: PartCodeContext, Path: "main.go", Snippet: "func main() {}"},
		},
		CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	var decoded Message
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, msg, decoded)
}

func TestToolCallStringParam(t *testing.T) {
	call := ToolCall{
		ToolID: "bash",
		Params: map[string]json.RawMessage{
			"command": json.RawMessage(`"ls -la"`),
			"count":   json.RawMessage(`3`),
		},
	}
	assert.Equal(t, "ls -la", call.StringParam("command"))
	assert.Empty(t, call.StringParam("count"), "non-string params read as empty")
	assert.Empty(t, call.StringParam("missing"))
}

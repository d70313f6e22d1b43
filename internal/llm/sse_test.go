package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, ch <-chan StreamChunk) (string, error) {
	t.Helper()
	var text string
	for chunk := range ch {
		if chunk.Err != nil {
			return text, chunk.Err
		}
		text += chunk.Text
	}
	return text, nil
}

func TestDecodeSSEOpenAI(t *testing.T) {
	raw := strings.Join([]string{
		`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
		``,
		`data: {"choices":[{"delta":{"content":"lo"}}]}`,
		``,
		`data: [DONE]`,
		`data: {"choices":[{"delta":{"content":"ignored"}}]}`,
	}, "\n")

	text, err := collect(t, DecodeSSE(strings.NewReader(raw), SSEOpenAI))
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
}

func TestDecodeSSEClaude(t *testing.T) {
	raw := strings.Join([]string{
		`data: {"type":"message_start"}`,
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Hi "}}`,
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"there"}}`,
		`data: {"type":"message_stop"}`,
		`data: [DONE]`,
	}, "\n")

	text, err := collect(t, DecodeSSE(strings.NewReader(raw), SSEClaude))
	require.NoError(t, err)
	assert.Equal(t, "Hi there", text)
}

func TestDecodeSSEParseErrorAborts(t *testing.T) {
	raw := "data: {not json}\ndata: {\"choices\":[{\"delta\":{\"content\":\"after\"}}]}\n"

	text, err := collect(t, DecodeSSE(strings.NewReader(raw), SSEOpenAI))
	require.Error(t, err)
	assert.Empty(t, text, "terminal error anywhere means stream aborted")
}

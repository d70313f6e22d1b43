package llm

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// SSEFormat selects the event schema a raw SSE stream uses.
type SSEFormat int

const (
	// SSEOpenAI decodes choices[].delta.content events.
	SSEOpenAI SSEFormat = iota
	// SSEClaude decodes content_block_delta events.
	SSEClaude
)

type openAIStreamEvent struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

type claudeStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

// DecodeSSE reads a raw server-sent-event stream and emits text deltas
// as StreamChunks. A `[DONE]` data marker or EOF ends the stream; a
// read or parse error is delivered as the terminal chunk. Used for
// OpenAI-compatible endpoints reached without an SDK.
func DecodeSSE(r io.Reader, format SSEFormat) <-chan StreamChunk {
	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			data, ok := strings.CutPrefix(line, "data:")
			if !ok {
				continue
			}
			data = strings.TrimSpace(data)
			if data == "" {
				continue
			}
			if data == "[DONE]" {
				return
			}

			text, err := decodeSSEData(data, format)
			if err != nil {
				out <- StreamChunk{Err: &ProviderError{Provider: "sse", Kind: KindParse, Err: err}}
				return
			}
			if text != "" {
				out <- StreamChunk{Text: text}
			}
		}
		if err := scanner.Err(); err != nil {
			out <- StreamChunk{Err: &ProviderError{Provider: "sse", Kind: KindHTTP, Err: err}}
		}
	}()
	return out
}

func decodeSSEData(data string, format SSEFormat) (string, error) {
	switch format {
	case SSEClaude:
		var ev claudeStreamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return "", err
		}
		if ev.Type != "content_block_delta" {
			return "", nil
		}
		return ev.Delta.Text, nil
	default:
		var ev openAIStreamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return "", err
		}
		if len(ev.Choices) == 0 {
			return "", nil
		}
		return ev.Choices[0].Delta.Content, nil
	}
}

// Package llm defines the model provider abstraction: chat, streaming,
// embeddings, and structured tool use, plus the ordered fallback
// router that the engine talks to.
package llm

import (
	"context"

	"github.com/osamaelmahalawi/zeph/pkg/models"
)

// ChatMessage is one turn of provider input.
type ChatMessage struct {
	Role    models.Role `json:"role"`
	Content string      `json:"content"`
}

// StreamChunk is one element of a streamed completion. A non-nil Err
// terminates the stream.
type StreamChunk struct {
	Text string
	Err  error
}

// CacheUsage reports prompt-cache statistics from the last call, for
// providers that expose them.
type CacheUsage struct {
	CacheReadTokens  int
	CacheWriteTokens int
	InputTokens      int
	OutputTokens     int
}

// ToolUseResponse is the result of a structured tool-use call: the
// assistant text plus any tool invocations the model emitted.
type ToolUseResponse struct {
	Content   string
	ToolCalls []models.ToolCall
}

// Provider is a chat model backend. Implementations must be safe for
// concurrent use.
type Provider interface {
	// Chat returns the complete assistant response for the prompt.
	Chat(ctx context.Context, system string, messages []ChatMessage) (string, error)

	// ChatStream returns a lazy sequence of text deltas. A chunk with
	// a non-nil Err means the stream aborted; the channel closes after
	// the final chunk.
	ChatStream(ctx context.Context, system string, messages []ChatMessage) (<-chan StreamChunk, error)

	SupportsStreaming() bool

	// Embed produces an embedding vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)

	SupportsEmbeddings() bool

	// ChatWithTools runs one completion with structured tool use.
	ChatWithTools(ctx context.Context, system string, messages []ChatMessage, tools []models.ToolDef) (*ToolUseResponse, error)

	SupportsToolUse() bool

	// LastCacheUsage reports usage from the most recent call, or nil.
	LastCacheUsage() *CacheUsage

	// ContextWindow is the provider's token window, 0 when unknown.
	ContextWindow() int

	Name() string
}

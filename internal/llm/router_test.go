package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osamaelmahalawi/zeph/pkg/models"
)

// mockProvider is a configurable in-memory Provider.
type mockProvider struct {
	name       string
	reply      string
	err        error
	embeddings bool
	toolUse    bool
	calls      int
}

func (m *mockProvider) Chat(context.Context, string, []ChatMessage) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

func (m *mockProvider) ChatStream(ctx context.Context, system string, msgs []ChatMessage) (<-chan StreamChunk, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	ch := make(chan StreamChunk, 1)
	ch <- StreamChunk{Text: m.reply}
	close(ch)
	return ch, nil
}

func (m *mockProvider) Embed(context.Context, string) ([]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return []float32{0.1, 0.2}, nil
}

func (m *mockProvider) ChatWithTools(context.Context, string, []ChatMessage, []models.ToolDef) (*ToolUseResponse, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &ToolUseResponse{Content: m.reply}, nil
}

func (m *mockProvider) SupportsStreaming() bool { return true }
func (m *mockProvider) SupportsEmbeddings() bool { return m.embeddings }
func (m *mockProvider) SupportsToolUse() bool { return m.toolUse }
func (m *mockProvider) LastCacheUsage() *CacheUsage { return nil }
func (m *mockProvider) ContextWindow() int { return 1000 }
func (m *mockProvider) Name() string { return m.name }

func TestRouterFallsBack(t *testing.T) {
	p1 := &mockProvider{name: "p1", err: errors.New("unreachable")}
	p2 := &mockProvider{name: "p2", reply: "ok"}

	var events []StatusEvent
	router := NewRouter([]Provider{p1, p2}, func(e StatusEvent) { events = append(events, e) })

	out, err := router.Chat(context.Background(), "", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	// Exactly one status event per skipped provider.
	require.Len(t, events, 1)
	assert.Equal(t, "p1", events[0].Provider)
}

func TestRouterExhaustion(t *testing.T) {
	p1 := &mockProvider{name: "p1", err: errors.New("down")}
	p2 := &mockProvider{name: "p2", err: errors.New("down too")}

	var events []StatusEvent
	router := NewRouter([]Provider{p1, p2}, func(e StatusEvent) { events = append(events, e) })

	_, err := router.Chat(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrNoProviders)
	assert.Len(t, events, 2)
}

func TestRouterSkipsNonEmbeddingProviders(t *testing.T) {
	p1 := &mockProvider{name: "chat-only"}
	p2 := &mockProvider{name: "embedder", embeddings: true}

	router := NewRouter([]Provider{p1, p2}, nil)
	vec, err := router.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.NotEmpty(t, vec)
	assert.Zero(t, p1.calls, "non-embedding provider must be skipped, not tried")
	assert.Equal(t, 1, p2.calls)
}

func TestRouterSkipsNonToolUseProviders(t *testing.T) {
	p1 := &mockProvider{name: "plain"}
	p2 := &mockProvider{name: "tools", toolUse: true, reply: "done"}

	router := NewRouter([]Provider{p1, p2}, nil)
	resp, err := router.ChatWithTools(context.Background(), "", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Content)
	assert.Zero(t, p1.calls)
}

func TestRouterStream(t *testing.T) {
	p1 := &mockProvider{name: "p1", err: errors.New("boom")}
	p2 := &mockProvider{name: "p2", reply: "streamed"}

	router := NewRouter([]Provider{p1, p2}, nil)
	ch, err := router.ChatStream(context.Background(), "", nil)
	require.NoError(t, err)

	var text string
	for chunk := range ch {
		require.NoError(t, chunk.Err)
		text += chunk.Text
	}
	assert.Equal(t, "streamed", text)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindTimeout, Classify(errors.New("context deadline exceeded")))
	assert.Equal(t, KindRateLimited, Classify(errors.New("429 too many requests")))
	assert.Equal(t, KindParse, Classify(errors.New("cannot unmarshal string")))
	assert.Equal(t, KindHTTP, Classify(errors.New("connection refused")))
}

package memory

import (
	"context"
	"fmt"
	"strconv"

	"github.com/osamaelmahalawi/zeph/internal/memory/vector"
	"github.com/osamaelmahalawi/zeph/pkg/models"
)

// Embedder produces an embedding vector for text. The provider router
// satisfies this through its embedding route.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Semantic provides vector recall over persisted messages: one query
// scoped to a conversation, one across all other conversations.
type Semantic struct {
	store    Store
	vectors  vector.Store
	embedder Embedder
	model    string
}

// NewSemantic wires recall over the given stores. model names the
// embedding model; embedding records are keyed by it.
func NewSemantic(store Store, vectors vector.Store, embedder Embedder, model string) *Semantic {
	return &Semantic{store: store, vectors: vectors, embedder: embedder, model: model}
}

// Index embeds and upserts one message. Idempotent per
// (message, model): an existing record is skipped.
func (s *Semantic) Index(ctx context.Context, msg models.Message) error {
	present, err := s.store.EmbeddingPresent(ctx, msg.ID, s.model)
	if err != nil {
		return err
	}
	if present {
		return nil
	}

	vec, err := s.embedder.Embed(ctx, msg.Content)
	if err != nil {
		return fmt.Errorf("embed message %d: %w", msg.ID, err)
	}

	vectorID := fmt.Sprintf("msg-%d-%s", msg.ID, s.model)
	payload := vector.Payload{
		"message_id":      msg.ID,
		"conversation_id": msg.ConversationID,
		"role":            string(msg.Role),
	}
	if err := s.vectors.Upsert(ctx, vector.CollectionMessages, vectorID, vec, payload); err != nil {
		return err
	}

	return s.store.UpsertEmbedding(ctx, models.EmbeddingRecord{
		MessageID: msg.ID,
		Model:     s.model,
		VectorID:  vectorID,
	})
}

// RecallConversation returns the top-K hits within conv scoring at or
// above threshold.
func (s *Semantic) RecallConversation(ctx context.Context, query string, conv int64, topK int, threshold float64) ([]RecallHit, error) {
	return s.recall(ctx, query, topK, threshold, &vector.Filter{
		Equal: map[string]any{"conversation_id": conv},
	})
}

// RecallCrossSession returns the top-K hits from every conversation
// except conv, using the stricter cross-session threshold.
func (s *Semantic) RecallCrossSession(ctx context.Context, query string, conv int64, topK int, threshold float64) ([]RecallHit, error) {
	return s.recall(ctx, query, topK, threshold, &vector.Filter{
		NotEqual: map[string]any{"conversation_id": conv},
	})
}

func (s *Semantic) recall(ctx context.Context, query string, topK int, threshold float64, filter *vector.Filter) ([]RecallHit, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed recall query: %w", err)
	}

	hits, err := s.vectors.Search(ctx, vector.CollectionMessages, vec, topK, filter)
	if err != nil {
		return nil, err
	}

	out := make([]RecallHit, 0, len(hits))
	for _, h := range hits {
		if h.Score < threshold {
			continue
		}
		out = append(out, RecallHit{
			MessageID:      payloadInt(h.Payload, "message_id"),
			ConversationID: payloadInt(h.Payload, "conversation_id"),
			Score:          h.Score,
		})
	}
	return out, nil
}

// payloadInt reads an integer payload field regardless of whether the
// backend returned it as int64 or string.
func payloadInt(p vector.Payload, key string) int64 {
	switch v := p[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

package codeindex

import (
	"context"
	"fmt"

	"github.com/osamaelmahalawi/zeph/internal/memory/vector"
)

// EmbedFunc produces an embedding for text.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// VectorRetriever serves packed chunks from the code-chunk collection.
// Indexing (walking, parsing, chunk upserts) is done out of process;
// this retriever only reads.
type VectorRetriever struct {
	store          vector.Store
	embed          EmbedFunc
	scoreThreshold float64
}

// NewVectorRetriever creates the retriever. Hits below scoreThreshold
// are dropped.
func NewVectorRetriever(store vector.Store, embed EmbedFunc, scoreThreshold float64) *VectorRetriever {
	return &VectorRetriever{store: store, embed: embed, scoreThreshold: scoreThreshold}
}

func (r *VectorRetriever) Retrieve(ctx context.Context, query string, maxChunks int) ([]Chunk, error) {
	if maxChunks <= 0 {
		return nil, nil
	}
	vec, err := r.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("codeindex: embed query: %w", err)
	}
	hits, err := r.store.Search(ctx, vector.CollectionCodeChunks, vec, maxChunks, nil)
	if err != nil {
		return nil, err
	}

	chunks := make([]Chunk, 0, len(hits))
	for _, hit := range hits {
		if hit.Score < r.scoreThreshold {
			continue
		}
		chunk := Chunk{Score: hit.Score}
		if path, ok := hit.Payload["path"].(string); ok {
			chunk.Path = path
		}
		if content, ok := hit.Payload["content"].(string); ok {
			chunk.Content = content
		}
		chunk.Start = payloadInt(hit.Payload, "start_line")
		chunk.End = payloadInt(hit.Payload, "end_line")
		if chunk.Content == "" {
			continue
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func payloadInt(p vector.Payload, key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

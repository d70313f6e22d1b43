// Package vector abstracts the external vector database behind named
// collections with cosine distance and flat scalar payloads.
package vector

import "context"

// Collection names used across the runtime.
const (
	CollectionMessages   = "zeph_messages"
	CollectionCodeChunks = "zeph_code_chunks"
	CollectionSkills     = "zeph_skills"
)

// Payload is a flat map of scalar fields attached to a point.
type Payload map[string]any

// Hit is one similarity search result.
type Hit struct {
	ID      string
	Score   float64
	Payload Payload
}

// Filter restricts a search to points whose payload matches Equal and
// does not match NotEqual. Values compare as scalars.
type Filter struct {
	Equal    map[string]any
	NotEqual map[string]any
}

// Store is a vector database client. Upserts are last-writer-wins per
// point id; reads and writes may run concurrently.
type Store interface {
	EnsureCollection(ctx context.Context, name string, dimension int) error
	Upsert(ctx context.Context, collection, id string, vec []float32, payload Payload) error
	Search(ctx context.Context, collection string, vec []float32, topK int, filter *Filter) ([]Hit, error)
	Delete(ctx context.Context, collection, id string) error
	Close() error
}

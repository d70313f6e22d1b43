package vector

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
)

// ChromemStore implements Store on an embedded in-process chromem
// database. Used when no Qdrant endpoint is configured and for small
// catalogs like skill descriptions.
type ChromemStore struct {
	db *chromem.DB

	mu          sync.Mutex
	collections map[string]*chromem.Collection
}

// NewChromemStore creates an empty in-memory store.
func NewChromemStore() *ChromemStore {
	return &ChromemStore{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
	}
}

// noEmbed rejects implicit embedding: callers always supply vectors.
func noEmbed(_ context.Context, _ string) ([]float32, error) {
	return nil, fmt.Errorf("vector: embedding must be supplied by the caller")
}

func (s *ChromemStore) collection(name string) (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		return c, nil
	}
	c, err := s.db.GetOrCreateCollection(name, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("create collection %s: %w", name, err)
	}
	s.collections[name] = c
	return c, nil
}

func (s *ChromemStore) EnsureCollection(_ context.Context, name string, _ int) error {
	_, err := s.collection(name)
	return err
}

func (s *ChromemStore) Upsert(ctx context.Context, collection, id string, vec []float32, payload Payload) error {
	c, err := s.collection(collection)
	if err != nil {
		return err
	}
	metadata := make(map[string]string, len(payload))
	for key, value := range payload {
		metadata[key] = fmt.Sprintf("%v", value)
	}
	doc := chromem.Document{
		ID:        id,
		Metadata:  metadata,
		Embedding: vec,
		Content:   " ", // chromem requires non-empty content
	}
	if err := c.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("upsert document %s: %w", id, err)
	}
	return nil
}

func (s *ChromemStore) Search(ctx context.Context, collection string, vec []float32, topK int, filter *Filter) ([]Hit, error) {
	c, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	if c.Count() == 0 {
		return nil, nil
	}

	where := map[string]string{}
	if filter != nil {
		for key, value := range filter.Equal {
			where[key] = fmt.Sprintf("%v", value)
		}
	}

	// Over-fetch when a NotEqual filter applies; chromem only supports
	// equality in where clauses.
	n := topK
	if filter != nil && len(filter.NotEqual) > 0 {
		n = topK * 4
	}
	if n > c.Count() {
		n = c.Count()
	}

	results, err := c.QueryEmbedding(ctx, vec, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		if filter != nil && excluded(r.Metadata, filter.NotEqual) {
			continue
		}
		payload := make(Payload, len(r.Metadata))
		for key, value := range r.Metadata {
			payload[key] = value
		}
		hits = append(hits, Hit{ID: r.ID, Score: float64(r.Similarity), Payload: payload})
		if len(hits) == topK {
			break
		}
	}
	return hits, nil
}

func excluded(metadata map[string]string, notEqual map[string]any) bool {
	for key, value := range notEqual {
		if metadata[key] == fmt.Sprintf("%v", value) {
			return true
		}
	}
	return false
}

func (s *ChromemStore) Delete(ctx context.Context, collection, id string) error {
	c, err := s.collection(collection)
	if err != nil {
		return err
	}
	if err := c.Delete(ctx, nil, nil, id); err != nil {
		// Deleting a missing id is not an error for callers.
		if strings.Contains(err.Error(), "not found") {
			return nil
		}
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return nil
}

func (s *ChromemStore) Close() error { return nil }

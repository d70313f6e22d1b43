package skills

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/osamaelmahalawi/zeph/internal/memory/vector"
)

// EmbedFunc produces an embedding for text.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// Matcher ranks skills against a query by semantic similarity.
type Matcher interface {
	// Sync rebuilds the matcher index from the given skills. Called
	// whenever the registry fingerprint changes.
	Sync(ctx context.Context, skills []*Skill) error

	// Match returns the names of the top-K skills for the query.
	Match(ctx context.Context, query string, topK int) ([]string, error)
}

// InMemoryMatcher holds one embedding per skill description in a plain
// slice. Suited to small catalogs.
type InMemoryMatcher struct {
	embed EmbedFunc

	mu      sync.RWMutex
	names   []string
	vectors [][]float32
}

// NewInMemoryMatcher creates an empty matcher.
func NewInMemoryMatcher(embed EmbedFunc) *InMemoryMatcher {
	return &InMemoryMatcher{embed: embed}
}

func (m *InMemoryMatcher) Sync(ctx context.Context, skills []*Skill) error {
	names := make([]string, 0, len(skills))
	vectors := make([][]float32, 0, len(skills))
	for _, s := range skills {
		vec, err := m.embed(ctx, s.Description)
		if err != nil {
			// A skill whose description cannot be embedded is simply
			// unmatched this cycle.
			slog.Warn("skill embedding failed", "skill", s.Name, "error", err)
			continue
		}
		names = append(names, s.Name)
		vectors = append(vectors, vec)
	}

	m.mu.Lock()
	m.names = names
	m.vectors = vectors
	m.mu.Unlock()
	return nil
}

func (m *InMemoryMatcher) Match(ctx context.Context, query string, topK int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.names) == 0 || topK <= 0 {
		return nil, nil
	}

	queryVec, err := m.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed skill query: %w", err)
	}

	type scored struct {
		name  string
		score float64
	}
	ranked := make([]scored, 0, len(m.names))
	for i, name := range m.names {
		ranked = append(ranked, scored{name: name, score: CosineSimilarity(queryVec, m.vectors[i])})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if topK > len(ranked) {
		topK = len(ranked)
	}
	out := make([]string, topK)
	for i := 0; i < topK; i++ {
		out[i] = ranked[i].name
	}
	return out, nil
}

// VectorMatcher keeps skill description embeddings in the external
// vector store, for large catalogs shared across instances.
type VectorMatcher struct {
	embed EmbedFunc
	store vector.Store

	mu     sync.Mutex
	synced map[string]bool // skill name -> present
}

// NewVectorMatcher creates a matcher over the zeph_skills collection.
func NewVectorMatcher(embed EmbedFunc, store vector.Store) *VectorMatcher {
	return &VectorMatcher{embed: embed, store: store, synced: make(map[string]bool)}
}

func (m *VectorMatcher) Sync(ctx context.Context, skills []*Skill) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := make(map[string]bool, len(skills))
	for _, s := range skills {
		current[s.Name] = true
		vec, err := m.embed(ctx, s.Description)
		if err != nil {
			slog.Warn("skill embedding failed", "skill", s.Name, "error", err)
			continue
		}
		payload := vector.Payload{"name": s.Name, "hash": s.Hash}
		if err := m.store.Upsert(ctx, vector.CollectionSkills, "skill-"+s.Name, vec, payload); err != nil {
			return err
		}
	}

	// Remove points for skills no longer in the registry.
	for name := range m.synced {
		if !current[name] {
			if err := m.store.Delete(ctx, vector.CollectionSkills, "skill-"+name); err != nil {
				slog.Warn("stale skill point not deleted", "skill", name, "error", err)
			}
		}
	}
	m.synced = current
	return nil
}

func (m *VectorMatcher) Match(ctx context.Context, query string, topK int) ([]string, error) {
	if topK <= 0 {
		return nil, nil
	}
	queryVec, err := m.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed skill query: %w", err)
	}
	hits, err := m.store.Search(ctx, vector.CollectionSkills, queryVec, topK, nil)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		if name, ok := h.Payload["name"].(string); ok {
			out = append(out, name)
		}
	}
	return out, nil
}

// CosineSimilarity computes the cosine of the angle between a and b,
// 0 when either has zero magnitude or lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

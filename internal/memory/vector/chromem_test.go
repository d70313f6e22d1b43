package vector

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChromemUpsertSearchFilter(t *testing.T) {
	s := NewChromemStore()
	ctx := context.Background()

	for i, conv := range []int64{1, 1, 2} {
		vec := []float32{1, 0, 0}
		if conv == 2 {
			vec = []float32{0, 1, 0}
		}
		err := s.Upsert(ctx, CollectionMessages, fmt.Sprintf("m%d", i), vec, Payload{
			"conversation_id": conv,
			"message_id":      int64(i + 1),
		})
		require.NoError(t, err)
	}

	// Scoped to conversation 1.
	hits, err := s.Search(ctx, CollectionMessages, []float32{1, 0, 0}, 10, &Filter{
		Equal: map[string]any{"conversation_id": int64(1)},
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)

	// Excluding conversation 1.
	hits, err = s.Search(ctx, CollectionMessages, []float32{0, 1, 0}, 10, &Filter{
		NotEqual: map[string]any{"conversation_id": int64(1)},
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "m2", hits[0].ID)
}

func TestChromemLastWriterWins(t *testing.T) {
	s := NewChromemStore()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, CollectionSkills, "p1", []float32{1, 0}, Payload{"name": "old"}))
	require.NoError(t, s.Upsert(ctx, CollectionSkills, "p1", []float32{1, 0}, Payload{"name": "new"}))

	hits, err := s.Search(ctx, CollectionSkills, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "new", hits[0].Payload["name"])
}

func TestChromemSearchEmptyCollection(t *testing.T) {
	s := NewChromemStore()
	hits, err := s.Search(context.Background(), "empty", []float32{1}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osamaelmahalawi/zeph/pkg/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMessageIDsMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx)
	require.NoError(t, err)

	var prev int64
	for i := 0; i < 5; i++ {
		id, err := s.SaveMessage(ctx, conv, models.RoleUser, "hello", nil)
		require.NoError(t, err)
		assert.Greater(t, id, prev)
		prev = id
	}
}

func TestLoadHistoryChronological(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx)
	require.NoError(t, err)

	for _, content := range []string{"one", "two", "three", "four"} {
		_, err := s.SaveMessage(ctx, conv, models.RoleUser, content, nil)
		require.NoError(t, err)
	}

	msgs, err := s.LoadHistory(ctx, conv, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "three", msgs[0].Content)
	assert.Equal(t, "four", msgs[1].Content)
	assert.Less(t, msgs[0].ID, msgs[1].ID)
}

func TestLoadHistoryAfterBoundary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx)
	require.NoError(t, err)

	var third int64
	for i, content := range []string{"a", "b", "c", "d", "e"} {
		id, err := s.SaveMessage(ctx, conv, models.RoleUser, content, nil)
		require.NoError(t, err)
		if i == 2 {
			third = id
		}
	}

	msgs, err := s.LoadHistoryAfter(ctx, conv, third)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "d", msgs[0].Content)
	assert.Equal(t, "e", msgs[1].Content)
}

func TestSummaryNonOverlapping(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := s.SaveMessage(ctx, conv, models.RoleUser, "m", nil)
		require.NoError(t, err)
	}

	require.NoError(t, s.SaveSummary(ctx, conv, "first", 1, 4, 10))

	// Overlapping range is rejected: the boundary is 4.
	err = s.SaveSummary(ctx, conv, "overlap", 3, 8, 10)
	assert.ErrorIs(t, err, ErrSummaryOverlap)

	// Adjacent range is accepted.
	require.NoError(t, s.SaveSummary(ctx, conv, "second", 5, 8, 10))

	boundary, err := s.LatestSummaryLastMessageID(ctx, conv)
	require.NoError(t, err)
	assert.Equal(t, int64(8), boundary)

	sums, err := s.LoadSummaries(ctx, conv)
	require.NoError(t, err)
	require.Len(t, sums, 2)
	assert.Less(t, sums[0].LastMessageID, sums[1].FirstMessageID)
}

func TestSummaryBoundaryEmptyConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx)
	require.NoError(t, err)

	boundary, err := s.LatestSummaryLastMessageID(ctx, conv)
	require.NoError(t, err)
	assert.Zero(t, boundary)
}

func TestEmbeddingUpsertIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx)
	require.NoError(t, err)
	id, err := s.SaveMessage(ctx, conv, models.RoleUser, "embed me", nil)
	require.NoError(t, err)

	present, err := s.EmbeddingPresent(ctx, id, "test-model")
	require.NoError(t, err)
	assert.False(t, present)

	rec := models.EmbeddingRecord{MessageID: id, Model: "test-model", VectorID: "v1"}
	require.NoError(t, s.UpsertEmbedding(ctx, rec))

	// Second upsert is last-writer-wins, not an error.
	rec.VectorID = "v2"
	require.NoError(t, s.UpsertEmbedding(ctx, rec))

	present, err = s.EmbeddingPresent(ctx, id, "test-model")
	require.NoError(t, err)
	assert.True(t, present)
}

func TestSkillTrustRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// No row defaults to Verified.
	level, hash, err := s.SkillTrust(ctx, "unknown")
	require.NoError(t, err)
	assert.Equal(t, models.TrustVerified, level)
	assert.Empty(t, hash)

	require.NoError(t, s.SetSkillTrust(ctx, "deploy", models.TrustQuarantined, "abc123"))
	level, hash, err = s.SkillTrust(ctx, "deploy")
	require.NoError(t, err)
	assert.Equal(t, models.TrustQuarantined, level)
	assert.Equal(t, "abc123", hash)
}

func TestReplaceMessageContent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx)
	require.NoError(t, err)
	id, err := s.SaveMessage(ctx, conv, models.RoleTool, "big tool output", nil)
	require.NoError(t, err)

	require.NoError(t, s.ReplaceMessageContent(ctx, id, "[pruned]"))
	msgs, err := s.LoadHistory(ctx, conv, 10)
	require.NoError(t, err)
	assert.Equal(t, "[pruned]", msgs[0].Content)

	assert.ErrorIs(t, s.ReplaceMessageContent(ctx, 9999, "x"), ErrNotFound)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 2, EstimateTokens("Hello world"))
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("test"))
}

package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osamaelmahalawi/zeph/internal/llm"
	"github.com/osamaelmahalawi/zeph/pkg/models"
)

func TestOverflowLimit(t *testing.T) {
	assert.Equal(t, 125, overflowLimit(100, 0.25))
	assert.Equal(t, 100, overflowLimit(100, 0))
}

func TestCompactAdvancesBoundaryAndPreservesTail(t *testing.T) {
	p := &scriptProvider{name: "mock", script: []string{"the summary"}}
	f := newFixture(t, []llm.Provider{p}, Config{
		CompactionPreserveTail: 2,
		PruneProtectTokens:     10,
	})
	ctx := context.Background()

	conv, err := f.store.CreateConversation(ctx)
	require.NoError(t, err)
	f.engine.conv = conv

	bigOutput := strings.Repeat("tool output line\n", 50)
	var ids []int64
	for i := 0; i < 8; i++ {
		role := models.RoleUser
		content := "message"
		if i%3 == 2 {
			role = models.RoleTool
			content = bigOutput
		}
		id, err := f.store.SaveMessage(ctx, conv, role, content, nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	recent, err := f.store.LoadHistoryAfter(ctx, conv, 0)
	require.NoError(t, err)
	require.NoError(t, f.engine.compact(ctx, recent))

	// The boundary covers everything but the preserved tail.
	boundary, err := f.store.LatestSummaryLastMessageID(ctx, conv)
	require.NoError(t, err)
	assert.Equal(t, ids[len(ids)-3], boundary)

	// Old tool outputs beyond the protect budget are pruned in place.
	msgs, err := f.store.LoadHistory(ctx, conv, 100)
	require.NoError(t, err)
	pruned := 0
	for _, m := range msgs {
		if m.Role == models.RoleTool && m.Content == prunedMarker {
			pruned++
		}
	}
	assert.Positive(t, pruned)

	// The preserved tail is verbatim.
	tail := msgs[len(msgs)-2:]
	for _, m := range tail {
		assert.NotEqual(t, prunedMarker, m.Content)
	}
}

func TestCompactRetriedTaskDoesNotOverlap(t *testing.T) {
	p := &scriptProvider{name: "mock", script: []string{"summary one", "summary two"}}
	f := newFixture(t, []llm.Provider{p}, Config{CompactionPreserveTail: 1})
	ctx := context.Background()

	conv, err := f.store.CreateConversation(ctx)
	require.NoError(t, err)
	f.engine.conv = conv

	for i := 0; i < 5; i++ {
		_, err := f.store.SaveMessage(ctx, conv, models.RoleUser, "m", nil)
		require.NoError(t, err)
	}
	recent, err := f.store.LoadHistoryAfter(ctx, conv, 0)
	require.NoError(t, err)

	require.NoError(t, f.engine.compact(ctx, recent))
	// A retried task re-running over the same stretch is a no-op, not
	// an overlapping summary.
	require.NoError(t, f.engine.compact(ctx, recent))

	sums, err := f.store.LoadSummaries(ctx, conv)
	require.NoError(t, err)
	assert.Len(t, sums, 1)
}

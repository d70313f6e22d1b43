// Package memory implements the context memory hierarchy: the
// persistent message log, running summaries, and semantic recall over
// an external vector store.
package memory

import (
	"context"
	"errors"

	"github.com/osamaelmahalawi/zeph/pkg/models"
)

var (
	// ErrNotFound reports a missing row.
	ErrNotFound = errors.New("memory: not found")

	// ErrSummaryOverlap reports a summary insert whose range overlaps
	// the current summarized prefix.
	ErrSummaryOverlap = errors.New("memory: summary range overlaps existing boundary")
)

// Store is the persistent message log consumed by the engine. All
// operations are atomic per call; writers are serialized per row.
type Store interface {
	CreateConversation(ctx context.Context) (int64, error)

	// SaveMessage appends a message and returns its id. Ids are
	// strictly increasing within a conversation.
	SaveMessage(ctx context.Context, conv int64, role models.Role, content string, parts []models.Part) (int64, error)

	// LoadHistory returns the most recent limit messages in
	// chronological order.
	LoadHistory(ctx context.Context, conv int64, limit int) ([]models.Message, error)

	// LoadHistoryAfter returns all messages with id > after in
	// chronological order.
	LoadHistoryAfter(ctx context.Context, conv int64, after int64) ([]models.Message, error)

	// LoadMessage returns one message by id.
	LoadMessage(ctx context.Context, messageID int64) (models.Message, error)

	// SaveSummary persists a summary covering [first, last]. The
	// insert verifies, under the write lock, that first follows the
	// current summarized prefix boundary.
	SaveSummary(ctx context.Context, conv int64, content string, first, last int64, tokens int) error

	LoadSummaries(ctx context.Context, conv int64) ([]models.Summary, error)

	// LatestSummaryLastMessageID returns the summarized prefix
	// boundary, or 0 when the conversation has no summaries.
	LatestSummaryLastMessageID(ctx context.Context, conv int64) (int64, error)

	EmbeddingPresent(ctx context.Context, messageID int64, model string) (bool, error)
	UpsertEmbedding(ctx context.Context, rec models.EmbeddingRecord) error

	// ReplaceMessageContent rewrites a persisted message's content in
	// place. Used only by compaction to prune stale tool output.
	ReplaceMessageContent(ctx context.Context, messageID int64, content string) error

	Close() error
}

// TrustStore persists per-skill trust levels and usage counters.
type TrustStore interface {
	SkillTrust(ctx context.Context, name string) (models.TrustLevel, string, error)
	SetSkillTrust(ctx context.Context, name string, level models.TrustLevel, hash string) error
	RecordSkillUse(ctx context.Context, name string) error
}

// RecallHit is one semantic recall result.
type RecallHit struct {
	MessageID      int64
	ConversationID int64
	Score          float64
}

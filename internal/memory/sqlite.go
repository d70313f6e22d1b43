package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/osamaelmahalawi/zeph/pkg/models"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// SQLiteStore implements Store and TrustStore on an embedded SQLite
// database. Foreign keys are enabled so cascade deletes from
// conversations are enforced.
type SQLiteStore struct {
	db *sql.DB

	// summaryMu serializes summary inserts so the boundary check and
	// the insert are one critical section.
	summaryMu sync.Mutex
}

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	parts TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);

CREATE TABLE IF NOT EXISTS summaries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	content TEXT NOT NULL,
	first_message_id INTEGER NOT NULL,
	last_message_id INTEGER NOT NULL,
	tokens INTEGER NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_summaries_conversation ON summaries(conversation_id);

CREATE TABLE IF NOT EXISTS embeddings_metadata (
	message_id INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	embedding_model TEXT NOT NULL,
	vector_id TEXT NOT NULL,
	PRIMARY KEY (message_id, embedding_model)
);

CREATE TABLE IF NOT EXISTS skill_trust (
	name TEXT PRIMARY KEY,
	trust_level TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS skill_usage (
	name TEXT PRIMARY KEY,
	uses INTEGER NOT NULL DEFAULT 0,
	last_used DATETIME
);

CREATE TABLE IF NOT EXISTS chunk_metadata (
	id TEXT PRIMARY KEY,
	path TEXT NOT NULL,
	start_line INTEGER NOT NULL,
	end_line INTEGER NOT NULL,
	content_hash TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scheduled_jobs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	cron_expr TEXT NOT NULL,
	payload TEXT,
	last_run DATETIME
);
`

// NewSQLiteStore opens (or creates) the database at path and applies
// the schema. Use ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// DB exposes the underlying handle for shared access by other stores.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) CreateConversation(ctx context.Context) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		"INSERT INTO conversations DEFAULT VALUES RETURNING id").Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create conversation: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) SaveMessage(ctx context.Context, conv int64, role models.Role, content string, parts []models.Part) (int64, error) {
	var partsJSON sql.NullString
	if len(parts) > 0 {
		data, err := json.Marshal(parts)
		if err != nil {
			return 0, fmt.Errorf("encode message parts: %w", err)
		}
		partsJSON = sql.NullString{String: string(data), Valid: true}
	}
	var id int64
	err := s.db.QueryRowContext(ctx,
		"INSERT INTO messages (conversation_id, role, content, parts) VALUES (?, ?, ?, ?) RETURNING id",
		conv, string(role), content, partsJSON).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("save message: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) LoadHistory(ctx context.Context, conv int64, limit int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, parts FROM (
			SELECT id, role, content, parts FROM messages
			WHERE conversation_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, conv, limit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows, conv)
}

func (s *SQLiteStore) LoadHistoryAfter(ctx context.Context, conv int64, after int64) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, role, content, parts FROM messages WHERE conversation_id = ? AND id > ? ORDER BY id ASC",
		conv, after)
	if err != nil {
		return nil, fmt.Errorf("load history after %d: %w", after, err)
	}
	defer rows.Close()
	return scanMessages(rows, conv)
}

func (s *SQLiteStore) LoadMessage(ctx context.Context, messageID int64) (models.Message, error) {
	var (
		m         models.Message
		role      string
		partsJSON sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, conversation_id, role, content, parts FROM messages WHERE id = ?", messageID).
		Scan(&m.ID, &m.ConversationID, &role, &m.Content, &partsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrNotFound
	}
	if err != nil {
		return models.Message{}, fmt.Errorf("load message %d: %w", messageID, err)
	}
	m.Role = models.Role(role)
	if partsJSON.Valid && partsJSON.String != "" {
		if err := json.Unmarshal([]byte(partsJSON.String), &m.Parts); err != nil {
			return models.Message{}, fmt.Errorf("decode message parts: %w", err)
		}
	}
	return m, nil
}

func scanMessages(rows *sql.Rows, conv int64) ([]models.Message, error) {
	var msgs []models.Message
	for rows.Next() {
		var (
			m         models.Message
			role      string
			partsJSON sql.NullString
		)
		if err := rows.Scan(&m.ID, &role, &m.Content, &partsJSON); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.ConversationID = conv
		m.Role = models.Role(role)
		if partsJSON.Valid && partsJSON.String != "" {
			if err := json.Unmarshal([]byte(partsJSON.String), &m.Parts); err != nil {
				return nil, fmt.Errorf("decode message parts: %w", err)
			}
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *SQLiteStore) SaveSummary(ctx context.Context, conv int64, content string, first, last int64, tokens int) error {
	if first < 1 || last < first {
		return fmt.Errorf("save summary: invalid range [%d, %d]", first, last)
	}

	s.summaryMu.Lock()
	defer s.summaryMu.Unlock()

	boundary, err := s.LatestSummaryLastMessageID(ctx, conv)
	if err != nil {
		return err
	}
	if first <= boundary {
		return ErrSummaryOverlap
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO summaries (conversation_id, content, first_message_id, last_message_id, tokens) VALUES (?, ?, ?, ?, ?)",
		conv, content, first, last, tokens)
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadSummaries(ctx context.Context, conv int64) ([]models.Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, content, first_message_id, last_message_id, tokens FROM summaries WHERE conversation_id = ? ORDER BY id ASC",
		conv)
	if err != nil {
		return nil, fmt.Errorf("load summaries: %w", err)
	}
	defer rows.Close()

	var out []models.Summary
	for rows.Next() {
		var sum models.Summary
		if err := rows.Scan(&sum.ID, &sum.Content, &sum.FirstMessageID, &sum.LastMessageID, &sum.Tokens); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		sum.ConversationID = conv
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) LatestSummaryLastMessageID(ctx context.Context, conv int64) (int64, error) {
	var last sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT MAX(last_message_id) FROM summaries WHERE conversation_id = ?", conv).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("latest summary boundary: %w", err)
	}
	if !last.Valid {
		return 0, nil
	}
	return last.Int64, nil
}

func (s *SQLiteStore) EmbeddingPresent(ctx context.Context, messageID int64, model string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM embeddings_metadata WHERE message_id = ? AND embedding_model = ?",
		messageID, model).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("embedding present: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) UpsertEmbedding(ctx context.Context, rec models.EmbeddingRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO embeddings_metadata (message_id, embedding_model, vector_id) VALUES (?, ?, ?)
		 ON CONFLICT (message_id, embedding_model) DO UPDATE SET vector_id = excluded.vector_id`,
		rec.MessageID, rec.Model, rec.VectorID)
	if err != nil {
		return fmt.Errorf("upsert embedding: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ReplaceMessageContent(ctx context.Context, messageID int64, content string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE messages SET content = ? WHERE id = ?", content, messageID)
	if err != nil {
		return fmt.Errorf("replace message content: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// SkillTrust returns the stored trust level and content hash for a
// skill, defaulting to Verified when the skill has no row yet.
func (s *SQLiteStore) SkillTrust(ctx context.Context, name string) (models.TrustLevel, string, error) {
	var (
		levelStr string
		hash     string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT trust_level, content_hash FROM skill_trust WHERE name = ?", name).
		Scan(&levelStr, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return models.TrustVerified, "", nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("skill trust: %w", err)
	}
	level, err := models.ParseTrustLevel(levelStr)
	if err != nil {
		return 0, "", err
	}
	return level, hash, nil
}

func (s *SQLiteStore) SetSkillTrust(ctx context.Context, name string, level models.TrustLevel, hash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO skill_trust (name, trust_level, content_hash, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (name) DO UPDATE SET trust_level = excluded.trust_level, content_hash = excluded.content_hash, updated_at = CURRENT_TIMESTAMP`,
		name, level.String(), hash)
	if err != nil {
		return fmt.Errorf("set skill trust: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecordSkillUse(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO skill_usage (name, uses, last_used) VALUES (?, 1, CURRENT_TIMESTAMP)
		 ON CONFLICT (name) DO UPDATE SET uses = uses + 1, last_used = CURRENT_TIMESTAMP`,
		name)
	if err != nil {
		return fmt.Errorf("record skill use: %w", err)
	}
	return nil
}

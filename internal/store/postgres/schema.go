// Package postgres provides a PostgreSQL-backed implementation of the call
// system store interfaces ([store.QueueStore], [store.CallStore] and
// [store.ChunkStore]).
//
// All tables share a single [pgxpool.Pool]. The pgvector extension must be
// available in the target database; [Migrate] installs it automatically via
// CREATE EXTENSION IF NOT EXISTS.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlDialQueue = `
CREATE TABLE IF NOT EXISTS contacts (
    id            TEXT         PRIMARY KEY,
    phone_number  TEXT         NOT NULL UNIQUE,
    name          TEXT         NOT NULL DEFAULT 'Unknown',
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS call_queue (
    id              TEXT         PRIMARY KEY,
    contact_id      TEXT         NOT NULL REFERENCES contacts (id) ON DELETE CASCADE,
    status          TEXT         NOT NULL DEFAULT 'pending',
    attempt_count   INTEGER      NOT NULL DEFAULT 0,
    max_attempts    INTEGER      NOT NULL DEFAULT 3,
    scheduled_time  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    next_retry_at   TIMESTAMPTZ,
    last_call_at    TIMESTAMPTZ,
    call_sid        TEXT         NOT NULL DEFAULT '',
    error_reason    TEXT         NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_call_queue_status
    ON call_queue (status, scheduled_time);

CREATE INDEX IF NOT EXISTS idx_call_queue_retry
    ON call_queue (status, next_retry_at);
`

const ddlCalls = `
CREATE TABLE IF NOT EXISTS calls (
    id             TEXT         PRIMARY KEY,
    queue_id       TEXT         NOT NULL DEFAULT '',
    stream_sid     TEXT         NOT NULL DEFAULT '',
    caller_number  TEXT         NOT NULL DEFAULT '',
    attempt_count  INTEGER      NOT NULL DEFAULT 1,
    status         TEXT         NOT NULL DEFAULT 'active',
    start_time     TIMESTAMPTZ  NOT NULL DEFAULT now(),
    end_time       TIMESTAMPTZ,
    duration       INTEGER      NOT NULL DEFAULT 0,
    transcript     JSONB        NOT NULL DEFAULT '[]',
    summary        TEXT         NOT NULL DEFAULT '',
    intent         TEXT         NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_calls_status ON calls (status);
CREATE INDEX IF NOT EXISTS idx_calls_start_time ON calls (start_time);

CREATE TABLE IF NOT EXISTS call_attempts (
    id              TEXT         PRIMARY KEY,
    call_id         TEXT         NOT NULL REFERENCES calls (id) ON DELETE CASCADE,
    attempt_number  INTEGER      NOT NULL DEFAULT 1,
    status          TEXT         NOT NULL DEFAULT 'initiated',
    started_at      TIMESTAMPTZ  NOT NULL DEFAULT now(),
    ended_at        TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_call_attempts_call_id ON call_attempts (call_id);

CREATE TABLE IF NOT EXISTS call_summaries (
    id            TEXT         PRIMARY KEY,
    call_id       TEXT         NOT NULL REFERENCES calls (id) ON DELETE CASCADE,
    summary_text  TEXT         NOT NULL,
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_call_summaries_call_id ON call_summaries (call_id);
`

// ddlKnowledgeBase returns the knowledge-base DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time.
func ddlKnowledgeBase(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS kb_chunks (
    id           TEXT         PRIMARY KEY,
    document_id  TEXT         NOT NULL,
    source       TEXT         NOT NULL DEFAULT '',
    content      TEXT         NOT NULL,
    embedding    vector(%d),
    created_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_kb_chunks_document_id
    ON kb_chunks (document_id);

CREATE INDEX IF NOT EXISTS idx_kb_chunks_embedding
    ON kb_chunks USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures all required database tables and extensions
// exist. It is idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT
// EXISTS) and safe to call on every application start.
//
// embeddingDimensions must match the embedding model configured for your
// deployment (e.g., 1536 for OpenAI text-embedding-3-small, 768 for Gemini
// text-embedding-004). Changing this value after the first migration requires
// a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlDialQueue,
		ddlCalls,
		ddlKnowledgeBase(embeddingDimensions),
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}

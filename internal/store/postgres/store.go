package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/vocalq/outbound/internal/store"
	"github.com/vocalq/outbound/pkg/types"
)

// Compile-time interface checks.
var (
	_ store.QueueStore = (*Store)(nil)
	_ store.CallStore  = (*Store)(nil)
	_ store.ChunkStore = (*Store)(nil)
)

// Store is the PostgreSQL-backed implementation of the call system store
// interfaces. It holds a single [pgxpool.Pool] shared by the dial queue, call
// records and the knowledge-base index.
//
// All operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store, establishes a connection pool to the
// PostgreSQL database at dsn, registers pgvector types on every connection,
// and runs [Migrate] to ensure all required tables and extensions exist.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that vector columns
	// can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity. Used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// ─────────────────────────────────────────────────────────────────────────────
// QueueStore
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) EnsureContact(ctx context.Context, phoneNumber string) (store.Contact, error) {
	const insert = `
		INSERT INTO contacts (id, phone_number)
		VALUES ($1, $2)
		ON CONFLICT (phone_number) DO UPDATE SET phone_number = EXCLUDED.phone_number
		RETURNING id, phone_number, name, created_at`

	var c store.Contact
	err := s.pool.QueryRow(ctx, insert, uuid.NewString(), phoneNumber).
		Scan(&c.ID, &c.PhoneNumber, &c.Name, &c.CreatedAt)
	if err != nil {
		return store.Contact{}, fmt.Errorf("queue store: ensure contact: %w", err)
	}
	return c, nil
}

func (s *Store) Enqueue(ctx context.Context, contactID string) (store.QueueItem, error) {
	const q = `
		INSERT INTO call_queue (id, contact_id, status, max_attempts, scheduled_time)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, contact_id, status, attempt_count, max_attempts, scheduled_time, created_at`

	var item store.QueueItem
	err := s.pool.QueryRow(ctx, q, uuid.NewString(), contactID, store.QueuePending, store.DefaultMaxAttempts).
		Scan(&item.ID, &item.ContactID, &item.Status, &item.AttemptCount,
			&item.MaxAttempts, &item.ScheduledTime, &item.CreatedAt)
	if err != nil {
		return store.QueueItem{}, fmt.Errorf("queue store: enqueue: %w", err)
	}
	return item, nil
}

func (s *Store) NextDue(ctx context.Context, now time.Time) (*store.QueueItem, error) {
	const q = `
		SELECT q.id, q.contact_id, c.phone_number, q.status, q.attempt_count,
		       q.max_attempts, q.scheduled_time, q.next_retry_at, q.last_call_at,
		       q.call_sid, q.error_reason, q.created_at
		FROM   call_queue q
		JOIN   contacts c ON c.id = q.contact_id
		WHERE  q.status = 'pending'
		   OR (q.status = 'retry_scheduled' AND q.next_retry_at <= $1)
		ORDER  BY (q.status = 'pending') DESC, q.scheduled_time
		LIMIT  1`

	var item store.QueueItem
	err := s.pool.QueryRow(ctx, q, now).Scan(
		&item.ID, &item.ContactID, &item.PhoneNumber, &item.Status,
		&item.AttemptCount, &item.MaxAttempts, &item.ScheduledTime,
		&item.NextRetryAt, &item.LastCallAt, &item.CallSID,
		&item.ErrorReason, &item.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue store: next due: %w", err)
	}
	return &item, nil
}

func (s *Store) MarkCalling(ctx context.Context, id string, at time.Time) error {
	return s.execQueue(ctx, "mark calling",
		`UPDATE call_queue SET status = $2, last_call_at = $3 WHERE id = $1`,
		id, store.QueueCalling, at)
}

func (s *Store) SetCallSID(ctx context.Context, id, callSID string) error {
	return s.execQueue(ctx, "set call sid",
		`UPDATE call_queue SET call_sid = $2 WHERE id = $1`,
		id, callSID)
}

func (s *Store) MarkAnswered(ctx context.Context, id string, attemptCount int) error {
	return s.execQueue(ctx, "mark answered",
		`UPDATE call_queue SET status = $2, attempt_count = $3 WHERE id = $1`,
		id, store.QueueAnswered, attemptCount)
}

func (s *Store) ScheduleRetry(ctx context.Context, id string, attemptCount int, nextRetryAt time.Time, reason string) error {
	return s.execQueue(ctx, "schedule retry",
		`UPDATE call_queue
		 SET status = $2, attempt_count = $3, next_retry_at = $4, error_reason = $5
		 WHERE id = $1`,
		id, store.QueueRetryScheduled, attemptCount, nextRetryAt, reason)
}

func (s *Store) MarkFailedFinal(ctx context.Context, id string, attemptCount int, reason string) error {
	return s.execQueue(ctx, "mark failed final",
		`UPDATE call_queue
		 SET status = $2, attempt_count = $3, error_reason = $4
		 WHERE id = $1`,
		id, store.QueueFailedFinal, attemptCount, reason)
}

func (s *Store) QueueDepth(ctx context.Context) (int, error) {
	const q = `
		SELECT count(*) FROM call_queue
		WHERE status IN ('pending', 'retry_scheduled')`

	var depth int
	if err := s.pool.QueryRow(ctx, q).Scan(&depth); err != nil {
		return 0, fmt.Errorf("queue store: queue depth: %w", err)
	}
	return depth, nil
}

func (s *Store) execQueue(ctx context.Context, op, q string, args ...any) error {
	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("queue store: %s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("queue store: %s: no such queue item", op)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// CallStore
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) CreateCall(ctx context.Context, call store.CallRecord) error {
	const q = `
		INSERT INTO calls
		    (id, queue_id, stream_sid, caller_number, attempt_count, status, start_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, q,
		call.ID, call.QueueID, call.StreamSID, call.CallerNumber,
		call.AttemptCount, call.Status, call.StartTime)
	if err != nil {
		return fmt.Errorf("call store: create call: %w", err)
	}
	return nil
}

func (s *Store) FinalizeCall(ctx context.Context, id string, fin store.CallFinalization) error {
	transcript, err := json.Marshal(fin.Transcript)
	if err != nil {
		return fmt.Errorf("call store: finalize call: marshal transcript: %w", err)
	}

	const q = `
		UPDATE calls
		SET status = $2, end_time = $3, duration = $4, transcript = $5,
		    summary = $6, intent = $7
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q,
		id, store.CallCompleted, fin.EndTime, fin.Duration,
		transcript, fin.Summary, fin.Intent)
	if err != nil {
		return fmt.Errorf("call store: finalize call: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("call store: finalize call: no such call %q", id)
	}
	return nil
}

func (s *Store) GetCall(ctx context.Context, id string) (*store.CallRecord, error) {
	const q = callSelect + ` WHERE id = $1`

	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("call store: get call: %w", err)
	}
	calls, err := collectCalls(rows)
	if err != nil {
		return nil, err
	}
	if len(calls) == 0 {
		return nil, nil
	}
	return &calls[0], nil
}

func (s *Store) ListCalls(ctx context.Context, opts store.ListCallsOpts) ([]store.CallRecord, error) {
	args := []any{}
	q := callSelect
	if opts.Status != "" {
		args = append(args, opts.Status)
		q += fmt.Sprintf(" WHERE status = $%d", len(args))
	}
	q += " ORDER BY start_time DESC, created_at DESC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("call store: list calls: %w", err)
	}
	return collectCalls(rows)
}

const callSelect = `
	SELECT id, queue_id, stream_sid, caller_number, attempt_count, status,
	       start_time, end_time, duration, transcript, summary, intent, created_at
	FROM   calls`

func collectCalls(rows pgx.Rows) ([]store.CallRecord, error) {
	calls, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.CallRecord, error) {
		var (
			c          store.CallRecord
			transcript []byte
		)
		if err := row.Scan(
			&c.ID, &c.QueueID, &c.StreamSID, &c.CallerNumber,
			&c.AttemptCount, &c.Status, &c.StartTime, &c.EndTime,
			&c.Duration, &transcript, &c.Summary, &c.Intent, &c.CreatedAt,
		); err != nil {
			return store.CallRecord{}, err
		}
		if len(transcript) > 0 {
			var turns []types.TranscriptTurn
			if err := json.Unmarshal(transcript, &turns); err != nil {
				return store.CallRecord{}, fmt.Errorf("unmarshal transcript: %w", err)
			}
			c.Transcript = turns
		}
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("call store: scan rows: %w", err)
	}
	if calls == nil {
		calls = []store.CallRecord{}
	}
	return calls, nil
}

func (s *Store) CreateAttempt(ctx context.Context, attempt store.CallAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}

	const q = `
		INSERT INTO call_attempts (id, call_id, attempt_number, status, started_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, q,
		attempt.ID, attempt.CallID, attempt.AttemptNumber, attempt.Status, attempt.StartedAt)
	if err != nil {
		return fmt.Errorf("call store: create attempt: %w", err)
	}
	return nil
}

func (s *Store) CompleteAttempts(ctx context.Context, callID string, endedAt time.Time) error {
	const q = `
		UPDATE call_attempts SET status = $2, ended_at = $3 WHERE call_id = $1`

	if _, err := s.pool.Exec(ctx, q, callID, store.AttemptCompleted, endedAt); err != nil {
		return fmt.Errorf("call store: complete attempts: %w", err)
	}
	return nil
}

func (s *Store) InsertSummary(ctx context.Context, summary store.CallSummary) error {
	if summary.ID == "" {
		summary.ID = uuid.NewString()
	}

	const q = `
		INSERT INTO call_summaries (id, call_id, summary_text)
		VALUES ($1, $2, $3)`

	if _, err := s.pool.Exec(ctx, q, summary.ID, summary.CallID, summary.SummaryText); err != nil {
		return fmt.Errorf("call store: insert summary: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// ChunkStore
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) UpsertChunk(ctx context.Context, chunk store.Chunk) error {
	const q = `
		INSERT INTO kb_chunks (id, document_id, source, content, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
		    document_id = EXCLUDED.document_id,
		    source      = EXCLUDED.source,
		    content     = EXCLUDED.content,
		    embedding   = EXCLUDED.embedding`

	vec := pgvector.NewVector(chunk.Embedding)
	_, err := s.pool.Exec(ctx, q, chunk.ID, chunk.DocumentID, chunk.Source, chunk.Content, vec)
	if err != nil {
		return fmt.Errorf("chunk store: upsert chunk: %w", err)
	}
	return nil
}

func (s *Store) SearchChunks(ctx context.Context, embedding []float32, topK int) ([]store.ChunkResult, error) {
	const q = `
		SELECT id, document_id, source, content, embedding, created_at,
		       embedding <=> $1 AS distance
		FROM   kb_chunks
		ORDER  BY distance
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("chunk store: search chunks: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.ChunkResult, error) {
		var (
			cr  store.ChunkResult
			vec pgvector.Vector
		)
		if err := row.Scan(
			&cr.Chunk.ID, &cr.Chunk.DocumentID, &cr.Chunk.Source,
			&cr.Chunk.Content, &vec, &cr.Chunk.CreatedAt, &cr.Distance,
		); err != nil {
			return store.ChunkResult{}, err
		}
		cr.Chunk.Embedding = vec.Slice()
		return cr, nil
	})
	if err != nil {
		return nil, fmt.Errorf("chunk store: scan rows: %w", err)
	}
	if results == nil {
		results = []store.ChunkResult{}
	}
	return results, nil
}

func (s *Store) ListChunks(ctx context.Context) ([]store.Chunk, error) {
	const q = `
		SELECT id, document_id, source, content, created_at
		FROM   kb_chunks
		ORDER  BY created_at`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("chunk store: list chunks: %w", err)
	}

	chunks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Chunk, error) {
		var c store.Chunk
		err := row.Scan(&c.ID, &c.DocumentID, &c.Source, &c.Content, &c.CreatedAt)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("chunk store: scan rows: %w", err)
	}
	if chunks == nil {
		chunks = []store.Chunk{}
	}
	return chunks, nil
}

func (s *Store) DeleteDocument(ctx context.Context, documentID string) error {
	const q = `DELETE FROM kb_chunks WHERE document_id = $1`

	if _, err := s.pool.Exec(ctx, q, documentID); err != nil {
		return fmt.Errorf("chunk store: delete document: %w", err)
	}
	return nil
}

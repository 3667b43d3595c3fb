// Package store defines the persistence model for the outbound call system:
// contacts, the dial queue, call records with their attempts and summaries,
// and the knowledge-base chunk index.
//
// Consumers depend on the narrow [QueueStore], [CallStore] and [ChunkStore]
// interfaces; [MemStore] and the postgres sub-package implement all three.
package store

import (
	"context"
	"time"

	"github.com/vocalq/outbound/pkg/types"
)

// Queue item lifecycle statuses.
const (
	QueuePending        = "pending"
	QueueCalling        = "calling"
	QueueRetryScheduled = "retry_scheduled"
	QueueAnswered       = "answered"
	QueueFailedFinal    = "failed_final"
)

// Call record statuses.
const (
	CallActive    = "active"
	CallCompleted = "completed"
)

// Call attempt statuses.
const (
	AttemptInitiated = "initiated"
	AttemptCompleted = "completed"
)

// DefaultMaxAttempts is the number of dial attempts a queue item gets before
// it is marked failed_final.
const DefaultMaxAttempts = 3

// Contact is a dialable phone number. Numbers are unique; enqueueing the same
// number twice reuses the existing contact.
type Contact struct {
	ID          string    `json:"id"`
	PhoneNumber string    `json:"phone_number"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
}

// QueueItem is one entry in the outbound dial queue. PhoneNumber is joined in
// from the contact when items are fetched for dialing.
type QueueItem struct {
	ID            string     `json:"id"`
	ContactID     string     `json:"contact_id"`
	PhoneNumber   string     `json:"phone_number,omitempty"`
	Status        string     `json:"status"`
	AttemptCount  int        `json:"attempt_count"`
	MaxAttempts   int        `json:"max_attempts"`
	ScheduledTime time.Time  `json:"scheduled_time"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty"`
	LastCallAt    *time.Time `json:"last_call_at,omitempty"`
	CallSID       string     `json:"call_sid,omitempty"`
	ErrorReason   string     `json:"error_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// CallRecord is one bridged call. It is created with status "active" when the
// media stream starts and finalized to "completed" with transcript, summary
// and duration when the stream ends.
type CallRecord struct {
	ID           string                 `json:"id"`
	QueueID      string                 `json:"queue_id,omitempty"`
	StreamSID    string                 `json:"stream_sid,omitempty"`
	CallerNumber string                 `json:"caller_number,omitempty"`
	AttemptCount int                    `json:"attempt_count"`
	Status       string                 `json:"status"`
	StartTime    time.Time              `json:"start_time"`
	EndTime      *time.Time             `json:"end_time,omitempty"`
	Duration     int                    `json:"duration"`
	Transcript   []types.TranscriptTurn `json:"transcript,omitempty"`
	Summary      string                 `json:"summary,omitempty"`
	Intent       string                 `json:"intent,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// CallFinalization carries the values written to a call record when the
// bridge tears down.
type CallFinalization struct {
	EndTime    time.Time
	Duration   int
	Transcript []types.TranscriptTurn
	Summary    string
	Intent     string
}

// CallAttempt records one dial attempt against a call.
type CallAttempt struct {
	ID            string     `json:"id"`
	CallID        string     `json:"call_id"`
	AttemptNumber int        `json:"attempt_number"`
	Status        string     `json:"status"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
}

// CallSummary is the post-call summary row, kept separately from the call
// record so summaries can be listed without loading transcripts.
type CallSummary struct {
	ID          string    `json:"id"`
	CallID      string    `json:"call_id"`
	SummaryText string    `json:"summary_text"`
	CreatedAt   time.Time `json:"created_at"`
}

// Chunk is one embedded knowledge-base fragment. Chunks from the same source
// document share a DocumentID.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Source     string    `json:"source"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// ChunkResult pairs a chunk with its cosine distance to a query embedding.
// Smaller distances mean more similar.
type ChunkResult struct {
	Chunk    Chunk
	Distance float64
}

// ListCallsOpts filters and pages call listings. A zero Limit returns all
// matching records.
type ListCallsOpts struct {
	Status string
	Offset int
	Limit  int
}

// QueueStore manages contacts and the outbound dial queue.
type QueueStore interface {
	// EnsureContact returns the contact for phoneNumber, creating it if it
	// does not exist yet.
	EnsureContact(ctx context.Context, phoneNumber string) (Contact, error)

	// Enqueue inserts a pending queue item for the contact.
	Enqueue(ctx context.Context, contactID string) (QueueItem, error)

	// NextDue returns the next item ready to dial: a pending item if one
	// exists, otherwise a retry_scheduled item whose next_retry_at has
	// passed. Returns nil when the queue is idle.
	NextDue(ctx context.Context, now time.Time) (*QueueItem, error)

	// MarkCalling transitions an item to "calling" and records the dial time.
	MarkCalling(ctx context.Context, id string, at time.Time) error

	// SetCallSID attaches the carrier call SID to a queue item.
	SetCallSID(ctx context.Context, id, callSID string) error

	// MarkAnswered transitions an item to "answered" and records the attempt
	// count of the successful dial.
	MarkAnswered(ctx context.Context, id string, attemptCount int) error

	// ScheduleRetry transitions an item to "retry_scheduled" with the new
	// attempt count, retry time and failure reason.
	ScheduleRetry(ctx context.Context, id string, attemptCount int, nextRetryAt time.Time, reason string) error

	// MarkFailedFinal transitions an item to "failed_final".
	MarkFailedFinal(ctx context.Context, id string, attemptCount int, reason string) error

	// QueueDepth counts items still awaiting a dial (pending or
	// retry_scheduled).
	QueueDepth(ctx context.Context) (int, error)
}

// CallStore manages call records, attempts and summaries.
type CallStore interface {
	CreateCall(ctx context.Context, call CallRecord) error
	FinalizeCall(ctx context.Context, id string, fin CallFinalization) error
	GetCall(ctx context.Context, id string) (*CallRecord, error)
	ListCalls(ctx context.Context, opts ListCallsOpts) ([]CallRecord, error)
	CreateAttempt(ctx context.Context, attempt CallAttempt) error

	// CompleteAttempts marks every attempt of the call as completed.
	CompleteAttempts(ctx context.Context, callID string, endedAt time.Time) error

	InsertSummary(ctx context.Context, summary CallSummary) error
}

// ChunkStore manages the embedded knowledge-base index.
type ChunkStore interface {
	UpsertChunk(ctx context.Context, chunk Chunk) error

	// SearchChunks returns the topK chunks closest to embedding by cosine
	// distance, most similar first.
	SearchChunks(ctx context.Context, embedding []float32, topK int) ([]ChunkResult, error)

	ListChunks(ctx context.Context) ([]Chunk, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Compile-time interface checks.
var (
	_ QueueStore = (*MemStore)(nil)
	_ CallStore  = (*MemStore)(nil)
	_ ChunkStore = (*MemStore)(nil)
)

// MemStore is an in-memory implementation of all store interfaces. It backs
// tests and single-node deployments that do not need durable storage.
//
// All methods are safe for concurrent use.
type MemStore struct {
	mu        sync.RWMutex
	contacts  map[string]Contact // keyed by ID
	queue     map[string]*QueueItem
	calls     map[string]*CallRecord
	attempts  []*CallAttempt
	summaries []CallSummary
	chunks    map[string]Chunk
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		contacts: make(map[string]Contact),
		queue:    make(map[string]*QueueItem),
		calls:    make(map[string]*CallRecord),
		chunks:   make(map[string]Chunk),
	}
}

func (m *MemStore) EnsureContact(_ context.Context, phoneNumber string) (Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.contacts {
		if c.PhoneNumber == phoneNumber {
			return c, nil
		}
	}
	c := Contact{
		ID:          uuid.NewString(),
		PhoneNumber: phoneNumber,
		Name:        "Unknown",
		CreatedAt:   time.Now().UTC(),
	}
	m.contacts[c.ID] = c
	return c, nil
}

func (m *MemStore) Enqueue(_ context.Context, contactID string) (QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contacts[contactID]
	if !ok {
		return QueueItem{}, fmt.Errorf("memstore: enqueue: unknown contact %q", contactID)
	}

	now := time.Now().UTC()
	item := QueueItem{
		ID:            uuid.NewString(),
		ContactID:     contactID,
		PhoneNumber:   c.PhoneNumber,
		Status:        QueuePending,
		MaxAttempts:   DefaultMaxAttempts,
		ScheduledTime: now,
		CreatedAt:     now,
	}
	m.queue[item.ID] = &item
	copied := item
	return copied, nil
}

func (m *MemStore) NextDue(_ context.Context, now time.Time) (*QueueItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Pending items first, oldest scheduled time wins.
	if item := m.oldestWithStatus(QueuePending, now); item != nil {
		return item, nil
	}
	return m.oldestWithStatus(QueueRetryScheduled, now), nil
}

// oldestWithStatus must be called with the lock held.
func (m *MemStore) oldestWithStatus(status string, now time.Time) *QueueItem {
	var best *QueueItem
	for _, item := range m.queue {
		if item.Status != status {
			continue
		}
		if status == QueueRetryScheduled && (item.NextRetryAt == nil || item.NextRetryAt.After(now)) {
			continue
		}
		if best == nil || item.ScheduledTime.Before(best.ScheduledTime) {
			best = item
		}
	}
	if best == nil {
		return nil
	}
	copied := *best
	copied.PhoneNumber = m.contacts[best.ContactID].PhoneNumber
	return &copied
}

func (m *MemStore) MarkCalling(_ context.Context, id string, at time.Time) error {
	return m.updateQueueItem(id, func(item *QueueItem) {
		item.Status = QueueCalling
		item.LastCallAt = &at
	})
}

func (m *MemStore) SetCallSID(_ context.Context, id, callSID string) error {
	return m.updateQueueItem(id, func(item *QueueItem) {
		item.CallSID = callSID
	})
}

func (m *MemStore) MarkAnswered(_ context.Context, id string, attemptCount int) error {
	return m.updateQueueItem(id, func(item *QueueItem) {
		item.Status = QueueAnswered
		item.AttemptCount = attemptCount
	})
}

func (m *MemStore) ScheduleRetry(_ context.Context, id string, attemptCount int, nextRetryAt time.Time, reason string) error {
	return m.updateQueueItem(id, func(item *QueueItem) {
		item.Status = QueueRetryScheduled
		item.AttemptCount = attemptCount
		item.NextRetryAt = &nextRetryAt
		item.ErrorReason = reason
	})
}

func (m *MemStore) MarkFailedFinal(_ context.Context, id string, attemptCount int, reason string) error {
	return m.updateQueueItem(id, func(item *QueueItem) {
		item.Status = QueueFailedFinal
		item.AttemptCount = attemptCount
		item.ErrorReason = reason
	})
}

func (m *MemStore) QueueDepth(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	depth := 0
	for _, item := range m.queue {
		if item.Status == QueuePending || item.Status == QueueRetryScheduled {
			depth++
		}
	}
	return depth, nil
}

func (m *MemStore) updateQueueItem(id string, fn func(*QueueItem)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.queue[id]
	if !ok {
		return fmt.Errorf("memstore: unknown queue item %q", id)
	}
	fn(item)
	return nil
}

func (m *MemStore) CreateCall(_ context.Context, call CallRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if call.ID == "" {
		return fmt.Errorf("memstore: create call: missing id")
	}
	if _, exists := m.calls[call.ID]; exists {
		return fmt.Errorf("memstore: create call: duplicate id %q", call.ID)
	}
	if call.CreatedAt.IsZero() {
		call.CreatedAt = time.Now().UTC()
	}
	m.calls[call.ID] = &call
	return nil
}

func (m *MemStore) FinalizeCall(_ context.Context, id string, fin CallFinalization) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	call, ok := m.calls[id]
	if !ok {
		return fmt.Errorf("memstore: finalize call: unknown call %q", id)
	}
	call.Status = CallCompleted
	call.EndTime = &fin.EndTime
	call.Duration = fin.Duration
	call.Transcript = fin.Transcript
	call.Summary = fin.Summary
	call.Intent = fin.Intent
	return nil
}

func (m *MemStore) GetCall(_ context.Context, id string) (*CallRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	call, ok := m.calls[id]
	if !ok {
		return nil, nil
	}
	copied := *call
	return &copied, nil
}

func (m *MemStore) ListCalls(_ context.Context, opts ListCallsOpts) ([]CallRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	calls := make([]CallRecord, 0, len(m.calls))
	for _, call := range m.calls {
		if opts.Status != "" && call.Status != opts.Status {
			continue
		}
		calls = append(calls, *call)
	}
	sort.Slice(calls, func(i, j int) bool {
		return calls[i].StartTime.After(calls[j].StartTime)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(calls) {
			return []CallRecord{}, nil
		}
		calls = calls[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(calls) {
		calls = calls[:opts.Limit]
	}
	return calls, nil
}

func (m *MemStore) CreateAttempt(_ context.Context, attempt CallAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	m.attempts = append(m.attempts, &attempt)
	return nil
}

func (m *MemStore) CompleteAttempts(_ context.Context, callID string, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.attempts {
		if a.CallID == callID {
			a.Status = AttemptCompleted
			a.EndedAt = &endedAt
		}
	}
	return nil
}

// QueueItem returns a snapshot of the queue item with the given ID, or nil.
func (m *MemStore) QueueItem(id string) *QueueItem {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.queue[id]
	if !ok {
		return nil
	}
	cp := *item
	if c, ok := m.contacts[item.ContactID]; ok {
		cp.PhoneNumber = c.PhoneNumber
	}
	return &cp
}

// Attempts returns the attempts recorded for a call, in insertion order.
func (m *MemStore) Attempts(callID string) []CallAttempt {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []CallAttempt
	for _, a := range m.attempts {
		if a.CallID == callID {
			out = append(out, *a)
		}
	}
	return out
}

func (m *MemStore) InsertSummary(_ context.Context, summary CallSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if summary.ID == "" {
		summary.ID = uuid.NewString()
	}
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = time.Now().UTC()
	}
	m.summaries = append(m.summaries, summary)
	return nil
}

// Summaries returns the summaries recorded for a call.
func (m *MemStore) Summaries(callID string) []CallSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []CallSummary
	for _, s := range m.summaries {
		if s.CallID == callID {
			out = append(out, s)
		}
	}
	return out
}

func (m *MemStore) UpsertChunk(_ context.Context, chunk Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if chunk.ID == "" {
		return fmt.Errorf("memstore: upsert chunk: missing id")
	}
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = time.Now().UTC()
	}
	m.chunks[chunk.ID] = chunk
	return nil
}

func (m *MemStore) SearchChunks(_ context.Context, embedding []float32, topK int) ([]ChunkResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]ChunkResult, 0, len(m.chunks))
	for _, chunk := range m.chunks {
		results = append(results, ChunkResult{
			Chunk:    chunk,
			Distance: cosineDistance(embedding, chunk.Embedding),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

func (m *MemStore) ListChunks(_ context.Context) ([]Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chunks := make([]Chunk, 0, len(m.chunks))
	for _, chunk := range m.chunks {
		chunks = append(chunks, chunk)
	}
	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].CreatedAt.Before(chunks[j].CreatedAt)
	})
	return chunks, nil
}

func (m *MemStore) DeleteDocument(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, chunk := range m.chunks {
		if chunk.DocumentID == documentID {
			delete(m.chunks, id)
		}
	}
	return nil
}

// cosineDistance returns 1 - cosine similarity, matching pgvector's <=>
// operator. Mismatched or zero-magnitude vectors get the maximum distance.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

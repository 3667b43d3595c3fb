package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/vocalq/outbound/internal/store"
	"github.com/vocalq/outbound/pkg/types"
)

func TestMemStore_EnsureContactReusesNumber(t *testing.T) {
	t.Parallel()

	m := store.NewMemStore()
	ctx := context.Background()

	first, err := m.EnsureContact(ctx, "+15550001111")
	if err != nil {
		t.Fatalf("EnsureContact: %v", err)
	}
	second, err := m.EnsureContact(ctx, "+15550001111")
	if err != nil {
		t.Fatalf("EnsureContact: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("same number produced two contacts: %q vs %q", first.ID, second.ID)
	}

	other, err := m.EnsureContact(ctx, "+15550002222")
	if err != nil {
		t.Fatalf("EnsureContact: %v", err)
	}
	if other.ID == first.ID {
		t.Error("different numbers should produce different contacts")
	}
}

func TestMemStore_QueueLifecycle(t *testing.T) {
	t.Parallel()

	m := store.NewMemStore()
	ctx := context.Background()
	now := time.Now().UTC()

	contact, _ := m.EnsureContact(ctx, "+15550001111")
	item, err := m.Enqueue(ctx, contact.ID)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if item.Status != store.QueuePending {
		t.Errorf("status = %q; want pending", item.Status)
	}
	if item.MaxAttempts != store.DefaultMaxAttempts {
		t.Errorf("max attempts = %d; want %d", item.MaxAttempts, store.DefaultMaxAttempts)
	}

	due, err := m.NextDue(ctx, now)
	if err != nil {
		t.Fatalf("NextDue: %v", err)
	}
	if due == nil || due.ID != item.ID {
		t.Fatalf("NextDue = %+v; want item %q", due, item.ID)
	}
	if due.PhoneNumber != "+15550001111" {
		t.Errorf("phone number not joined in: %q", due.PhoneNumber)
	}

	if err := m.MarkCalling(ctx, item.ID, now); err != nil {
		t.Fatalf("MarkCalling: %v", err)
	}
	if due, _ := m.NextDue(ctx, now); due != nil {
		t.Errorf("calling item should not be due; got %+v", due)
	}

	if err := m.SetCallSID(ctx, item.ID, "CA1"); err != nil {
		t.Fatalf("SetCallSID: %v", err)
	}

	// Busy signal: schedule a retry in 5 minutes.
	retryAt := now.Add(5 * time.Minute)
	if err := m.ScheduleRetry(ctx, item.ID, 1, retryAt, "busy"); err != nil {
		t.Fatalf("ScheduleRetry: %v", err)
	}

	if due, _ := m.NextDue(ctx, now); due != nil {
		t.Errorf("retry should not be due before next_retry_at; got %+v", due)
	}
	due, _ = m.NextDue(ctx, retryAt.Add(time.Second))
	if due == nil || due.ID != item.ID {
		t.Fatalf("retry item should be due after next_retry_at")
	}
	if due.AttemptCount != 1 {
		t.Errorf("attempt count = %d; want 1", due.AttemptCount)
	}
	if due.ErrorReason != "busy" {
		t.Errorf("error reason = %q; want busy", due.ErrorReason)
	}

	if err := m.MarkAnswered(ctx, item.ID, 2); err != nil {
		t.Fatalf("MarkAnswered: %v", err)
	}
	if due, _ := m.NextDue(ctx, retryAt.Add(time.Hour)); due != nil {
		t.Errorf("answered item should never be due again")
	}
	answered := m.QueueItem(item.ID)
	if answered.Status != store.QueueAnswered {
		t.Errorf("status = %q; want %q", answered.Status, store.QueueAnswered)
	}
	if answered.AttemptCount != 2 {
		t.Errorf("attempt count = %d; want 2", answered.AttemptCount)
	}
}

func TestMemStore_NextDuePrefersPending(t *testing.T) {
	t.Parallel()

	m := store.NewMemStore()
	ctx := context.Background()
	now := time.Now().UTC()

	c1, _ := m.EnsureContact(ctx, "+15550001111")
	retryItem, _ := m.Enqueue(ctx, c1.ID)
	if err := m.ScheduleRetry(ctx, retryItem.ID, 1, now.Add(-time.Minute), "no-answer"); err != nil {
		t.Fatalf("ScheduleRetry: %v", err)
	}

	c2, _ := m.EnsureContact(ctx, "+15550002222")
	pendingItem, _ := m.Enqueue(ctx, c2.ID)

	due, err := m.NextDue(ctx, now)
	if err != nil {
		t.Fatalf("NextDue: %v", err)
	}
	if due == nil || due.ID != pendingItem.ID {
		t.Errorf("NextDue should prefer the pending item; got %+v", due)
	}
}

func TestMemStore_QueueDepth(t *testing.T) {
	t.Parallel()

	m := store.NewMemStore()
	ctx := context.Background()

	c, _ := m.EnsureContact(ctx, "+15550001111")
	a, _ := m.Enqueue(ctx, c.ID)
	b, _ := m.Enqueue(ctx, c.ID)
	_, _ = m.Enqueue(ctx, c.ID)

	depth, _ := m.QueueDepth(ctx)
	if depth != 3 {
		t.Fatalf("depth = %d; want 3", depth)
	}

	_ = m.ScheduleRetry(ctx, a.ID, 1, time.Now(), "busy")
	_ = m.MarkFailedFinal(ctx, b.ID, 3, "failed")

	depth, _ = m.QueueDepth(ctx)
	if depth != 2 {
		t.Fatalf("depth after retry+fail = %d; want 2 (pending + retry_scheduled)", depth)
	}
}

func TestMemStore_CallLifecycle(t *testing.T) {
	t.Parallel()

	m := store.NewMemStore()
	ctx := context.Background()
	start := time.Now().UTC().Add(-90 * time.Second)

	call := store.CallRecord{
		ID:           "call-1",
		QueueID:      "q-1",
		StreamSID:    "MZ1",
		CallerNumber: "+15550001111",
		AttemptCount: 2,
		Status:       store.CallActive,
		StartTime:    start,
	}
	if err := m.CreateCall(ctx, call); err != nil {
		t.Fatalf("CreateCall: %v", err)
	}
	if err := m.CreateCall(ctx, call); err == nil {
		t.Fatal("duplicate CreateCall should fail")
	}

	if err := m.CreateAttempt(ctx, store.CallAttempt{
		CallID:        "call-1",
		AttemptNumber: 2,
		Status:        store.AttemptInitiated,
		StartedAt:     start,
	}); err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}

	active, err := m.ListCalls(ctx, store.ListCallsOpts{Status: store.CallActive})
	if err != nil {
		t.Fatalf("ListCalls: %v", err)
	}
	if len(active) != 1 || active[0].ID != "call-1" {
		t.Fatalf("active calls = %+v; want call-1", active)
	}

	end := start.Add(90 * time.Second)
	transcript := []types.TranscriptTurn{
		{Role: "assistant", Content: "Hello!", Timestamp: start},
		{Role: "user", Content: "Hi, I have a question.", Timestamp: start.Add(3 * time.Second)},
	}
	err = m.FinalizeCall(ctx, "call-1", store.CallFinalization{
		EndTime:    end,
		Duration:   90,
		Transcript: transcript,
		Summary:    "Caller asked a question.",
		Intent:     "General Inquiry",
	})
	if err != nil {
		t.Fatalf("FinalizeCall: %v", err)
	}
	if err := m.CompleteAttempts(ctx, "call-1", end); err != nil {
		t.Fatalf("CompleteAttempts: %v", err)
	}
	if err := m.InsertSummary(ctx, store.CallSummary{CallID: "call-1", SummaryText: "Caller asked a question."}); err != nil {
		t.Fatalf("InsertSummary: %v", err)
	}

	got, err := m.GetCall(ctx, "call-1")
	if err != nil {
		t.Fatalf("GetCall: %v", err)
	}
	if got.Status != store.CallCompleted {
		t.Errorf("status = %q; want completed", got.Status)
	}
	if got.Duration != 90 {
		t.Errorf("duration = %d; want 90", got.Duration)
	}
	if len(got.Transcript) != 2 {
		t.Errorf("transcript turns = %d; want 2", len(got.Transcript))
	}
	if got.Intent != "General Inquiry" {
		t.Errorf("intent = %q", got.Intent)
	}

	attempts := m.Attempts("call-1")
	if len(attempts) != 1 || attempts[0].Status != store.AttemptCompleted {
		t.Errorf("attempts = %+v; want one completed attempt", attempts)
	}
	if summaries := m.Summaries("call-1"); len(summaries) != 1 {
		t.Errorf("summaries = %+v; want one", summaries)
	}

	if missing, _ := m.GetCall(ctx, "nope"); missing != nil {
		t.Errorf("GetCall for unknown id = %+v; want nil", missing)
	}
}

func TestMemStore_ListCallsPaging(t *testing.T) {
	t.Parallel()

	m := store.NewMemStore()
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		_ = m.CreateCall(ctx, store.CallRecord{
			ID:        string(rune('a' + i)),
			Status:    store.CallCompleted,
			StartTime: base.Add(time.Duration(i) * time.Minute),
		})
	}

	calls, err := m.ListCalls(ctx, store.ListCallsOpts{Offset: 1, Limit: 2})
	if err != nil {
		t.Fatalf("ListCalls: %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("len = %d; want 2", len(calls))
	}
	// Newest first: e, d, c, b, a — offset 1 limit 2 gives d, c.
	if calls[0].ID != "d" || calls[1].ID != "c" {
		t.Errorf("page = [%s %s]; want [d c]", calls[0].ID, calls[1].ID)
	}
}

func TestMemStore_ChunkSearch(t *testing.T) {
	t.Parallel()

	m := store.NewMemStore()
	ctx := context.Background()

	chunks := []store.Chunk{
		{ID: "c1", DocumentID: "doc-1", Content: "Our support line is open 9 to 5.", Embedding: []float32{1, 0, 0}},
		{ID: "c2", DocumentID: "doc-1", Content: "Refunds are processed within 7 days.", Embedding: []float32{0, 1, 0}},
		{ID: "c3", DocumentID: "doc-2", Content: "Shipping takes 3 business days.", Embedding: []float32{0.9, 0.1, 0}},
	}
	for _, c := range chunks {
		if err := m.UpsertChunk(ctx, c); err != nil {
			t.Fatalf("UpsertChunk: %v", err)
		}
	}

	results, err := m.SearchChunks(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("SearchChunks: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len = %d; want 2", len(results))
	}
	if results[0].Chunk.ID != "c1" {
		t.Errorf("closest chunk = %q; want c1", results[0].Chunk.ID)
	}
	if results[1].Chunk.ID != "c3" {
		t.Errorf("second chunk = %q; want c3", results[1].Chunk.ID)
	}
	if results[0].Distance > results[1].Distance {
		t.Error("results not ordered by ascending distance")
	}

	if err := m.DeleteDocument(ctx, "doc-1"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	remaining, _ := m.ListChunks(ctx)
	if len(remaining) != 1 || remaining[0].ID != "c3" {
		t.Errorf("remaining chunks = %+v; want only c3", remaining)
	}
}

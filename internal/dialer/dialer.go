// Package dialer runs the outbound call queue. A single worker drains the
// queue one number at a time: it marks the item as calling, originates the
// call through the carrier with a webhook URL built from the public address,
// then polls the call leg until it reaches a terminal status. Answered calls
// are marked as such; everything else is retried with a delay until the
// attempt budget is exhausted.
package dialer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vocalq/outbound/internal/observe"
	"github.com/vocalq/outbound/internal/store"
	"github.com/vocalq/outbound/pkg/telephony"
)

// ErrAlreadyRunning is returned by Start when the worker is active.
var ErrAlreadyRunning = errors.New("dialer: already running")

// Worker timing defaults.
const (
	defaultRetryDelay   = 5 * time.Minute
	defaultPollInterval = 3 * time.Second
	defaultIdleDelay    = 5 * time.Second
	defaultDialGap      = 10 * time.Second

	// maxReasonLen bounds the stored failure reason.
	maxReasonLen = 200
)

// Status is a snapshot of the worker for the control API.
type Status struct {
	Running        bool   `json:"is_running"`
	CurrentCallSID string `json:"current_call_sid,omitempty"`
	QueueDepth     int    `json:"queue_depth"`
}

// Dialer owns the outbound queue worker.
//
// Dialer is safe for concurrent use. Start is idempotent in the sense that a
// second call while running returns [ErrAlreadyRunning] without spawning a
// second worker.
type Dialer struct {
	queue    store.QueueStore
	carrier  telephony.Carrier
	resolver telephony.PublicURLResolver

	fromNumber  string
	maxAttempts int

	retryDelay   time.Duration
	pollInterval time.Duration
	idleDelay    time.Duration
	dialGap      time.Duration

	logger *slog.Logger

	mu             sync.Mutex
	running        bool
	currentCallSID string
	done           chan struct{}
	wg             sync.WaitGroup
}

// Option is a functional option for configuring a Dialer during construction.
type Option func(*Dialer)

// WithRetryDelay sets how long a failed attempt waits before the next dial.
func WithRetryDelay(d time.Duration) Option {
	return func(dl *Dialer) { dl.retryDelay = d }
}

// WithPollInterval sets how often an in-flight call's status is polled.
func WithPollInterval(d time.Duration) Option {
	return func(dl *Dialer) { dl.pollInterval = d }
}

// WithIdleDelay sets how long the worker sleeps when the queue is empty.
func WithIdleDelay(d time.Duration) Option {
	return func(dl *Dialer) { dl.idleDelay = d }
}

// WithDialGap sets the pause between consecutive queue items.
func WithDialGap(d time.Duration) Option {
	return func(dl *Dialer) { dl.dialGap = d }
}

// WithMaxAttempts sets the attempt budget per queue item.
func WithMaxAttempts(n int) Option {
	return func(dl *Dialer) { dl.maxAttempts = n }
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(dl *Dialer) { dl.logger = l }
}

// New constructs a Dialer. fromNumber is the caller ID for every outbound
// call.
func New(queue store.QueueStore, carrier telephony.Carrier, resolver telephony.PublicURLResolver, fromNumber string, opts ...Option) (*Dialer, error) {
	if queue == nil {
		return nil, fmt.Errorf("dialer: nil queue store")
	}
	if carrier == nil {
		return nil, fmt.Errorf("dialer: nil carrier")
	}
	if resolver == nil {
		return nil, fmt.Errorf("dialer: nil public URL resolver")
	}
	if fromNumber == "" {
		return nil, fmt.Errorf("dialer: empty from number")
	}
	d := &Dialer{
		queue:        queue,
		carrier:      carrier,
		resolver:     resolver,
		fromNumber:   fromNumber,
		maxAttempts:  store.DefaultMaxAttempts,
		retryDelay:   defaultRetryDelay,
		pollInterval: defaultPollInterval,
		idleDelay:    defaultIdleDelay,
		dialGap:      defaultDialGap,
		logger:       slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Enqueue registers phone numbers for outbound dialing. Each number becomes
// (or reuses) a contact and gets a fresh pending queue item. The created
// items are returned in input order.
func (d *Dialer) Enqueue(ctx context.Context, phoneNumbers []string) ([]store.QueueItem, error) {
	items := make([]store.QueueItem, 0, len(phoneNumbers))
	for _, number := range phoneNumbers {
		if number == "" {
			return nil, fmt.Errorf("dialer: empty phone number")
		}
		contact, err := d.queue.EnsureContact(ctx, number)
		if err != nil {
			return nil, fmt.Errorf("dialer: ensure contact %s: %w", number, err)
		}
		item, err := d.queue.Enqueue(ctx, contact.ID)
		if err != nil {
			return nil, fmt.Errorf("dialer: enqueue %s: %w", number, err)
		}
		item.PhoneNumber = number
		items = append(items, item)
	}
	d.logger.Info("numbers enqueued", "count", len(items))
	return items, nil
}

// Start launches the worker goroutine. It returns ErrAlreadyRunning if the
// worker is already active. The worker stops when ctx is cancelled or Stop is
// called.
func (d *Dialer) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return ErrAlreadyRunning
	}
	d.running = true
	d.done = make(chan struct{})

	d.wg.Add(1)
	go d.run(ctx, d.done)

	d.logger.Info("dialer worker started")
	return nil
}

// Stop signals the worker to exit and waits for it to finish. Stopping a
// stopped dialer is a no-op.
func (d *Dialer) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	done := d.done
	d.mu.Unlock()

	close(done)
	d.wg.Wait()
	d.logger.Info("dialer worker stopped")
}

// Status reports whether the worker is running, the SID of the call currently
// being dialed and how many items are still waiting.
func (d *Dialer) Status(ctx context.Context) (Status, error) {
	depth, err := d.queue.QueueDepth(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("dialer: queue depth: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return Status{
		Running:        d.running,
		CurrentCallSID: d.currentCallSID,
		QueueDepth:     depth,
	}, nil
}

// run is the worker loop. One item at a time, a pause between items, a longer
// sleep when the queue is idle.
func (d *Dialer) run(ctx context.Context, done <-chan struct{}) {
	defer d.wg.Done()
	defer func() {
		d.mu.Lock()
		d.running = false
		d.currentCallSID = ""
		d.mu.Unlock()
	}()

	for {
		if stopped(ctx, done) {
			return
		}

		item, err := d.queue.NextDue(ctx, time.Now().UTC())
		if err != nil {
			d.logger.Error("failed to fetch next queue item", "error", err)
			if sleep(ctx, done, d.idleDelay) {
				return
			}
			continue
		}
		if item == nil {
			if sleep(ctx, done, d.idleDelay) {
				return
			}
			continue
		}

		d.dial(ctx, done, item)

		if sleep(ctx, done, d.dialGap) {
			return
		}
	}
}

// dial handles one queue item end to end: originate, poll to a terminal
// status, record the outcome.
func (d *Dialer) dial(ctx context.Context, done <-chan struct{}, item *store.QueueItem) {
	attempt := item.AttemptCount + 1
	logger := d.logger.With("queue_id", item.ID, "number", item.PhoneNumber, "attempt", attempt)

	// An unreachable public URL is our infrastructure, not the callee. The
	// item stays untouched and the worker backs off; the attempt budget is
	// only spent on calls that were actually placed.
	publicURL, err := d.resolver.PublicURL(ctx)
	if err != nil {
		logger.Warn("public URL unavailable, backing off", "error", err)
		sleep(ctx, done, d.idleDelay)
		return
	}
	webhookURL := fmt.Sprintf("%s/api/v1/calls/twilio?queue_id=%s&attempt_count=%d", publicURL, item.ID, attempt)

	if err := d.queue.MarkCalling(ctx, item.ID, time.Now().UTC()); err != nil {
		logger.Error("failed to mark item calling", "error", err)
		return
	}

	sid, err := d.carrier.PlaceCall(ctx, telephony.PlaceCallParams{
		To:       item.PhoneNumber,
		From:     d.fromNumber,
		TwiMLURL: webhookURL,
	})
	if err != nil {
		logger.Error("failed to place call", "error", err)
		d.recordFailure(ctx, logger, item.ID, attempt, err.Error())
		return
	}
	logger.Info("call placed", "call_sid", sid)

	if err := d.queue.SetCallSID(ctx, item.ID, sid); err != nil {
		logger.Error("failed to record call sid", "error", err)
	}

	d.mu.Lock()
	d.currentCallSID = sid
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.currentCallSID = ""
		d.mu.Unlock()
	}()

	status := d.pollUntilTerminal(ctx, done, logger, sid)
	observe.DialAttempt(status)

	if telephony.IsAnsweredStatus(status) {
		if err := d.queue.MarkAnswered(ctx, item.ID, attempt); err != nil {
			logger.Error("failed to mark item answered", "error", err)
		}
		logger.Info("call answered")
		return
	}
	logger.Info("call not answered", "status", status)
	d.recordFailure(ctx, logger, item.ID, attempt, "call "+status)
}

// pollUntilTerminal polls the carrier until the call leg finishes. A failed
// poll abandons the wait with "unknown" so one unreachable call leg cannot
// wedge the worker. Cancellation returns the last known status.
func (d *Dialer) pollUntilTerminal(ctx context.Context, done <-chan struct{}, logger *slog.Logger, sid string) string {
	status := telephony.StatusUnknown
	for {
		if sleep(ctx, done, d.pollInterval) {
			return status
		}
		s, err := d.carrier.CallStatus(ctx, sid)
		if err != nil {
			logger.Warn("status poll failed, abandoning call", "error", err)
			return telephony.StatusUnknown
		}
		status = s
		if telephony.IsTerminalStatus(status) {
			return status
		}
	}
}

// recordFailure schedules a retry or, when the attempt budget is spent, marks
// the item as permanently failed.
func (d *Dialer) recordFailure(ctx context.Context, logger *slog.Logger, id string, attempt int, reason string) {
	reason = truncateReason(reason)
	if attempt >= d.maxAttempts {
		if err := d.queue.MarkFailedFinal(ctx, id, attempt, reason); err != nil {
			logger.Error("failed to mark item failed", "error", err)
		}
		logger.Info("attempt budget exhausted", "reason", reason)
		return
	}
	retryAt := time.Now().UTC().Add(d.retryDelay)
	if err := d.queue.ScheduleRetry(ctx, id, attempt, retryAt, reason); err != nil {
		logger.Error("failed to schedule retry", "error", err)
	}
	logger.Info("retry scheduled", "retry_at", retryAt, "reason", reason)
}

func truncateReason(reason string) string {
	if len(reason) > maxReasonLen {
		return reason[:maxReasonLen]
	}
	return reason
}

// stopped reports whether the worker should exit.
func stopped(ctx context.Context, done <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return true
	case <-done:
		return true
	default:
		return false
	}
}

// sleep waits for d or returns true early if the worker should exit.
func sleep(ctx context.Context, done <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return true
	case <-done:
		return true
	case <-t.C:
		return false
	}
}

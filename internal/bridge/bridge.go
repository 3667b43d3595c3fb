// Package bridge proxies a live telephony media stream to a speech-to-speech
// AI session: inbound mu-law audio is transcoded and forwarded to the model,
// model audio is transcoded back to the carrier, and local voice activity
// detection triggers barge-in. When the stream ends the call record is
// finalized with its transcript, duration and an LLM-generated summary.
package bridge

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vocalq/outbound/internal/observe"
	"github.com/vocalq/outbound/internal/store"
	"github.com/vocalq/outbound/internal/summary"
	"github.com/vocalq/outbound/pkg/audio"
	"github.com/vocalq/outbound/pkg/provider/s2s"
	"github.com/vocalq/outbound/pkg/provider/vad"
	"github.com/vocalq/outbound/pkg/telephony"
	"github.com/vocalq/outbound/pkg/types"
)

// telephonySampleRate is the PCM rate of carrier media streams.
const telephonySampleRate = 8000

// VAD hysteresis thresholds for inbound caller audio.
const (
	vadSpeechThreshold  = 0.5
	vadSilenceThreshold = 0.3
)

// errStreamEnded cancels the sibling loops when one side of the bridge
// finishes. It is a normal outcome, not a failure.
var errStreamEnded = errors.New("stream ended")

// Config assembles the collaborators a Bridge needs.
type Config struct {
	// Provider opens speech-to-speech sessions.
	Provider s2s.Provider

	// VAD creates per-call speech detectors. Only used when the provider
	// reports ExplicitTurnDetection; implicit providers handle barge-in
	// server-side. May be nil.
	VAD vad.Engine

	// Calls persists call records, attempts and summaries. May be nil, in
	// which case calls are bridged without persistence.
	Calls store.CallStore

	// Summarizer produces the post-call summary. May be nil.
	Summarizer *summary.Summarizer

	// Tools and ToolHandler wire agent function calls (the knowledge base).
	Tools       []types.ToolDefinition
	ToolHandler s2s.ToolCallHandler

	// Voice, Instructions and Greeting configure the agent persona. Empty
	// Instructions and Greeting fall back to the package defaults.
	Voice        types.VoiceProfile
	Instructions string
	Greeting     string

	Logger *slog.Logger
}

// Bridge runs one call per invocation of [Bridge.Run]. It is safe to run
// multiple calls concurrently from the same Bridge.
type Bridge struct {
	cfg Config
}

// New validates cfg and creates a Bridge.
func New(cfg Config) (*Bridge, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("bridge: nil provider")
	}
	if cfg.Instructions == "" {
		cfg.Instructions = DefaultInstructions
	}
	if cfg.Greeting == "" {
		cfg.Greeting = DefaultGreeting
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Bridge{cfg: cfg}, nil
}

// call holds the state of a single bridged call.
type call struct {
	bridge *Bridge
	logger *slog.Logger

	conn    *telephony.StreamConn
	session s2s.SessionHandle

	// sendMu orders writes to the carrier. Barge-in holds it across the
	// clear frame and the session interrupt so no stale audio frame can slip
	// in between them.
	sendMu sync.Mutex

	callID       string
	queueID      string
	callerNumber string
	attemptCount int
	startTime    time.Time

	inResampler  *audio.Resampler
	outResampler *audio.Resampler
	vadSession   vad.SessionHandle

	transcriptMu sync.Mutex
	transcript   []types.TranscriptTurn

	finalizeOnce sync.Once
}

// Run bridges one carrier media stream to a fresh speech-to-speech session.
// It blocks until the stream ends or ctx is cancelled, then finalizes the
// call record. The returned error reflects the bridging loops; finalization
// is best-effort and only logged.
func (b *Bridge) Run(ctx context.Context, conn *telephony.StreamConn) error {
	c := &call{
		bridge: b,
		conn:   conn,
		callID: uuid.NewString(),
	}
	c.logger = b.cfg.Logger.With("call_id", c.callID)

	// Dial the provider while the carrier handshake is still in flight; the
	// session is usually ready by the time the start frame lands, which takes
	// the connect latency out of the greeting.
	connectCtx, cancelConnect := context.WithCancel(ctx)
	defer cancelConnect()
	connErr := make(chan error, 1)
	go func() { connErr <- c.connect(connectCtx) }()

	start, err := c.awaitStart(ctx)
	if err != nil {
		cancelConnect()
		if cerr := <-connErr; cerr == nil {
			c.session.Close()
		}
		return err
	}
	c.queueID = start.CustomParameters["queueId"]
	c.callerNumber = start.CustomParameters["callerNumber"]
	c.attemptCount = 1
	if n, err := strconv.Atoi(start.CustomParameters["attemptCount"]); err == nil && n > 0 {
		c.attemptCount = n
	}
	c.startTime = time.Now().UTC()

	c.logger.Info("stream started",
		"stream_sid", conn.StreamSid(),
		"queue_id", c.queueID,
		"caller", c.callerNumber,
		"attempt", c.attemptCount)

	if err := <-connErr; err != nil {
		return err
	}
	defer c.session.Close()

	// Persist the active call off the hot path; the greeting must not wait
	// on the database.
	go c.persistStart()

	observe.CallStarted()
	defer func() {
		c.finalize()
		observe.CallFinished(time.Since(c.startTime))
	}()

	if err := c.session.StartConversation(); err != nil {
		return fmt.Errorf("bridge: start conversation: %w", err)
	}
	if err := c.session.EnableTurnDetection(); err != nil {
		return fmt.Errorf("bridge: enable turn detection: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.inboundLoop(gctx) })
	g.Go(func() error { return c.outboundLoop(gctx) })
	g.Go(func() error { return c.transcriptLoop(gctx) })

	err = g.Wait()
	if errors.Is(err, errStreamEnded) || errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// awaitStart consumes stream events until the start frame arrives.
func (c *call) awaitStart(ctx context.Context) (*telephony.StartPayload, error) {
	for {
		evt, err := c.conn.ReadEvent(ctx)
		if err != nil {
			return nil, fmt.Errorf("bridge: await start: %w", err)
		}
		switch evt.Event {
		case telephony.EventStart:
			if evt.Start == nil {
				return nil, fmt.Errorf("bridge: start event without payload")
			}
			return evt.Start, nil
		case telephony.EventStop, telephony.EventClose:
			return nil, fmt.Errorf("bridge: stream ended before start")
		}
	}
}

// connect opens the speech-to-speech session and wires resamplers, VAD and
// callbacks according to the provider's capabilities.
func (c *call) connect(ctx context.Context) error {
	cfg := c.bridge.cfg
	caps := cfg.Provider.Capabilities()

	var err error
	c.inResampler, err = audio.NewResampler(telephonySampleRate, caps.InputSampleRate)
	if err != nil {
		return fmt.Errorf("bridge: inbound resampler: %w", err)
	}
	c.outResampler, err = audio.NewResampler(caps.OutputSampleRate, telephonySampleRate)
	if err != nil {
		return fmt.Errorf("bridge: outbound resampler: %w", err)
	}

	// Local VAD drives barge-in only for providers that leave turn taking to
	// us; implicit providers interrupt themselves and report it.
	if caps.ExplicitTurnDetection && cfg.VAD != nil {
		c.vadSession, err = cfg.VAD.NewSession(vad.Config{
			SampleRate:       telephonySampleRate,
			SpeechThreshold:  vadSpeechThreshold,
			SilenceThreshold: vadSilenceThreshold,
		})
		if err != nil {
			return fmt.Errorf("bridge: vad session: %w", err)
		}
	}

	session, err := cfg.Provider.Connect(ctx, s2s.SessionConfig{
		Voice:        cfg.Voice,
		Instructions: cfg.Instructions,
		Greeting:     cfg.Greeting,
		Tools:        cfg.Tools,
	})
	if err != nil {
		return fmt.Errorf("bridge: connect session: %w", err)
	}
	c.session = session

	if cfg.ToolHandler != nil {
		session.OnToolCall(cfg.ToolHandler)
	}
	session.OnInterrupted(func() {
		c.bargeIn(context.Background())
	})
	session.OnError(func(err error) {
		c.logger.Warn("session error", "error", err)
	})
	return nil
}

// persistStart records the active call and its attempt. Failures are logged;
// a database outage must not take down a live call.
func (c *call) persistStart() {
	calls := c.bridge.cfg.Calls
	if calls == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := calls.CreateCall(ctx, store.CallRecord{
		ID:           c.callID,
		QueueID:      c.queueID,
		StreamSID:    c.conn.StreamSid(),
		CallerNumber: c.callerNumber,
		AttemptCount: c.attemptCount,
		Status:       store.CallActive,
		StartTime:    c.startTime,
	})
	if err != nil {
		c.logger.Error("failed to insert call record", "error", err)
		return
	}
	err = calls.CreateAttempt(ctx, store.CallAttempt{
		CallID:        c.callID,
		AttemptNumber: c.attemptCount,
		Status:        store.AttemptInitiated,
		StartedAt:     c.startTime,
	})
	if err != nil {
		c.logger.Error("failed to insert attempt record", "error", err)
	}
}

// inboundLoop reads carrier media frames, runs VAD for barge-in, transcodes
// mu-law to the session's PCM rate and forwards it. It returns errStreamEnded
// when the stream stops or closes so the sibling loops unwind.
func (c *call) inboundLoop(ctx context.Context) error {
	for {
		evt, err := c.conn.ReadEvent(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Carrier dropped the socket; treat it like a stop.
			c.logger.Info("stream disconnected", "error", err)
			return errStreamEnded
		}

		switch evt.Event {
		case telephony.EventMedia:
			if evt.Media == nil {
				continue
			}
			if err := c.handleMedia(ctx, evt.Media.Payload); err != nil {
				return err
			}
		case telephony.EventStop, telephony.EventClose:
			c.logger.Info("stream ended", "event", evt.Event)
			return errStreamEnded
		}
	}
}

func (c *call) handleMedia(ctx context.Context, payload string) error {
	mulaw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		c.logger.Warn("dropping undecodable media frame", "error", err)
		return nil
	}
	pcm := audio.DecodeMuLaw(mulaw)

	if c.vadSession != nil {
		evt, err := c.vadSession.ProcessFrame(pcm)
		if err != nil {
			c.logger.Warn("vad frame error", "error", err)
		} else if evt.Type == vad.SpeechStart {
			c.logger.Info("caller speech detected", "probability", evt.Probability)
			c.bargeIn(ctx)
		}
	}

	upsampled, err := c.inResampler.Process(pcm)
	if err != nil {
		return fmt.Errorf("bridge: resample inbound: %w", err)
	}
	if err := c.session.SendAudio(upsampled); err != nil {
		return fmt.Errorf("bridge: send audio: %w", err)
	}
	observe.AudioForwarded("inbound", len(mulaw))
	return nil
}

// outboundLoop forwards session audio to the carrier as base64 mu-law frames.
// It exits when the session's audio channel closes.
func (c *call) outboundLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-c.session.Audio():
			if !ok {
				return errStreamEnded
			}
			downsampled, err := c.outResampler.Process(chunk)
			if err != nil {
				return fmt.Errorf("bridge: resample outbound: %w", err)
			}
			mulaw, err := audio.EncodeMuLaw(downsampled)
			if err != nil {
				return fmt.Errorf("bridge: encode outbound: %w", err)
			}

			c.sendMu.Lock()
			err = c.conn.SendMedia(ctx, base64.StdEncoding.EncodeToString(mulaw))
			c.sendMu.Unlock()
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Info("carrier write failed", "error", err)
				return errStreamEnded
			}
			observe.AudioForwarded("outbound", len(mulaw))
		}
	}
}

// transcriptLoop accumulates transcript turns until the session closes its
// channel. On cancellation it drains any buffered turns first so the final
// utterances make it into the call record.
func (c *call) transcriptLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case turn, ok := <-c.session.Transcripts():
					if !ok {
						return ctx.Err()
					}
					c.appendTurn(turn)
				default:
					return ctx.Err()
				}
			}
		case turn, ok := <-c.session.Transcripts():
			if !ok {
				return nil
			}
			c.appendTurn(turn)
		}
	}
}

func (c *call) appendTurn(turn types.TranscriptTurn) {
	c.transcriptMu.Lock()
	c.transcript = append(c.transcript, turn)
	c.transcriptMu.Unlock()
}

// bargeIn cancels in-flight agent speech: the carrier's buffered audio is
// cleared, the session's response is interrupted and any chunks already
// queued on the session's audio channel are dropped, all under sendMu so a
// racing outbound frame cannot re-enqueue stale audio.
func (c *call) bargeIn(ctx context.Context) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if err := c.conn.SendClear(ctx); err != nil {
		c.logger.Warn("failed to clear carrier buffer", "error", err)
	}
	if err := c.session.Interrupt(); err != nil {
		c.logger.Warn("failed to interrupt session", "error", err)
	}

	// Chunks the session queued before the interrupt are stale agent speech.
	// The outbound loop is blocked on sendMu at most one chunk deep, so
	// draining here keeps them from reaching the caller after the clear.
drain:
	for {
		select {
		case _, ok := <-c.session.Audio():
			if !ok {
				break drain
			}
		default:
			break drain
		}
	}

	observe.BargeIn()
}

// snapshotTranscript returns a copy of the accumulated transcript.
func (c *call) snapshotTranscript() []types.TranscriptTurn {
	c.transcriptMu.Lock()
	defer c.transcriptMu.Unlock()
	out := make([]types.TranscriptTurn, len(c.transcript))
	copy(out, c.transcript)
	return out
}

// finalize completes the call record: duration, transcript, summary, the
// call_summaries row and the attempt status. Every step is best-effort; a
// failure is logged and the remaining steps still run.
func (c *call) finalize() {
	c.finalizeOnce.Do(func() {
		if c.vadSession != nil {
			_ = c.vadSession.Close()
		}

		calls := c.bridge.cfg.Calls
		if calls == nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		endTime := time.Now().UTC()
		duration := int(endTime.Sub(c.startTime).Seconds())
		transcript := c.snapshotTranscript()

		summaryText := summary.NoTranscript
		intent := summary.DefaultIntent
		if s := c.bridge.cfg.Summarizer; s != nil {
			summaryText = s.Summarize(ctx, transcript)
			intent = s.Intent(transcript)
		}

		err := calls.FinalizeCall(ctx, c.callID, store.CallFinalization{
			EndTime:    endTime,
			Duration:   duration,
			Transcript: transcript,
			Summary:    summaryText,
			Intent:     intent,
		})
		if err != nil {
			c.logger.Error("failed to finalize call record", "error", err)
		}
		if err := calls.InsertSummary(ctx, store.CallSummary{
			CallID:      c.callID,
			SummaryText: summaryText,
		}); err != nil {
			c.logger.Error("failed to insert call summary", "error", err)
		}
		if err := calls.CompleteAttempts(ctx, c.callID, endTime); err != nil {
			c.logger.Error("failed to complete attempts", "error", err)
		}

		c.logger.Info("call finalized",
			"duration_s", duration,
			"transcript_turns", len(transcript))
	})
}

// Package s2s defines the Provider interface for realtime speech-to-speech AI
// backends.
//
// An s2s provider wraps a real-time voice AI service that accepts raw audio
// input and returns synthesised audio output in a single, stateful session.
// The two shipped variants — the OpenAI Realtime API and Google's Gemini Live
// API — differ in handshake and event shapes but conform to this one contract,
// so the call bridge (interruption, tool dispatch, transcript capture) is
// written once and stays vendor-agnostic.
//
// The central abstraction is SessionHandle: a bidirectional, multiplexed
// channel that carries audio, transcripts, and tool calls concurrently.
// Sessions live for the duration of one phone call.
//
// All implementations must be safe for concurrent use.
package s2s

import (
	"context"

	"github.com/vocalq/outbound/pkg/types"
)

// ToolCallHandler is a callback invoked by the session whenever the model
// requests a tool call. The handler receives the tool name and a JSON-encoded
// arguments string and must return either a result string (injected back into
// the session as tool output) or an error.
//
// The handler may be called from the session's internal receive goroutine —
// implementors must not call blocking session methods from within the handler
// to avoid deadlocks.
type ToolCallHandler func(name string, args string) (string, error)

// SessionConfig is the initial configuration for a new session.
type SessionConfig struct {
	// Voice defines the voice the model will use for synthesised speech.
	Voice types.VoiceProfile

	// Instructions is the system-level prompt defining the agent's persona and
	// behavioural constraints.
	Instructions string

	// Greeting is the opening line the agent speaks when StartConversation is
	// called. Variants deliver it differently (a response.create instruction
	// for OpenAI, a synthetic user turn for Gemini) but the caller hears the
	// same thing.
	Greeting string

	// Tools is the set of tool definitions offered to the model. Tool calls
	// are surfaced via the handler set with OnToolCall.
	Tools []types.ToolDefinition
}

// Capabilities describes static properties of an s2s provider. The values are
// constant for the lifetime of the Provider instance.
type Capabilities struct {
	// InputSampleRate is the PCM sample rate in Hz the session expects from
	// SendAudio.
	InputSampleRate int

	// OutputSampleRate is the PCM sample rate in Hz of chunks emitted on the
	// Audio channel.
	OutputSampleRate int

	// ExplicitTurnDetection reports whether the caller must invoke
	// EnableTurnDetection before audio is interpreted as conversational turns.
	// When false, the provider streams bidirectionally and detects end-of-turn
	// implicitly.
	ExplicitTurnDetection bool

	// Voices lists the voice profiles available for this provider.
	Voices []types.VoiceProfile
}

// SessionHandle represents an open s2s session. It is an interface so that
// test code can supply mock implementations without a live provider
// connection.
//
// The session is the hot path of the call bridge — every method must return
// quickly. Audio I/O is channel-based to avoid blocking the audio loop.
// All methods must be safe for concurrent use.
//
// Callers must call Close when the session is no longer needed.
type SessionHandle interface {
	// SendAudio delivers a raw PCM audio chunk to the provider. The chunk must
	// be mono int16 at Capabilities().InputSampleRate. Returns an error if the
	// session is closed or the provider cannot accept the chunk.
	SendAudio(chunk []byte) error

	// Audio returns a read-only channel that emits raw PCM chunks as the model
	// synthesises its spoken response. The channel is closed when the session
	// ends; call Err afterwards to check whether it ended cleanly. Consumers
	// must drain promptly to avoid stalling the provider's receive loop.
	Audio() <-chan []byte

	// Transcripts returns a read-only channel emitting TranscriptTurn values
	// for both caller speech (as recognised by the model) and agent responses,
	// in the order the provider reports them. Closed when the session ends.
	Transcripts() <-chan types.TranscriptTurn

	// OnToolCall registers a handler invoked whenever the model requests a
	// tool call. Only one handler can be active; passing nil clears it.
	OnToolCall(handler ToolCallHandler)

	// OnInterrupted registers a handler invoked when the provider itself
	// detects caller barge-in (server-side speech start or an explicit
	// interrupted signal). The bridge uses this to flush buffered playback.
	OnInterrupted(handler func())

	// OnError registers a callback for non-fatal error events from the
	// provider.
	OnError(handler func(error))

	// StartConversation asks the model to speak the configured greeting.
	// Call after the telephony stream is established so the first words are
	// not cut off.
	StartConversation() error

	// EnableTurnDetection activates server-side end-of-turn detection on
	// providers with ExplicitTurnDetection. On implicit providers it is a
	// no-op returning nil.
	EnableTurnDetection() error

	// Interrupt cancels the in-flight model response and discards any audio
	// the provider has queued. Providers whose protocol handles barge-in
	// natively may treat this as a no-op.
	Interrupt() error

	// Err returns the error that caused the Audio channel to close
	// prematurely, or nil if the session ended cleanly.
	Err() error

	// Close terminates the session, releases all resources, and closes the
	// Audio and Transcripts channels. Calling Close more than once is safe
	// and returns nil.
	Close() error
}

// Provider is the abstraction over any realtime speech-to-speech backend.
//
// Implementations must be safe for concurrent use; the server may open one
// session per active call.
type Provider interface {
	// Connect establishes a new session with the given configuration. The
	// returned SessionHandle is ready to accept audio immediately. The caller
	// owns the handle and is responsible for calling Close.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)

	// Capabilities returns static metadata about this provider.
	Capabilities() Capabilities
}

// Package vad defines the Engine interface for speech activity detection
// backends.
//
// A VAD engine wraps a frame-level speech detector and surfaces it as a
// stateful, per-call session. Each session maintains its own internal state
// (noise floor, hysteresis position) so that concurrent calls are processed
// independently.
//
// VAD is synchronous by design: ProcessFrame returns immediately with a
// detection result, making it suitable for the low-latency inbound audio loop
// that triggers barge-in.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle must not be shared across goroutines.
package vad

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// PCM frames passed to ProcessFrame. Telephony audio is 8000.
	SampleRate int

	// SpeechThreshold is the probability above which an inactive session
	// transitions to speech and emits VADSpeechStart. Typical: 0.5.
	SpeechThreshold float64

	// SilenceThreshold is the probability below which an active session
	// transitions back to silence. Probabilities between the two thresholds
	// hold the previous state, preventing flapping on ambiguous frames.
	// Must be ≤ SpeechThreshold. Typical: 0.3.
	SilenceThreshold float64
}

// Event is the detection result for a single audio frame.
type Event struct {
	// Type is the detection result after hysteresis.
	Type EventType

	// Probability is the raw speech probability score (0.0–1.0).
	Probability float64
}

// EventType enumerates hysteresis states.
type EventType int

const (
	// SpeechStart indicates speech has just begun. Emitted exactly once per
	// utterance; the bridge fires its interruption on this event.
	SpeechStart EventType = iota

	// SpeechContinue indicates ongoing speech.
	SpeechContinue

	// SpeechEnd indicates speech has just ended.
	SpeechEnd

	// Silence indicates no speech detected.
	Silence
)

// SessionHandle represents an active VAD session for a single call's inbound
// audio. It is an interface so that test code can supply mock implementations.
type SessionHandle interface {
	// ProcessFrame analyses one frame of little-endian int16 mono PCM at the
	// configured sample rate and returns the detection result. It must not
	// block; it is called inline in the audio loop.
	ProcessFrame(frame []byte) (Event, error)

	// Reset clears accumulated state (noise floor, hysteresis) without
	// closing the session.
	Reset()

	// Close releases session resources. Calling Close more than once is safe
	// and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions.
//
// Implementations must be safe for concurrent use: multiple goroutines may
// call NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a new VAD session. Returns an error if the
	// configuration is invalid.
	NewSession(cfg Config) (SessionHandle, error)
}

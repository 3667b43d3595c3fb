// Package energy implements the vad.Engine interface with a short-term
// RMS-energy detector over an adaptive noise floor.
//
// The detector tracks an exponential moving noise floor during non-speech
// frames and scores each frame by the ratio of its RMS energy to that floor,
// squashed into a [0,1] probability. It has no model weights to load, runs in
// microseconds per frame, and behaves predictably on 8 kHz telephony audio.
// The hysteresis thresholds come from the session Config; the session emits
// SpeechStart exactly once per utterance.
package energy

import (
	"fmt"
	"math"

	"github.com/vocalq/outbound/pkg/provider/vad"
)

// Compile-time interface checks.
var (
	_ vad.Engine        = (*Engine)(nil)
	_ vad.SessionHandle = (*session)(nil)
)

const (
	// initialNoiseFloor seeds the floor before any frames arrive. Telephony
	// line noise typically sits well above digital silence.
	initialNoiseFloor = 120.0

	// floorAlpha is the smoothing factor for noise floor adaptation on
	// non-speech frames.
	floorAlpha = 0.05

	// minNoiseFloor prevents the floor from collapsing on digital silence,
	// which would make any non-zero frame look like speech.
	minNoiseFloor = 40.0
)

// Engine creates energy-based VAD sessions.
type Engine struct{}

// New returns a new energy VAD engine.
func New() *Engine { return &Engine{} }

// NewSession implements vad.Engine.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("energy vad: sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.SpeechThreshold <= 0 || cfg.SpeechThreshold > 1 {
		return nil, fmt.Errorf("energy vad: speech threshold %v out of (0,1]", cfg.SpeechThreshold)
	}
	if cfg.SilenceThreshold < 0 || cfg.SilenceThreshold > cfg.SpeechThreshold {
		return nil, fmt.Errorf("energy vad: silence threshold %v must be in [0, %v]", cfg.SilenceThreshold, cfg.SpeechThreshold)
	}
	return &session{cfg: cfg, noiseFloor: initialNoiseFloor}, nil
}

type session struct {
	cfg        vad.Config
	noiseFloor float64
	active     bool
	closed     bool
}

// ProcessFrame implements vad.SessionHandle.
func (s *session) ProcessFrame(frame []byte) (vad.Event, error) {
	if s.closed {
		return vad.Event{}, fmt.Errorf("energy vad: session closed")
	}
	if len(frame)%2 != 0 {
		return vad.Event{}, fmt.Errorf("energy vad: odd byte count %d", len(frame))
	}
	if len(frame) == 0 {
		return vad.Event{Type: s.holdState(), Probability: 0}, nil
	}

	rms := rms16(frame)
	prob := s.probability(rms)

	var typ vad.EventType
	switch {
	case prob > s.cfg.SpeechThreshold:
		if s.active {
			typ = vad.SpeechContinue
		} else {
			typ = vad.SpeechStart
			s.active = true
		}
	case prob < s.cfg.SilenceThreshold:
		if s.active {
			typ = vad.SpeechEnd
			s.active = false
		} else {
			typ = vad.Silence
		}
		// Adapt the noise floor only while not in speech.
		s.noiseFloor = (1-floorAlpha)*s.noiseFloor + floorAlpha*rms
		if s.noiseFloor < minNoiseFloor {
			s.noiseFloor = minNoiseFloor
		}
	default:
		// Ambiguous band: hold the previous state.
		typ = s.holdState()
	}

	return vad.Event{Type: typ, Probability: prob}, nil
}

func (s *session) holdState() vad.EventType {
	if s.active {
		return vad.SpeechContinue
	}
	return vad.Silence
}

// probability maps the energy-to-floor ratio onto [0,1]. A frame at the noise
// floor scores near zero; a frame 8x the floor saturates near one.
func (s *session) probability(rms float64) float64 {
	ratio := rms / s.noiseFloor
	if ratio <= 1 {
		return 0
	}
	// log2 ratio of 3 (8x the floor) maps to 1.0.
	p := math.Log2(ratio) / 3
	if p > 1 {
		p = 1
	}
	return p
}

// Reset implements vad.SessionHandle.
func (s *session) Reset() {
	s.noiseFloor = initialNoiseFloor
	s.active = false
}

// Close implements vad.SessionHandle.
func (s *session) Close() error {
	s.closed = true
	return nil
}

// rms16 computes the root-mean-square of little-endian int16 samples.
func rms16(pcm []byte) float64 {
	n := len(pcm) / 2
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(pcm[i*2]) | int16(pcm[i*2+1])<<8)
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

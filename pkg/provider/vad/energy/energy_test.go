package energy

import (
	"testing"

	"github.com/vocalq/outbound/pkg/provider/vad"
)

func testConfig() vad.Config {
	return vad.Config{
		SampleRate:       8000,
		SpeechThreshold:  0.5,
		SilenceThreshold: 0.3,
	}
}

// frame builds a constant-amplitude PCM frame of n samples.
func frame(amplitude int16, n int) []byte {
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		out[i*2] = byte(amplitude)
		out[i*2+1] = byte(amplitude >> 8)
	}
	return out
}

func TestNewSession_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  vad.Config
	}{
		{"zero sample rate", vad.Config{SpeechThreshold: 0.5, SilenceThreshold: 0.3}},
		{"speech threshold zero", vad.Config{SampleRate: 8000, SilenceThreshold: 0.3}},
		{"speech threshold above one", vad.Config{SampleRate: 8000, SpeechThreshold: 1.5, SilenceThreshold: 0.3}},
		{"silence above speech", vad.Config{SampleRate: 8000, SpeechThreshold: 0.3, SilenceThreshold: 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New().NewSession(tt.cfg); err == nil {
				t.Error("NewSession: want error")
			}
		})
	}
}

func TestProcessFrame_SpeechStartOncePerUtterance(t *testing.T) {
	sess, err := New().NewSession(testConfig())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	loud := frame(12000, 160)

	ev, err := sess.ProcessFrame(loud)
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if ev.Type != vad.SpeechStart {
		t.Fatalf("first loud frame = %v, want SpeechStart", ev.Type)
	}
	if ev.Probability <= 0.5 {
		t.Errorf("probability = %v, want > 0.5", ev.Probability)
	}

	ev, err = sess.ProcessFrame(loud)
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if ev.Type != vad.SpeechContinue {
		t.Errorf("second loud frame = %v, want SpeechContinue", ev.Type)
	}
}

func TestProcessFrame_SpeechEndOnSilence(t *testing.T) {
	sess, err := New().NewSession(testConfig())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	if _, err := sess.ProcessFrame(frame(12000, 160)); err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}

	ev, err := sess.ProcessFrame(frame(0, 160))
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if ev.Type != vad.SpeechEnd {
		t.Fatalf("quiet frame after speech = %v, want SpeechEnd", ev.Type)
	}

	ev, err = sess.ProcessFrame(frame(0, 160))
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if ev.Type != vad.Silence {
		t.Errorf("second quiet frame = %v, want Silence", ev.Type)
	}
}

func TestProcessFrame_QuietAudioIsSilence(t *testing.T) {
	sess, err := New().NewSession(testConfig())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	for i := 0; i < 5; i++ {
		ev, err := sess.ProcessFrame(frame(50, 160))
		if err != nil {
			t.Fatalf("ProcessFrame: %v", err)
		}
		if ev.Type != vad.Silence {
			t.Fatalf("frame %d: %v, want Silence", i, ev.Type)
		}
	}
}

func TestProcessFrame_NoiseFloorAdapts(t *testing.T) {
	sess, err := New().NewSession(testConfig())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	// A moderately energetic frame reads as speech against the initial floor.
	ev, err := sess.ProcessFrame(frame(2000, 160))
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if ev.Type != vad.SpeechStart {
		t.Fatalf("against initial floor: %v, want SpeechStart", ev.Type)
	}

	// Feed sustained line noise at that level with speech ended; the floor
	// rises until the same level no longer clears the speech threshold.
	if _, err := sess.ProcessFrame(frame(0, 160)); err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	for i := 0; i < 200; i++ {
		if _, err := sess.ProcessFrame(frame(40, 160)); err != nil {
			t.Fatalf("ProcessFrame: %v", err)
		}
	}
	var last vad.Event
	for i := 0; i < 3; i++ {
		last, err = sess.ProcessFrame(frame(100, 160))
		if err != nil {
			t.Fatalf("ProcessFrame: %v", err)
		}
	}
	if last.Type == vad.SpeechStart || last.Type == vad.SpeechContinue {
		t.Errorf("near-floor frame still reads as speech: %v (p=%v)", last.Type, last.Probability)
	}
}

func TestProcessFrame_Errors(t *testing.T) {
	sess, err := New().NewSession(testConfig())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	if _, err := sess.ProcessFrame([]byte{0x01}); err == nil {
		t.Error("odd byte count: want error")
	}

	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := sess.ProcessFrame(frame(0, 160)); err == nil {
		t.Error("ProcessFrame after Close: want error")
	}
}

func TestProcessFrame_EmptyFrameHoldsState(t *testing.T) {
	sess, err := New().NewSession(testConfig())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	ev, err := sess.ProcessFrame(nil)
	if err != nil {
		t.Fatalf("ProcessFrame(nil): %v", err)
	}
	if ev.Type != vad.Silence {
		t.Errorf("empty frame before speech = %v, want Silence", ev.Type)
	}

	if _, err := sess.ProcessFrame(frame(12000, 160)); err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	ev, err = sess.ProcessFrame(nil)
	if err != nil {
		t.Fatalf("ProcessFrame(nil): %v", err)
	}
	if ev.Type != vad.SpeechContinue {
		t.Errorf("empty frame during speech = %v, want SpeechContinue", ev.Type)
	}
}

func TestReset(t *testing.T) {
	sess, err := New().NewSession(testConfig())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	if _, err := sess.ProcessFrame(frame(12000, 160)); err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	sess.Reset()

	ev, err := sess.ProcessFrame(frame(12000, 160))
	if err != nil {
		t.Fatalf("ProcessFrame after Reset: %v", err)
	}
	if ev.Type != vad.SpeechStart {
		t.Errorf("after Reset = %v, want SpeechStart", ev.Type)
	}
}

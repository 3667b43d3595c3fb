package audio

import (
	"bytes"
	"testing"
)

func pcmBytes(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

func pcmSamples(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return out
}

func TestDecodeMuLaw_Length(t *testing.T) {
	in := []byte{0x00, 0x7F, 0xFF, 0x80}
	out := DecodeMuLaw(in)
	if len(out) != len(in)*2 {
		t.Fatalf("len = %d, want %d", len(out), len(in)*2)
	}
}

func TestDecodeMuLaw_KnownValues(t *testing.T) {
	tests := []struct {
		name string
		in   byte
		want int16
	}{
		{"silence", 0xFF, 0},
		{"negative silence", 0x7F, -0},
		{"max positive", 0x80, 32124},
		{"max negative", 0x00, -32124},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pcmSamples(DecodeMuLaw([]byte{tt.in}))[0]
			if got != tt.want {
				t.Errorf("DecodeMuLaw(%#x) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestEncodeMuLaw_OddLength(t *testing.T) {
	if _, err := EncodeMuLaw([]byte{0x01}); err == nil {
		t.Error("EncodeMuLaw with odd byte count: want error")
	}
}

func TestEncodeMuLaw_Empty(t *testing.T) {
	out, err := EncodeMuLaw(nil)
	if err != nil {
		t.Fatalf("EncodeMuLaw(nil): %v", err)
	}
	if len(out) != 0 {
		t.Errorf("len = %d, want 0", len(out))
	}
}

func TestMuLaw_RoundTripTolerance(t *testing.T) {
	// mu-law is logarithmic: quantisation error grows with magnitude. The
	// round-trip must stay within the step size of each sample's segment.
	samples := []int16{0, 1, -1, 100, -100, 1000, -1000, 8000, -8000, 30000, -30000, 32124}
	in := pcmBytes(samples...)

	enc, err := EncodeMuLaw(in)
	if err != nil {
		t.Fatalf("EncodeMuLaw: %v", err)
	}
	dec := pcmSamples(DecodeMuLaw(enc))

	for i, orig := range samples {
		diff := int(dec[i]) - int(orig)
		if diff < 0 {
			diff = -diff
		}
		// Largest segment step is 1024; allow half of that plus bias slack.
		if diff > 1024 {
			t.Errorf("sample %d: round trip %d -> %d, error %d", orig, orig, dec[i], diff)
		}
	}
}

func TestMuLaw_EncodeClipsExtremes(t *testing.T) {
	in := pcmBytes(32767, -32768)
	enc, err := EncodeMuLaw(in)
	if err != nil {
		t.Fatalf("EncodeMuLaw: %v", err)
	}
	dec := pcmSamples(DecodeMuLaw(enc))
	if dec[0] != 32124 {
		t.Errorf("positive extreme decoded to %d, want 32124", dec[0])
	}
	if dec[1] != -32124 {
		t.Errorf("negative extreme decoded to %d, want -32124", dec[1])
	}
}

func TestMuLaw_IdempotentOnCodeWords(t *testing.T) {
	// Decoding then re-encoding a mu-law byte must reproduce the same byte:
	// decoded values sit exactly on quantisation levels.
	for i := 0; i < 256; i++ {
		u := byte(i)
		pcm := DecodeMuLaw([]byte{u})
		re, err := EncodeMuLaw(pcm)
		if err != nil {
			t.Fatalf("EncodeMuLaw: %v", err)
		}
		// 0x7F and 0xFF both decode to zero; re-encoding zero yields 0xFF.
		if u == 0x7F {
			continue
		}
		if !bytes.Equal(re, []byte{u}) {
			t.Errorf("code word %#x re-encoded to %#x", u, re[0])
		}
	}
}

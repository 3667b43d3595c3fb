// Package audio provides the PCM transcoding primitives used on the call hot
// path: G.711 μ-law companding (the telephony wire format, 8 kHz) and stateful
// linear-interpolation resampling between the telephony rate and the rates the
// AI session adapters negotiate (16 kHz or 24 kHz).
//
// All functions operate on little-endian 16-bit mono PCM unless stated
// otherwise. The conversions are lossy by nature — μ-law is an 8-bit
// logarithmic encoding — so round-trips are perceptually faithful, not
// bit-exact.
package audio

import "fmt"

// muLawBias is the G.711 encoder bias added before segment lookup.
const muLawBias = 0x84

// muLawClip is the largest magnitude representable after bias.
const muLawClip = 32635

// DecodeMuLaw expands G.711 μ-law bytes into 16-bit little-endian PCM.
// Every input byte yields exactly one output sample (two bytes).
func DecodeMuLaw(mulaw []byte) []byte {
	out := make([]byte, len(mulaw)*2)
	for i, u := range mulaw {
		s := muLawToLinear(u)
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// EncodeMuLaw compresses 16-bit little-endian PCM into G.711 μ-law bytes.
// Returns an error if pcm has an odd byte count — a truncated sample would
// silently shift every following frame.
func EncodeMuLaw(pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("audio: encode mulaw: odd byte count %d", len(pcm))
	}
	out := make([]byte, len(pcm)/2)
	for i := range out {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = linearToMuLaw(s)
	}
	return out, nil
}

// muLawToLinear expands one μ-law byte to a linear sample.
func muLawToLinear(u byte) int16 {
	u = ^u
	sign := u & 0x80
	exp := (u >> 4) & 0x07
	mant := u & 0x0F
	value := (int(mant) << 3) + muLawBias
	value <<= uint(exp)
	value -= muLawBias
	if sign != 0 {
		return int16(-value)
	}
	return int16(value)
}

// linearToMuLaw compresses one linear sample to a μ-law byte.
func linearToMuLaw(sample int16) byte {
	sign := byte(0)
	s := int(sample)
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > muLawClip {
		s = muLawClip
	}
	s += muLawBias

	exp := byte(7)
	for mask := 0x4000; exp > 0 && s&mask == 0; mask >>= 1 {
		exp--
	}

	mant := byte((s >> (uint(exp) + 3)) & 0x0F)
	return ^(sign | exp<<4 | mant)
}

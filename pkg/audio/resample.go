package audio

import "fmt"

// Resampler converts 16-bit mono PCM between two fixed sample rates using
// linear interpolation, carrying its fractional read position and the final
// sample of the previous chunk so that arbitrarily sized chunks concatenate
// into a continuous stream with no boundary artefacts.
//
// A Resampler is bound to one direction of one call. Reusing it across calls,
// or sharing one instance between the inbound and outbound paths, corrupts the
// output stream. Not safe for concurrent use.
type Resampler struct {
	srcRate int
	dstRate int

	// pos is the fractional source index of the next output sample, relative
	// to the start of the current chunk. A negative pos reaches back into the
	// carried last sample.
	pos float64

	// last is the final sample of the previous chunk, valid once primed.
	last   int16
	primed bool
}

// NewResampler creates a Resampler converting from srcRate to dstRate Hz.
func NewResampler(srcRate, dstRate int) (*Resampler, error) {
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("audio: resampler: invalid rates %d -> %d", srcRate, dstRate)
	}
	return &Resampler{srcRate: srcRate, dstRate: dstRate}, nil
}

// Process resamples one chunk of little-endian int16 mono PCM. The returned
// slice is freshly allocated; the input is not retained. An odd-length chunk
// returns an error so the caller can drop the frame without desynchronising
// the stream.
func (r *Resampler) Process(pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("audio: resample: odd byte count %d", len(pcm))
	}
	if r.srcRate == r.dstRate {
		out := make([]byte, len(pcm))
		copy(out, pcm)
		return out, nil
	}
	srcSamples := len(pcm) / 2
	if srcSamples == 0 {
		return nil, nil
	}

	ratio := float64(r.srcRate) / float64(r.dstRate)

	sampleAt := func(idx int) int16 {
		if idx < 0 {
			if r.primed {
				return r.last
			}
			idx = 0
		}
		if idx >= srcSamples {
			idx = srcSamples - 1
		}
		return int16(pcm[idx*2]) | int16(pcm[idx*2+1])<<8
	}

	var out []byte
	pos := r.pos
	for pos < float64(srcSamples) {
		idx := int(pos)
		frac := pos - float64(idx)
		if pos < 0 {
			idx = -1
			frac = pos + 1
		}
		s0 := sampleAt(idx)
		s1 := sampleAt(idx + 1)
		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out = append(out, byte(v), byte(v>>8))
		pos += ratio
	}

	// Carry the remainder of the read position into the next chunk.
	r.pos = pos - float64(srcSamples)
	r.last = sampleAt(srcSamples - 1)
	r.primed = true
	return out, nil
}

// Reset clears the carried state. Use when the stream restarts mid-call.
func (r *Resampler) Reset() {
	r.pos = 0
	r.last = 0
	r.primed = false
}

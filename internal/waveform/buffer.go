package waveform

import "math/cmplx"

// Buffer is an immutable block of baseband samples produced by a Synthesizer.
// Callers read it through copies; the backing slice never escapes.
type Buffer struct {
	samples   []complex64
	amplitude float64
	kind      Kind
}

// NewBuffer wraps a copy of samples. amplitude is the peak the samples were
// normalized to; it is reported back by Amplitude.
func NewBuffer(samples []complex64, amplitude float64, kind Kind) *Buffer {
	cp := make([]complex64, len(samples))
	copy(cp, samples)
	return &Buffer{samples: cp, amplitude: amplitude, kind: kind}
}

// Len returns the number of samples.
func (b *Buffer) Len() int { return len(b.samples) }

// Kind returns the waveform variant that produced the buffer.
func (b *Buffer) Kind() Kind { return b.kind }

// Amplitude returns the target peak magnitude of the buffer.
func (b *Buffer) Amplitude() float64 { return b.amplitude }

// At returns sample i.
func (b *Buffer) At(i int) complex64 { return b.samples[i] }

// ReadAt copies samples starting at off into dst without wrapping and returns
// the number copied.
func (b *Buffer) ReadAt(dst []complex64, off int) int {
	if off < 0 || off >= len(b.samples) {
		return 0
	}
	return copy(dst, b.samples[off:])
}

// Samples returns a copy of the whole buffer.
func (b *Buffer) Samples() []complex64 {
	out := make([]complex64, len(b.samples))
	copy(out, b.samples)
	return out
}

// Peak returns the largest sample magnitude.
func (b *Buffer) Peak() float64 {
	peak := 0.0
	for _, v := range b.samples {
		if m := cmplx.Abs(complex128(v)); m > peak {
			peak = m
		}
	}
	return peak
}

package waveform

import (
	"fmt"
	"math"
	"math/cmplx"
	"math/rand"

	"github.com/rjboer/sdrwave/internal/dsp"
)

// AmplitudeTolerance bounds |peak - target| for a synthesized buffer.
const AmplitudeTolerance = 1e-5

// Synthesizer turns waveform specs into Buffers. All randomness is drawn from
// the generator it was built with, so a fixed seed reproduces a buffer.
//
// A Synthesizer is not safe for concurrent use.
type Synthesizer struct {
	sampleRate float64
	rng        *rand.Rand
	plans      *dsp.PlanCache
}

// NewSynthesizer returns a synthesizer for sampleRate Hz drawing from rng.
// A nil rng is replaced by one seeded with 1.
func NewSynthesizer(sampleRate float64, rng *rand.Rand) *Synthesizer {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Synthesizer{
		sampleRate: sampleRate,
		rng:        rng,
		plans:      dsp.NewPlanCache(),
	}
}

// New returns a synthesizer seeded with seed.
func New(sampleRate float64, seed int64) *Synthesizer {
	return NewSynthesizer(sampleRate, rand.New(rand.NewSource(seed)))
}

// SampleRate returns the sample rate used for tone and noise frequency axes.
func (s *Synthesizer) SampleRate() float64 { return s.sampleRate }

// Synthesize builds the buffer described by spec.
func (s *Synthesizer) Synthesize(spec Spec) (*Buffer, error) {
	if spec == nil {
		return nil, invalid("nil spec")
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if !(s.sampleRate > 0) {
		return nil, invalid("sample rate must be positive, got %g", s.sampleRate)
	}

	var samples []complex128
	switch sp := spec.(type) {
	case Tone:
		samples = s.tone(sp)
	case OFDM:
		var err error
		if samples, err = s.ofdm(sp); err != nil {
			return nil, err
		}
	case BandLimitedNoise:
		var err error
		if samples, err = s.noise(sp); err != nil {
			return nil, err
		}
	default:
		return nil, invalid("unsupported waveform kind %q", spec.Kind())
	}

	out := make([]complex64, len(samples))
	for i, v := range samples {
		out[i] = complex64(v)
	}
	buf := &Buffer{samples: out, amplitude: spec.TargetAmplitude(), kind: spec.Kind()}
	if err := checkPeak(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func checkPeak(buf *Buffer) error {
	peak := buf.Peak()
	if math.Abs(peak-buf.amplitude) > AmplitudeTolerance {
		return fmt.Errorf("%w: peak %.8f, want %.8f", ErrAmplitudeInvariant, peak, buf.amplitude)
	}
	return nil
}

func (s *Synthesizer) tone(t Tone) []complex128 {
	amp := t.TargetAmplitude()
	cyclesPerSample := t.OffsetHz / s.sampleRate
	out := make([]complex128, t.Samples)
	for n := range out {
		// Keep only the fractional cycle so long buffers do not lose phase precision.
		c := cyclesPerSample * float64(n)
		c -= math.Floor(c)
		sin, cos := math.Sincos(2 * math.Pi * c)
		out[n] = complex(amp*cos, amp*sin)
	}
	return out
}

func (s *Synthesizer) ofdm(o OFDM) ([]complex128, error) {
	plan := s.plans.Get(o.FFTSize)
	cp := o.CyclicPrefixLen()
	symLen := o.FFTSize + cp
	out := make([]complex128, 0, symLen*o.SymbolsPerBuffer)

	for sym := 0; sym < o.SymbolsPerBuffer; sym++ {
		centered := make([]complex128, o.FFTSize)
		start := o.FFTSize/2 - o.NumSubcarriers/2
		for k := 0; k < o.NumSubcarriers; k++ {
			centered[start+k] = s.constellationPoint(o.Modulation)
		}
		symbol := plan.Inverse(dsp.IFFTShift(centered))
		if !dsp.NormalizePeak(symbol, o.Amplitude) {
			return nil, fmt.Errorf("%w: ofdm symbol %d has no energy", ErrAmplitudeInvariant, sym)
		}
		out = append(out, symbol[o.FFTSize-cp:]...)
		out = append(out, symbol...)
	}
	return out, nil
}

func (s *Synthesizer) constellationPoint(m Modulation) complex128 {
	if m == BPSK {
		if s.rng.Intn(2) == 0 {
			return -1
		}
		return 1
	}
	return cmplx.Exp(complex(0, math.Pi/2*float64(s.rng.Intn(4))))
}

func (s *Synthesizer) noise(n BandLimitedNoise) ([]complex128, error) {
	spectrum := make([]complex128, n.TotalSamples)
	for i := range spectrum {
		spectrum[i] = complex(s.rng.NormFloat64(), s.rng.NormFloat64())
	}
	half := n.BandwidthHz / 2
	for i, f := range dsp.FFTFreq(n.TotalSamples, s.sampleRate) {
		if math.Abs(f) > half {
			spectrum[i] = 0
		}
	}
	out := s.plans.Get(n.TotalSamples).Inverse(spectrum)
	if !dsp.NormalizePeak(out, n.Amplitude) {
		return nil, fmt.Errorf("%w: masked noise has no energy", ErrAmplitudeInvariant)
	}
	return out, nil
}

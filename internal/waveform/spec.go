package waveform

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidSpec is returned when a waveform description violates its
	// constraints. It is always reported before any hardware is touched.
	ErrInvalidSpec = errors.New("invalid waveform spec")
	// ErrAmplitudeInvariant is returned when a synthesized buffer does not peak
	// at the requested amplitude, e.g. because every random draw was zero.
	ErrAmplitudeInvariant = errors.New("waveform amplitude invariant violated")
)

// Kind identifies a waveform variant.
type Kind string

const (
	KindTone  Kind = "tone"
	KindOFDM  Kind = "ofdm"
	KindNoise Kind = "noise"
)

// Modulation selects the per-subcarrier constellation for OFDM.
type Modulation string

const (
	QPSK Modulation = "qpsk"
	BPSK Modulation = "bpsk"
)

// Spec describes a waveform to synthesize. Implemented by Tone, OFDM and
// BandLimitedNoise.
type Spec interface {
	Kind() Kind
	Validate() error
	// TargetAmplitude is the peak magnitude the synthesized buffer must hit.
	TargetAmplitude() float64
}

// Tone is a pure complex carrier at OffsetHz from the tuned frequency.
type Tone struct {
	OffsetHz float64
	// Samples is the buffer length.
	Samples int
	// Amplitude defaults to 1 when zero.
	Amplitude float64
}

// OFDM is a multi-carrier burst with random QPSK/BPSK data and a cyclic prefix.
type OFDM struct {
	FFTSize           int
	NumSubcarriers    int
	Modulation        Modulation
	CyclicPrefixRatio float64
	SymbolsPerBuffer  int
	Amplitude         float64
}

// BandLimitedNoise is complex Gaussian noise masked to |f| <= BandwidthHz/2.
type BandLimitedNoise struct {
	TotalSamples int
	BandwidthHz  float64
	Amplitude    float64
}

func (Tone) Kind() Kind             { return KindTone }
func (OFDM) Kind() Kind             { return KindOFDM }
func (BandLimitedNoise) Kind() Kind { return KindNoise }

func (t Tone) TargetAmplitude() float64 {
	if t.Amplitude == 0 {
		return 1
	}
	return t.Amplitude
}

func (o OFDM) TargetAmplitude() float64             { return o.Amplitude }
func (n BandLimitedNoise) TargetAmplitude() float64 { return n.Amplitude }

// CyclicPrefixLen returns the number of tail samples copied to the front of
// each symbol.
func (o OFDM) CyclicPrefixLen() int {
	return int(math.Round(o.CyclicPrefixRatio * float64(o.FFTSize)))
}

// SymbolLen returns the length of one symbol including its prefix.
func (o OFDM) SymbolLen() int {
	return o.FFTSize + o.CyclicPrefixLen()
}

func (t Tone) Validate() error {
	if t.Samples < 1 {
		return invalid("tone samples must be >= 1, got %d", t.Samples)
	}
	if math.IsNaN(t.OffsetHz) || math.IsInf(t.OffsetHz, 0) {
		return invalid("tone offset must be finite")
	}
	return checkAmplitude(t.TargetAmplitude())
}

func (o OFDM) Validate() error {
	if o.FFTSize < 1 {
		return invalid("ofdm fft size must be >= 1, got %d", o.FFTSize)
	}
	if o.NumSubcarriers < 1 || o.NumSubcarriers > o.FFTSize {
		return invalid("ofdm subcarriers must be in [1, %d], got %d", o.FFTSize, o.NumSubcarriers)
	}
	switch o.Modulation {
	case QPSK, BPSK:
	default:
		return invalid("unsupported ofdm modulation %q", o.Modulation)
	}
	if !(o.CyclicPrefixRatio >= 0 && o.CyclicPrefixRatio < 1) {
		return invalid("cyclic prefix ratio must be in [0, 1), got %g", o.CyclicPrefixRatio)
	}
	if o.SymbolsPerBuffer < 1 {
		return invalid("ofdm symbols per buffer must be >= 1, got %d", o.SymbolsPerBuffer)
	}
	return checkAmplitude(o.Amplitude)
}

func (n BandLimitedNoise) Validate() error {
	if n.TotalSamples < 1 {
		return invalid("noise samples must be >= 1, got %d", n.TotalSamples)
	}
	if !(n.BandwidthHz > 0) || math.IsInf(n.BandwidthHz, 0) {
		return invalid("noise bandwidth must be positive, got %g", n.BandwidthHz)
	}
	return checkAmplitude(n.Amplitude)
}

func checkAmplitude(a float64) error {
	if !(a > 0 && a <= 1) {
		return invalid("amplitude must be in (0, 1], got %g", a)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidSpec, fmt.Sprintf(format, args...))
}

// OccupiedBandwidth estimates the occupied bandwidth of spec at sampleRate.
// A tone occupies a single bin and reports zero.
func OccupiedBandwidth(spec Spec, sampleRate float64) float64 {
	switch s := spec.(type) {
	case OFDM:
		if s.FFTSize == 0 {
			return 0
		}
		return float64(s.NumSubcarriers) * sampleRate / float64(s.FFTSize)
	case BandLimitedNoise:
		return math.Min(s.BandwidthHz, sampleRate)
	default:
		return 0
	}
}

// Describe renders spec for log lines.
func Describe(spec Spec) string {
	switch s := spec.(type) {
	case Tone:
		return fmt.Sprintf("tone offset=%gHz samples=%d amplitude=%g", s.OffsetHz, s.Samples, s.TargetAmplitude())
	case OFDM:
		return fmt.Sprintf("ofdm nfft=%d carriers=%d mod=%s cp=%d symbols=%d amplitude=%g",
			s.FFTSize, s.NumSubcarriers, s.Modulation, s.CyclicPrefixLen(), s.SymbolsPerBuffer, s.Amplitude)
	case BandLimitedNoise:
		return fmt.Sprintf("noise samples=%d bw=%gHz amplitude=%g", s.TotalSamples, s.BandwidthHz, s.Amplitude)
	case nil:
		return "<nil>"
	default:
		return string(spec.Kind())
	}
}

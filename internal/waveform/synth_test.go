package waveform

import (
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"github.com/rjboer/sdrwave/internal/dsp"
)

func TestToneZeroOffsetIsUnitMagnitude(t *testing.T) {
	buf, err := New(1e6, 1).Synthesize(Tone{OffsetHz: 0, Samples: 8192})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if buf.Len() != 8192 {
		t.Fatalf("expected 8192 samples got %d", buf.Len())
	}
	for i := 0; i < buf.Len(); i++ {
		if m := cmplx.Abs(complex128(buf.At(i))); math.Abs(m-1) > 1e-6 {
			t.Fatalf("sample %d magnitude %f", i, m)
		}
	}
}

func TestToneAdvancesPhase(t *testing.T) {
	fs := 1e6
	offset := 125e3
	buf, err := New(fs, 1).Synthesize(Tone{OffsetHz: offset, Samples: 64, Amplitude: 0.5})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	for n := 0; n < buf.Len(); n++ {
		want := cmplx.Rect(0.5, 2*math.Pi*offset*float64(n)/fs)
		if cmplx.Abs(complex128(buf.At(n))-want) > 1e-6 {
			t.Fatalf("sample %d expected %v got %v", n, want, buf.At(n))
		}
	}
	if math.Abs(buf.Peak()-0.5) > AmplitudeTolerance {
		t.Fatalf("expected peak 0.5 got %f", buf.Peak())
	}
}

func TestOFDMStructure(t *testing.T) {
	spec := OFDM{
		FFTSize:           256,
		NumSubcarriers:    200,
		Modulation:        QPSK,
		CyclicPrefixRatio: 1.0 / 8,
		SymbolsPerBuffer:  4,
		Amplitude:         0.8,
	}
	buf, err := New(20e6, 7).Synthesize(spec)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	cp := spec.CyclicPrefixLen()
	if cp != 32 {
		t.Fatalf("expected cp 32 got %d", cp)
	}
	symLen := spec.SymbolLen()
	if buf.Len() != symLen*spec.SymbolsPerBuffer {
		t.Fatalf("expected %d samples got %d", symLen*spec.SymbolsPerBuffer, buf.Len())
	}
	if math.Abs(buf.Peak()-0.8) > AmplitudeTolerance {
		t.Fatalf("expected peak 0.8 got %f", buf.Peak())
	}

	samples := buf.Samples()
	for sym := 0; sym < spec.SymbolsPerBuffer; sym++ {
		base := sym * symLen
		for i := 0; i < cp; i++ {
			if samples[base+i] != samples[base+spec.FFTSize+i] {
				t.Fatalf("symbol %d prefix sample %d does not match tail", sym, i)
			}
		}
	}

	identical := true
	for i := 0; i < symLen; i++ {
		if samples[i] != samples[symLen+i] {
			identical = false
			break
		}
	}
	if identical {
		t.Fatalf("expected independent draws per symbol")
	}
}

func TestOFDMOccupiesCenterBins(t *testing.T) {
	spec := OFDM{FFTSize: 128, NumSubcarriers: 64, Modulation: QPSK, CyclicPrefixRatio: 0.25, SymbolsPerBuffer: 1, Amplitude: 1}
	buf, err := New(1e6, 3).Synthesize(spec)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	samples := buf.Samples()
	body := make([]complex128, spec.FFTSize)
	for i := range body {
		body[i] = complex128(samples[spec.CyclicPrefixLen()+i])
	}
	spectrum := dsp.FFTShift(dsp.NewPlan(spec.FFTSize).Forward(body))

	start := spec.FFTSize/2 - spec.NumSubcarriers/2
	end := start + spec.NumSubcarriers
	ref := cmplx.Abs(spectrum[start])
	for k, v := range spectrum {
		m := cmplx.Abs(v)
		if k >= start && k < end {
			if math.Abs(m-ref) > 1e-3*ref {
				t.Fatalf("bin %d magnitude %f differs from %f", k, m, ref)
			}
			continue
		}
		if m > 1e-4*ref {
			t.Fatalf("guard bin %d carries energy %g", k, m)
		}
	}
}

func TestOFDMBPSKIsReal(t *testing.T) {
	spec := OFDM{FFTSize: 64, NumSubcarriers: 48, Modulation: BPSK, SymbolsPerBuffer: 2, Amplitude: 0.5}
	buf, err := New(1e6, 11).Synthesize(spec)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	samples := buf.Samples()
	body := make([]complex128, spec.FFTSize)
	for i := range body {
		body[i] = complex128(samples[i])
	}
	spectrum := dsp.FFTShift(dsp.NewPlan(spec.FFTSize).Forward(body))
	start := spec.FFTSize/2 - spec.NumSubcarriers/2
	for k := start; k < start+spec.NumSubcarriers; k++ {
		if math.Abs(imag(spectrum[k])) > 1e-3*cmplx.Abs(spectrum[k]) {
			t.Fatalf("bin %d is not a BPSK point: %v", k, spectrum[k])
		}
	}
}

func TestNoiseIsBandLimited(t *testing.T) {
	fs := 20e6
	spec := BandLimitedNoise{TotalSamples: 4096, BandwidthHz: 10e6, Amplitude: 0.4}
	buf, err := New(fs, 5).Synthesize(spec)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if buf.Len() != spec.TotalSamples {
		t.Fatalf("expected %d samples got %d", spec.TotalSamples, buf.Len())
	}
	if math.Abs(buf.Peak()-0.4) > AmplitudeTolerance {
		t.Fatalf("expected peak 0.4 got %f", buf.Peak())
	}

	samples := buf.Samples()
	seq := make([]complex128, len(samples))
	for i, v := range samples {
		seq[i] = complex128(v)
	}
	spectrum := dsp.NewPlan(len(seq)).Forward(seq)
	freqs := dsp.FFTFreq(len(seq), fs)

	inBand := 0.0
	for i, f := range freqs {
		if math.Abs(f) <= spec.BandwidthHz/2 {
			inBand = math.Max(inBand, cmplx.Abs(spectrum[i]))
		}
	}
	for i, f := range freqs {
		if math.Abs(f) > spec.BandwidthHz/2 && cmplx.Abs(spectrum[i]) > 1e-4*inBand {
			t.Fatalf("bin %d at %.0f Hz leaks %g (in-band peak %g)", i, f, cmplx.Abs(spectrum[i]), inBand)
		}
	}
}

func TestSynthesisIsReproducible(t *testing.T) {
	spec := BandLimitedNoise{TotalSamples: 1024, BandwidthHz: 1e6, Amplitude: 1}
	a, err := New(2e6, 42).Synthesize(spec)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	b, err := New(2e6, 42).Synthesize(spec)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	for i := 0; i < a.Len(); i++ {
		if a.At(i) != b.At(i) {
			t.Fatalf("sample %d differs between identical seeds", i)
		}
	}
	c, err := New(2e6, 43).Synthesize(spec)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if c.At(0) == a.At(0) && c.At(1) == a.At(1) {
		t.Fatalf("expected different seeds to produce different buffers")
	}
}

func TestAmplitudeInvariantAcrossSpecs(t *testing.T) {
	specs := []Spec{
		Tone{OffsetHz: -300e3, Samples: 1000, Amplitude: 0.3},
		OFDM{FFTSize: 512, NumSubcarriers: 511, Modulation: QPSK, CyclicPrefixRatio: 0.1, SymbolsPerBuffer: 3, Amplitude: 0.6},
		OFDM{FFTSize: 16, NumSubcarriers: 1, Modulation: BPSK, SymbolsPerBuffer: 1, Amplitude: 1},
		BandLimitedNoise{TotalSamples: 333, BandwidthHz: 1, Amplitude: 0.9},
	}
	synth := New(1e6, 9)
	for _, spec := range specs {
		buf, err := synth.Synthesize(spec)
		if err != nil {
			t.Fatalf("%s: %v", Describe(spec), err)
		}
		if math.Abs(buf.Peak()-spec.TargetAmplitude()) > AmplitudeTolerance {
			t.Fatalf("%s: peak %f", Describe(spec), buf.Peak())
		}
		if buf.Kind() != spec.Kind() {
			t.Fatalf("%s: kind %s", Describe(spec), buf.Kind())
		}
	}
}

func TestInvalidSpecs(t *testing.T) {
	cases := map[string]Spec{
		"tone no samples":      Tone{Samples: 0},
		"tone amplitude":       Tone{Samples: 10, Amplitude: 1.5},
		"ofdm too many":        OFDM{FFTSize: 64, NumSubcarriers: 65, Modulation: QPSK, SymbolsPerBuffer: 1, Amplitude: 1},
		"ofdm zero carriers":   OFDM{FFTSize: 64, Modulation: QPSK, SymbolsPerBuffer: 1, Amplitude: 1},
		"ofdm cp ratio":        OFDM{FFTSize: 64, NumSubcarriers: 8, Modulation: QPSK, CyclicPrefixRatio: 1, SymbolsPerBuffer: 1, Amplitude: 1},
		"ofdm negative cp":     OFDM{FFTSize: 64, NumSubcarriers: 8, Modulation: QPSK, CyclicPrefixRatio: -0.1, SymbolsPerBuffer: 1, Amplitude: 1},
		"ofdm modulation":      OFDM{FFTSize: 64, NumSubcarriers: 8, Modulation: "16qam", SymbolsPerBuffer: 1, Amplitude: 1},
		"ofdm no symbols":      OFDM{FFTSize: 64, NumSubcarriers: 8, Modulation: BPSK, Amplitude: 1},
		"ofdm zero amplitude":  OFDM{FFTSize: 64, NumSubcarriers: 8, Modulation: BPSK, SymbolsPerBuffer: 1},
		"noise bandwidth":      BandLimitedNoise{TotalSamples: 64, Amplitude: 1},
		"noise samples":        BandLimitedNoise{BandwidthHz: 1e6, Amplitude: 1},
		"noise amplitude high": BandLimitedNoise{TotalSamples: 64, BandwidthHz: 1e6, Amplitude: 1.01},
		"nil spec":             nil,
	}
	synth := New(1e6, 1)
	for name, spec := range cases {
		if _, err := synth.Synthesize(spec); !errors.Is(err, ErrInvalidSpec) {
			t.Fatalf("%s: expected ErrInvalidSpec, got %v", name, err)
		}
	}
}

func TestSynthesizerRequiresSampleRate(t *testing.T) {
	if _, err := New(0, 1).Synthesize(Tone{Samples: 4}); !errors.Is(err, ErrInvalidSpec) {
		t.Fatalf("expected ErrInvalidSpec for zero sample rate, got %v", err)
	}
}

func TestOccupiedBandwidth(t *testing.T) {
	if got := OccupiedBandwidth(OFDM{FFTSize: 4096, NumSubcarriers: 3000}, 20e6); math.Abs(got-14.6484375e6) > 1 {
		t.Fatalf("unexpected ofdm bandwidth %f", got)
	}
	if got := OccupiedBandwidth(BandLimitedNoise{BandwidthHz: 30e6}, 20e6); got != 20e6 {
		t.Fatalf("expected noise bandwidth capped at fs, got %f", got)
	}
	if got := OccupiedBandwidth(Tone{}, 20e6); got != 0 {
		t.Fatalf("expected zero for tone, got %f", got)
	}
}

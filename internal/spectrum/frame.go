package spectrum

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/rjboer/sdrwave/internal/dsp"
)

// Frame is an averaged power spectrum around CenterHz. Frequencies ascend
// and PowerDB is parallel to it.
type Frame struct {
	Frequencies []float64
	PowerDB     []float64
	CenterHz    float64
	SampleRate  float64
	// Frames is the number of captures averaged into the estimate.
	Frames int
	// Discarded counts short or failed reads that were retried.
	Discarded int
}

// Len returns the number of bins.
func (f *Frame) Len() int { return len(f.PowerDB) }

// BinWidth returns the spacing between adjacent bins in Hz.
func (f *Frame) BinWidth() float64 {
	if len(f.Frequencies) == 0 {
		return 0
	}
	return f.SampleRate / float64(len(f.Frequencies))
}

// Peak returns the frequency and power of the strongest bin.
func (f *Frame) Peak() (hz, db float64) {
	if len(f.PowerDB) == 0 {
		return 0, 0
	}
	i := floats.MaxIdx(f.PowerDB)
	return f.Frequencies[i], f.PowerDB[i]
}

// NoiseFloor returns the median bin power in dB.
func (f *Frame) NoiseFloor() float64 {
	if len(f.PowerDB) == 0 {
		return 0
	}
	sorted := append([]float64(nil), f.PowerDB...)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

// Linear returns the bin powers in linear units.
func (f *Frame) Linear() []float64 {
	out := make([]float64, len(f.PowerDB))
	for i, db := range f.PowerDB {
		out[i] = dsp.DBToLinear(db)
	}
	return out
}

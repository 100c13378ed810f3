package spectrum

import (
	"fmt"
	"strings"

	"github.com/rjboer/sdrwave/internal/dsp"
)

// WindowKind names a capture window shape.
type WindowKind string

const (
	Hann    WindowKind = "hann"
	Hamming WindowKind = "hamming"
)

// CaptureWindow is a precomputed weighting applied to every captured frame.
// Energy is the sum of squared weights and normalizes the periodogram.
type CaptureWindow struct {
	Size    int
	Kind    WindowKind
	Weights []float64
	Energy  float64
}

// NewCaptureWindow builds a window of size points. An empty kind selects Hann.
func NewCaptureWindow(size int, kind WindowKind) (CaptureWindow, error) {
	if size < 1 {
		return CaptureWindow{}, fmt.Errorf("%w: window size %d", ErrInvalidRequest, size)
	}
	var weights []float64
	switch WindowKind(strings.ToLower(string(kind))) {
	case "", Hann:
		kind = Hann
		weights = dsp.Hann(size)
	case Hamming:
		kind = Hamming
		weights = dsp.Hamming(size)
	default:
		return CaptureWindow{}, fmt.Errorf("%w: unknown window %q", ErrInvalidRequest, kind)
	}
	w := CaptureWindow{Size: size, Kind: kind, Weights: weights, Energy: dsp.Energy(weights)}
	if w.Energy == 0 {
		return CaptureWindow{}, fmt.Errorf("%w: window %s/%d has no energy", ErrInvalidRequest, kind, size)
	}
	return w, nil
}

package dsp

import (
	"math"
	"math/cmplx"
)

// FFTShift returns a copy of data rotated so that the zero-frequency bin sits
// at index len/2. Odd lengths follow the same convention as FFTFreq.
func FFTShift[T any](data []T) []T {
	n := len(data)
	out := make([]T, n)
	if n == 0 {
		return out
	}
	shift := n / 2
	for i := range data {
		out[(i+shift)%n] = data[i]
	}
	return out
}

// IFFTShift undoes FFTShift.
func IFFTShift[T any](data []T) []T {
	n := len(data)
	out := make([]T, n)
	if n == 0 {
		return out
	}
	shift := n / 2
	for i := range data {
		out[i] = data[(i+shift)%n]
	}
	return out
}

// FFTFreq returns the DFT sample frequencies for n points at sampleRate,
// in natural (unshifted) bin order: 0, 1, ..., then the negative half.
func FFTFreq(n int, sampleRate float64) []float64 {
	if n <= 0 {
		return []float64{}
	}
	out := make([]float64, n)
	step := sampleRate / float64(n)
	positive := (n-1)/2 + 1
	for i := 0; i < positive; i++ {
		out[i] = float64(i) * step
	}
	for i := positive; i < n; i++ {
		out[i] = float64(i-n) * step
	}
	return out
}

// PeakMagnitude returns the largest sample magnitude in data.
func PeakMagnitude(data []complex128) float64 {
	peak := 0.0
	for _, v := range data {
		if m := cmplx.Abs(v); m > peak {
			peak = m
		}
	}
	return peak
}

// NormalizePeak scales data in place so its peak magnitude equals target.
// It reports false when data carries no energy.
func NormalizePeak(data []complex128, target float64) bool {
	peak := PeakMagnitude(data)
	if peak == 0 || math.IsNaN(peak) || math.IsInf(peak, 0) {
		return false
	}
	scale := complex(target/peak, 0)
	for i := range data {
		data[i] *= scale
	}
	return true
}

// PowerDB converts linear power to decibels with a floor of eps to avoid log(0).
func PowerDB(power, eps float64) float64 {
	return 10 * math.Log10(power+eps)
}

// DBToLinear converts decibels to linear power.
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/10)
}

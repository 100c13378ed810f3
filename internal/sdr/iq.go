package sdr

import (
	"encoding/binary"
	"math"
)

// BytesPerSample is the size of one CF32 sample: little-endian float32 I then Q.
const BytesPerSample = 8

// EncodeCF32 appends samples to dst as interleaved little-endian float32 I/Q.
func EncodeCF32(dst []byte, samples []complex64) []byte {
	for _, v := range samples {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(real(v)))
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(imag(v)))
	}
	return dst
}

// DecodeCF32 decodes whole samples from src and returns them along with the
// number of bytes consumed.
func DecodeCF32(src []byte) ([]complex64, int) {
	n := len(src) / BytesPerSample
	out := make([]complex64, n)
	for i := 0; i < n; i++ {
		off := i * BytesPerSample
		re := math.Float32frombits(binary.LittleEndian.Uint32(src[off : off+4]))
		im := math.Float32frombits(binary.LittleEndian.Uint32(src[off+4 : off+8]))
		out[i] = complex(re, im)
	}
	return out, n * BytesPerSample
}

package audio

import "math"

// Float32ToInt16 quantizes a float32 sample in [-1, 1] to a 16-bit PCM
// value. The sample is clamped first, then scaled asymmetrically — negative
// values by 32768 and positive values by 32767 — so the full int16 range is
// used without overflow. Rounding is to nearest.
func Float32ToInt16(s float32) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	if s < 0 {
		return int16(math.Round(float64(s) * 32768))
	}
	return int16(math.Round(float64(s) * 32767))
}

// Int16ToFloat32 converts a 16-bit PCM value to float32 in [-1, 1].
func Int16ToFloat32(s int16) float32 {
	return float32(s) / 32768.0
}

// Resample converts the buffer to targetRate using per-channel linear
// interpolation. When the rates already match the original buffer is
// returned unchanged. Output length is chosen so that duration is preserved
// within one sample.
func Resample(b *Buffer, targetRate int) *Buffer {
	if targetRate <= 0 || b.SampleRate <= 0 || b.SampleRate == targetRate {
		return b
	}
	srcN := b.NumSamples()
	dstN := int(int64(srcN) * int64(targetRate) / int64(b.SampleRate))
	out := &Buffer{
		Channels:   make([][]float32, len(b.Channels)),
		SampleRate: targetRate,
	}
	ratio := float64(b.SampleRate) / float64(targetRate)
	for ci, src := range b.Channels {
		dst := make([]float32, dstN)
		for i := range dst {
			pos := float64(i) * ratio
			idx := int(pos)
			frac := float32(pos - float64(idx))
			s0 := src[idx]
			s1 := s0
			if idx+1 < srcN {
				s1 = src[idx+1]
			}
			dst[i] = s0*(1-frac) + s1*frac
		}
		out.Channels[ci] = dst
	}
	return out
}

// ResampleMono resamples a bare mono sample slice. Used by analysis code
// that works on mixdowns rather than full buffers.
func ResampleMono(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return samples
	}
	b := &Buffer{Channels: [][]float32{samples}, SampleRate: srcRate}
	return Resample(b, dstRate).Channels[0]
}

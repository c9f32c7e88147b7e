// Package audio provides the PCM buffer model shared by every processing
// stage, plus codecs for the containers a browser client typically uploads:
// WAV (decode + encode), MP3 (decode), and Ogg Opus (decode).
//
// A [Buffer] holds per-channel float32 samples in the range [-1, 1] tagged
// with a sample rate. Buffers are value-like: stages never mutate a buffer
// they received — every transformation allocates a new one. This keeps two
// concurrently processed clips (target and attempt) fully independent.
package audio

// Buffer is an in-memory PCM clip. All channels have equal length; this is
// an invariant every constructor in this package maintains.
type Buffer struct {
	// Channels holds one sample slice per audio channel, non-interleaved.
	// Samples are float32 in [-1, 1].
	Channels [][]float32

	// SampleRate in Hz (e.g. 44100, 48000).
	SampleRate int
}

// NewBuffer allocates a zeroed (silent) buffer with the given channel count,
// sample rate, and per-channel length.
func NewBuffer(channels, sampleRate, numSamples int) *Buffer {
	chs := make([][]float32, channels)
	for i := range chs {
		chs[i] = make([]float32, numSamples)
	}
	return &Buffer{Channels: chs, SampleRate: sampleRate}
}

// NumChannels returns the channel count.
func (b *Buffer) NumChannels() int {
	return len(b.Channels)
}

// NumSamples returns the per-channel sample count. Zero for a buffer with
// no channels.
func (b *Buffer) NumSamples() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the clip length in seconds.
func (b *Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(b.NumSamples()) / float64(b.SampleRate)
}

// Clone returns a deep copy of the buffer.
func (b *Buffer) Clone() *Buffer {
	out := &Buffer{
		Channels:   make([][]float32, len(b.Channels)),
		SampleRate: b.SampleRate,
	}
	for i, ch := range b.Channels {
		cp := make([]float32, len(ch))
		copy(cp, ch)
		out.Channels[i] = cp
	}
	return out
}

// Slice returns a new buffer holding a copy of the sample range [start, end)
// from every channel. The range is clamped to the buffer's bounds; an
// inverted range yields an empty buffer.
func (b *Buffer) Slice(start, end int) *Buffer {
	n := b.NumSamples()
	if start < 0 {
		start = 0
	}
	if end > n {
		end = n
	}
	if start > end {
		start = end
	}
	out := &Buffer{
		Channels:   make([][]float32, len(b.Channels)),
		SampleRate: b.SampleRate,
	}
	for i, ch := range b.Channels {
		cp := make([]float32, end-start)
		copy(cp, ch[start:end])
		out.Channels[i] = cp
	}
	return out
}

// MixdownMono returns a mono view of the buffer by averaging all channels
// per frame. For a single-channel buffer the returned slice is a copy, so
// callers may hand it to analysis code without aliasing the original.
func (b *Buffer) MixdownMono() []float32 {
	n := b.NumSamples()
	mono := make([]float32, n)
	if len(b.Channels) == 0 {
		return mono
	}
	if len(b.Channels) == 1 {
		copy(mono, b.Channels[0])
		return mono
	}
	scale := 1 / float32(len(b.Channels))
	for _, ch := range b.Channels {
		for i, s := range ch {
			mono[i] += s * scale
		}
	}
	return mono
}

package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// wavHeader is the standard 44-byte RIFF/WAVE header written by EncodeWAV.
type wavHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // file size - 8
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for integer PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32
}

// EncodeWAV serialises the buffer as a 16-bit PCM WAV byte stream with the
// standard 44-byte header. Channel count and sample rate are preserved from
// the buffer; samples are interleaved and quantized via [Float32ToInt16].
// The output is deterministic for a given input buffer.
func EncodeWAV(b *Buffer) []byte {
	channels := b.NumChannels()
	if channels == 0 {
		channels = 1
	}
	n := b.NumSamples()
	dataSize := uint32(n * channels * 2)

	hdr := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   uint16(channels),
		SampleRate:    uint32(b.SampleRate),
		ByteRate:      uint32(b.SampleRate * channels * 2),
		BlockAlign:    uint16(channels * 2),
		BitsPerSample: 16,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, 44+int(dataSize)))
	// Writing a fixed-layout struct of sized fields cannot fail on a bytes.Buffer.
	_ = binary.Write(buf, binary.LittleEndian, hdr)

	frame := make([]byte, channels*2)
	for i := 0; i < n; i++ {
		for ch := 0; ch < channels; ch++ {
			var s float32
			if ch < len(b.Channels) {
				s = b.Channels[ch][i]
			}
			binary.LittleEndian.PutUint16(frame[ch*2:], uint16(Float32ToInt16(s)))
		}
		buf.Write(frame)
	}
	return buf.Bytes()
}

// decodeWAV parses a RIFF/WAVE byte stream into a Buffer. It walks the chunk
// list rather than assuming a fixed 44-byte layout, since browser encoders
// frequently insert LIST/INFO chunks between "fmt " and "data". Supported
// sample formats: 16-bit integer PCM and 32-bit IEEE float.
func decodeWAV(data []byte) (*Buffer, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: missing RIFF/WAVE header", ErrDecode)
	}

	var (
		format     uint16
		channels   int
		sampleRate int
		bits       uint16
		pcm        []byte
		haveFmt    bool
	)

	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(data) {
			// Tolerate a truncated final data chunk; some recorders write a
			// placeholder size while streaming.
			if id == "data" && body < len(data) {
				size = len(data) - body
			} else {
				return nil, fmt.Errorf("%w: chunk %q overruns file", ErrDecode, id)
			}
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("%w: fmt chunk too short (%d bytes)", ErrDecode, size)
			}
			format = binary.LittleEndian.Uint16(data[body:])
			channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			bits = binary.LittleEndian.Uint16(data[body+14:])
			haveFmt = true
		case "data":
			pcm = data[body : body+size]
		}
		// Chunks are word-aligned.
		off = body + size
		if size%2 == 1 {
			off++
		}
	}

	if !haveFmt {
		return nil, fmt.Errorf("%w: missing fmt chunk", ErrDecode)
	}
	if pcm == nil {
		return nil, fmt.Errorf("%w: missing data chunk", ErrDecode)
	}
	if channels <= 0 || sampleRate <= 0 {
		return nil, fmt.Errorf("%w: invalid format (%d channels, %d Hz)", ErrDecode, channels, sampleRate)
	}

	switch {
	case format == 1 && bits == 16:
		return decodePCM16(pcm, channels, sampleRate), nil
	case format == 3 && bits == 32:
		return decodeFloat32(pcm, channels, sampleRate), nil
	default:
		return nil, fmt.Errorf("%w: unsupported WAV format %d with %d bits per sample", ErrDecode, format, bits)
	}
}

func decodePCM16(pcm []byte, channels, sampleRate int) *Buffer {
	frames := len(pcm) / (2 * channels)
	out := NewBuffer(channels, sampleRate, frames)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			idx := (i*channels + ch) * 2
			s := int16(binary.LittleEndian.Uint16(pcm[idx:]))
			out.Channels[ch][i] = Int16ToFloat32(s)
		}
	}
	return out
}

func decodeFloat32(pcm []byte, channels, sampleRate int) *Buffer {
	frames := len(pcm) / (4 * channels)
	out := NewBuffer(channels, sampleRate, frames)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			idx := (i*channels + ch) * 4
			bitsVal := binary.LittleEndian.Uint32(pcm[idx:])
			out.Channels[ch][i] = math.Float32frombits(bitsVal)
		}
	}
	return out
}

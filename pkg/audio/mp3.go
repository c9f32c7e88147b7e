package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	mp3lib "github.com/hajimehoshi/go-mp3"
)

// decodeMP3 decodes an MPEG audio stream. go-mp3 always emits interleaved
// 16-bit stereo at the stream's native rate, so the result is a two-channel
// buffer even for mono sources (both channels carry the same signal).
func decodeMP3(data []byte) (*Buffer, error) {
	dec, err := mp3lib.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: mp3: %v", ErrDecode, err)
	}

	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: mp3 read: %v", ErrDecode, err)
	}
	frames := len(pcm) / 4 // 2 bytes × 2 channels per frame
	if frames == 0 {
		return nil, fmt.Errorf("%w: mp3 stream contains no audio frames", ErrDecode)
	}

	out := NewBuffer(2, dec.SampleRate(), frames)
	for i := 0; i < frames; i++ {
		l := int16(binary.LittleEndian.Uint16(pcm[i*4:]))
		r := int16(binary.LittleEndian.Uint16(pcm[i*4+2:]))
		out.Channels[0][i] = Int16ToFloat32(l)
		out.Channels[1][i] = Int16ToFloat32(r)
	}
	return out, nil
}

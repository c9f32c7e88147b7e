package audio

import (
	"bytes"
	"errors"
	"fmt"
)

// ErrDecode is wrapped by every decode failure in this package. A decode
// failure is terminal for that clip: there is no partial result and no
// fallback, so callers should surface it rather than degrade.
var ErrDecode = errors.New("audio: decode failed")

// Decode sniffs the container format of data and decodes it into a PCM
// buffer. Recognised containers: RIFF/WAVE, MP3 (with or without an ID3v2
// tag), and Ogg Opus. The buffer keeps the source's native sample rate and
// channel count; nothing is resampled here.
func Decode(data []byte) (*Buffer, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: %d bytes is too short for any container", ErrDecode, len(data))
	}
	switch {
	case bytes.HasPrefix(data, []byte("RIFF")):
		return decodeWAV(data)
	case bytes.HasPrefix(data, []byte("OggS")):
		return decodeOggOpus(data)
	case bytes.HasPrefix(data, []byte("ID3")) || looksLikeMP3Frame(data):
		return decodeMP3(data)
	default:
		return nil, fmt.Errorf("%w: unrecognised container (first bytes % x)", ErrDecode, data[:4])
	}
}

// looksLikeMP3Frame reports whether data starts with an MPEG audio frame
// sync word (11 set bits).
func looksLikeMP3Frame(data []byte) bool {
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

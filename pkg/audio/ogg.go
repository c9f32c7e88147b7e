package audio

import (
	"encoding/binary"
	"fmt"

	"layeh.com/gopus"
)

// Opus always decodes at 48 kHz; the OpusHead "input sample rate" field is
// informational only.
const (
	opusSampleRate = 48000
	// opusMaxFrameSize is the largest possible Opus frame: 120 ms at 48 kHz.
	opusMaxFrameSize = 5760
)

// decodeOggOpus decodes an Ogg-encapsulated Opus stream (the payload of
// browser-recorded audio/ogg and the audio track of most audio/webm
// recordings re-muxed to Ogg). gopus handles the codec; the Ogg page and
// packet framing is parsed here since gopus operates on bare packets.
func decodeOggOpus(data []byte) (*Buffer, error) {
	packets, err := oggPackets(data)
	if err != nil {
		return nil, err
	}
	if len(packets) == 0 {
		return nil, fmt.Errorf("%w: ogg stream contains no packets", ErrDecode)
	}

	// First packet must be OpusHead: magic(8) version(1) channels(1) preskip(2) ...
	head := packets[0]
	if len(head) < 12 || string(head[:8]) != "OpusHead" {
		return nil, fmt.Errorf("%w: ogg stream is not Opus", ErrDecode)
	}
	channels := int(head[9])
	preSkip := int(binary.LittleEndian.Uint16(head[10:12]))
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("%w: unsupported opus channel count %d", ErrDecode, channels)
	}

	dec, err := gopus.NewDecoder(opusSampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("%w: create opus decoder: %v", ErrDecode, err)
	}

	var interleaved []int16
	for _, pkt := range packets[1:] {
		// Skip the OpusTags comment packet.
		if len(pkt) >= 8 && string(pkt[:8]) == "OpusTags" {
			continue
		}
		pcm, err := dec.Decode(pkt, opusMaxFrameSize, false)
		if err != nil {
			return nil, fmt.Errorf("%w: opus packet decode: %v", ErrDecode, err)
		}
		interleaved = append(interleaved, pcm...)
	}

	frames := len(interleaved) / channels
	if preSkip > frames {
		preSkip = frames
	}
	frames -= preSkip

	if frames <= 0 {
		return nil, fmt.Errorf("%w: opus stream contains no audio after pre-skip", ErrDecode)
	}
	out := NewBuffer(channels, opusSampleRate, frames)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			out.Channels[ch][i] = Int16ToFloat32(interleaved[(i+preSkip)*channels+ch])
		}
	}
	return out, nil
}

// oggPackets reassembles logical packets from the Ogg page sequence. Lacing
// values of 255 continue a packet into the next segment (and, with the
// continuation flag, into the next page).
func oggPackets(data []byte) ([][]byte, error) {
	var (
		packets [][]byte
		partial []byte
	)
	off := 0
	for off+27 <= len(data) {
		if string(data[off:off+4]) != "OggS" {
			return nil, fmt.Errorf("%w: bad ogg page capture pattern at offset %d", ErrDecode, off)
		}
		segCount := int(data[off+26])
		tableEnd := off + 27 + segCount
		if tableEnd > len(data) {
			return nil, fmt.Errorf("%w: truncated ogg segment table", ErrDecode)
		}
		body := tableEnd
		for i := 0; i < segCount; i++ {
			lace := int(data[off+27+i])
			if body+lace > len(data) {
				return nil, fmt.Errorf("%w: truncated ogg page body", ErrDecode)
			}
			partial = append(partial, data[body:body+lace]...)
			body += lace
			if lace < 255 {
				packets = append(packets, partial)
				partial = nil
			}
		}
		off = body
	}
	// A trailing partial packet means the file was cut off mid-page; drop it.
	return packets, nil
}

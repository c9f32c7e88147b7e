// Package align implements onset-synchronised alignment of two clips.
//
// Given a target clip and a learner's attempt, each independently analysed
// for speech boundaries, the engine rebuilds both so that speech begins at
// exactly the same offset (the configured front padding) and both clips
// have exactly the same total duration. The pair can then be played
// overlapped or compared sample-for-sample.
//
// Alignment is strictly availability-first: any failure inside the engine
// degrades to returning both original blobs unmodified, tagged
// error_fallback. A failed alignment must never block playback.
package align

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/attune-audio/attune/internal/boundary"
	"github.com/attune-audio/attune/pkg/audio"
)

// DefaultPaddingMs is the silence placed before each clip's speech onset.
const DefaultPaddingMs = 200

// durationTolerance is the duration difference, in seconds, below which two
// normalised clips count as already aligned and no end padding is added.
const durationTolerance = 0.010

// Method records how an alignment result was produced.
type Method string

const (
	// MethodAlreadyAligned means the normalised clips matched in duration
	// within tolerance and no equalisation padding was needed.
	MethodAlreadyAligned Method = "already_aligned"

	// MethodEndPadding means trailing silence was appended to the shorter
	// clip to equalise durations.
	MethodEndPadding Method = "end_padding"

	// MethodErrorFallback means alignment failed and both blobs are the
	// unmodified originals.
	MethodErrorFallback Method = "error_fallback"
)

// Clip is one side of an alignment pair.
type Clip struct {
	// Blob is the clip's encoded bytes, returned as-is on fallback.
	Blob []byte

	// Buffer is the decoded PCM. The engine never mutates it.
	Buffer *audio.Buffer

	// Boundaries is the clip's resolved speech envelope.
	Boundaries boundary.Boundaries

	// AlreadyNormalized marks a clip whose onset already sits at the target
	// padding offset from a prior pipeline stage; normalisation is skipped
	// for it so the clip is not processed twice.
	AlreadyNormalized bool
}

// Info describes how the pair was aligned.
type Info struct {
	// PaddingAdded is the total trailing silence, in seconds, appended
	// during duration equalisation.
	PaddingAdded float64 `json:"padding_added"`

	// FinalDuration is the shared duration of both output clips in seconds.
	FinalDuration float64 `json:"final_duration"`

	// Method is how the result was produced.
	Method Method `json:"method"`

	// Err carries the failure reason when Method is error_fallback.
	Err string `json:"error,omitempty"`
}

// Result holds the two aligned blobs plus alignment metadata. Clip order is
// preserved from the call.
type Result struct {
	Audio1 []byte
	Audio2 []byte
	Info   Info
}

// Pair aligns two clips so their speech onsets coincide at paddingMs and
// their durations match exactly. Zero or negative paddingMs selects
// [DefaultPaddingMs].
//
// Pair does not return an error: every failure mode (nil buffers, envelope
// outside the clip, internal panic) falls back to the original blobs with
// Method error_fallback and the reason in Info.Err.
func Pair(clip1, clip2 Clip, paddingMs int) (res Result) {
	if paddingMs <= 0 {
		paddingMs = DefaultPaddingMs
	}

	fallback := func(reason string) Result {
		slog.Warn("alignment failed; returning originals unaligned", "reason", reason)
		return Result{
			Audio1: clip1.Blob,
			Audio2: clip2.Blob,
			Info:   Info{Method: MethodErrorFallback, Err: reason},
		}
	}

	// A panic anywhere below degrades to the fallback; alignment failures
	// must never crash the caller's playback path.
	defer func() {
		if r := recover(); r != nil {
			res = fallback(fmt.Sprintf("panic: %v", r))
		}
	}()

	if clip1.Buffer == nil || clip2.Buffer == nil {
		return fallback("missing decoded audio")
	}
	if clip1.Buffer.NumSamples() == 0 || clip2.Buffer.NumSamples() == 0 {
		return fallback("empty clip")
	}

	norm1, err := normalize(clip1, paddingMs)
	if err != nil {
		return fallback(err.Error())
	}
	norm2, err := normalize(clip2, paddingMs)
	if err != nil {
		return fallback(err.Error())
	}

	dur1 := norm1.Duration()
	dur2 := norm2.Duration()
	diff := math.Abs(dur1 - dur2)

	if diff < durationTolerance {
		return Result{
			Audio1: audio.EncodeWAV(norm1),
			Audio2: audio.EncodeWAV(norm2),
			Info: Info{
				PaddingAdded:  0,
				FinalDuration: math.Max(dur1, dur2),
				Method:        MethodAlreadyAligned,
			},
		}
	}

	// Equalise by appending silence to the shorter clip. Only the end is
	// ever padded here — front padding would move the onset that
	// normalisation just pinned.
	var padded float64
	if dur1 < dur2 {
		norm1, padded = padToDuration(norm1, dur2)
	} else {
		norm2, padded = padToDuration(norm2, dur1)
	}

	return Result{
		Audio1: audio.EncodeWAV(norm1),
		Audio2: audio.EncodeWAV(norm2),
		Info: Info{
			PaddingAdded:  padded,
			FinalDuration: math.Max(norm1.Duration(), norm2.Duration()),
			Method:        MethodEndPadding,
		},
	}
}

// normalize rebuilds a clip as [pad | speech | pad] so that the speech
// onset lands at exactly floor(paddingMs/1000 * rate) samples. The raw
// (unpadded) envelope from the boundary resolver decides where speech
// starts and how long it runs; trailing source audio past the envelope may
// fill part of the back pad region.
func normalize(c Clip, paddingMs int) (*audio.Buffer, error) {
	if c.AlreadyNormalized {
		return c.Buffer, nil
	}

	buf := c.Buffer
	rate := buf.SampleRate
	if rate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", rate)
	}

	speechDur := c.Boundaries.OriginalSpeechEnd - c.Boundaries.OriginalSpeechStart
	if speechDur <= 0 {
		return nil, fmt.Errorf("empty speech envelope [%.3f, %.3f]",
			c.Boundaries.OriginalSpeechStart, c.Boundaries.OriginalSpeechEnd)
	}

	// floor truncation throughout so placement is sample-exact and
	// reproducible across rates.
	padSamples := int(math.Floor(float64(paddingMs) / 1000 * float64(rate)))
	speechSamples := int(math.Floor(speechDur * float64(rate)))
	onsetSample := int(math.Floor(c.Boundaries.OriginalSpeechStart * float64(rate)))
	if onsetSample >= buf.NumSamples() {
		return nil, fmt.Errorf("speech onset %d beyond clip end %d", onsetSample, buf.NumSamples())
	}

	out := audio.NewBuffer(buf.NumChannels(), rate, padSamples+speechSamples+padSamples)
	for ch := range buf.Channels {
		src := buf.Channels[ch][onsetSample:]
		dst := out.Channels[ch][padSamples:]
		copy(dst, src)
	}
	return out, nil
}

// padToDuration appends trailing silence so the buffer reaches target
// seconds. Returns the new buffer and the seconds of silence added.
func padToDuration(buf *audio.Buffer, target float64) (*audio.Buffer, float64) {
	rate := buf.SampleRate
	targetSamples := int(math.Floor(target * float64(rate)))
	have := buf.NumSamples()
	if targetSamples <= have {
		return buf, 0
	}
	out := audio.NewBuffer(buf.NumChannels(), rate, targetSamples)
	for ch := range buf.Channels {
		copy(out.Channels[ch], buf.Channels[ch])
	}
	return out, float64(targetSamples-have) / float64(rate)
}

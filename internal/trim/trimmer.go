// Package trim removes leading and trailing silence from a clip using
// resolved speech boundaries, under hard safety caps.
//
// The caps (MaxTrimStart/MaxTrimEnd) bound how much audio can ever be
// removed from either end regardless of how much silence the detector
// claims to have found — a misdetection can cost at most the cap, never the
// clip. Degenerate outcomes (a near-empty result, or nothing worth
// trimming) return the original blob untouched with zero trim amounts.
package trim

import (
	"math"

	"github.com/attune-audio/attune/internal/boundary"
	"github.com/attune-audio/attune/pkg/audio"
)

const (
	// MinResultDuration is the shortest clip a trim may produce. A computed
	// trim that would leave less than this is skipped entirely.
	MinResultDuration = 0.05

	// MinTrimmableSilence is the silence below which an edge is considered
	// already clean. When both edges are under it the trim is a no-op.
	MinTrimmableSilence = 0.1
)

// Default option values.
const (
	DefaultPadding      = 0.2
	DefaultMaxTrimStart = 5.0
	DefaultMaxTrimEnd   = 5.0
)

// Options controls a trim operation. All values are seconds.
type Options struct {
	// Padding is the silence retained before and after the speech envelope
	// so the cut never clips into an onset or decay.
	Padding float64

	// MaxTrimStart and MaxTrimEnd are hard caps on the amount removed from
	// the front and back respectively, independent of detected silence.
	MaxTrimStart float64
	MaxTrimEnd   float64
}

func (o Options) withDefaults() Options {
	if o.Padding <= 0 {
		o.Padding = DefaultPadding
	}
	if o.MaxTrimStart <= 0 {
		o.MaxTrimStart = DefaultMaxTrimStart
	}
	if o.MaxTrimEnd <= 0 {
		o.MaxTrimEnd = DefaultMaxTrimEnd
	}
	return o
}

// Result describes one trim operation. When the trim was skipped the Blob
// is the caller's original bytes and both trim amounts are zero.
type Result struct {
	// Blob is the re-encoded (or passed-through) WAV bytes.
	Blob []byte `json:"-"`

	// TrimmedStart and TrimmedEnd are the seconds removed from each end.
	TrimmedStart float64 `json:"trimmed_start"`
	TrimmedEnd   float64 `json:"trimmed_end"`

	OriginalDuration float64 `json:"original_duration"`
	NewDuration      float64 `json:"new_duration"`

	// Boundaries is the envelope the trim was computed from.
	Boundaries boundary.Boundaries `json:"boundaries"`
}

// Trim computes safe trim offsets from the resolved boundaries and returns
// a new WAV blob with the retained range. blob is the clip's original
// encoded bytes, returned unchanged whenever trimming is skipped:
//
//   - boundaries are marked VADFailed (clip must be treated as all-speech),
//   - both edges already carry less than [MinTrimmableSilence] of silence,
//   - the computed result would be shorter than [MinResultDuration].
//
// The cut is a straight copy at sample boundaries; no fades are applied.
// The retained padding around the envelope is what prevents clicks.
func Trim(buf *audio.Buffer, blob []byte, bounds boundary.Boundaries, opts Options) Result {
	opts = opts.withDefaults()
	dur := buf.Duration()

	passthrough := Result{
		Blob:             blob,
		TrimmedStart:     0,
		TrimmedEnd:       0,
		OriginalDuration: dur,
		NewDuration:      dur,
		Boundaries:       bounds,
	}

	if bounds.VADFailed {
		return passthrough
	}
	if bounds.SilenceStart < MinTrimmableSilence && bounds.SilenceEnd < MinTrimmableSilence {
		return passthrough
	}

	startTrim := clamp(bounds.StartTime-opts.Padding, 0, opts.MaxTrimStart)
	endTrim := clamp(dur-bounds.EndTime-opts.Padding, 0, opts.MaxTrimEnd)

	newDur := dur - startTrim - endTrim
	if newDur <= MinResultDuration {
		return passthrough
	}
	if startTrim == 0 && endTrim == 0 {
		return passthrough
	}

	rate := float64(buf.SampleRate)
	startSample := int(math.Floor(startTrim * rate))
	endSample := buf.NumSamples() - int(math.Floor(endTrim*rate))

	trimmed := buf.Slice(startSample, endSample)
	return Result{
		Blob:             audio.EncodeWAV(trimmed),
		TrimmedStart:     startTrim,
		TrimmedEnd:       endTrim,
		OriginalDuration: dur,
		NewDuration:      trimmed.Duration(),
		Boundaries:       bounds,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

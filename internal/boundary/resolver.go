// Package boundary resolves raw VAD segments into one speech envelope per
// clip.
//
// The resolver merges segments separated by short gaps, derives the single
// [earliest start, latest end] interval spanning all speech, and attaches a
// heuristic confidence score. Every return path populates the full
// [Boundaries] record — downstream code never needs to guard against
// missing fields.
package boundary

import (
	"math"
	"sort"

	"github.com/attune-audio/attune/internal/detect"
)

// Merge-gap tolerances in seconds. Alignment uses the wider gap so that a
// sentence with mid-phrase pauses still resolves to one envelope; generic
// silence trimming uses the tighter gap so that long pauses remain
// trimmable. Both values are empirically tuned and exposed through config
// rather than treated as invariants.
const (
	MergeGapAlign = 0.5
	MergeGapTrim  = 0.1
)

// expectedSpeechShare is the fraction of a clip expected to be speech for
// full confidence. Clips with sparser speech scale down linearly.
const expectedSpeechShare = 0.8

// Boundaries is the resolved speech envelope for one clip. Times are
// seconds on the clip's own timeline; samples are at sampleRate as passed
// to [Resolve]. Instances are created fresh per analysis and never mutated
// after return.
type Boundaries struct {
	// StartTime and EndTime delimit the speech envelope.
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`

	// StartSample and EndSample are the envelope in sample offsets.
	StartSample int `json:"start_sample"`
	EndSample   int `json:"end_sample"`

	// OriginalSpeechStart and OriginalSpeechEnd preserve the raw envelope
	// before any caller-applied padding; the alignment engine keys its
	// onset placement off these.
	OriginalSpeechStart float64 `json:"original_speech_start"`
	OriginalSpeechEnd   float64 `json:"original_speech_end"`

	// SilenceStart is the leading silence duration, SilenceEnd the
	// trailing silence duration implied by the envelope.
	SilenceStart float64 `json:"silence_start"`
	SilenceEnd   float64 `json:"silence_end"`

	// SpeechSegments is the merged segment count.
	SpeechSegments int `json:"speech_segments"`

	// ConfidenceScore in [0, 1] is a heuristic signal (not a probability):
	// the ratio of detected speech to the expected speech share of the clip.
	ConfidenceScore float64 `json:"confidence_score"`

	// VADFailed marks a clip that must be treated as all-speech (detector
	// unavailable or no speech found). When set, the envelope spans the
	// whole clip and no trimming should occur.
	VADFailed bool `json:"vad_failed"`

	// Err is a human-readable failure reason when VADFailed is set, empty
	// otherwise.
	Err string `json:"error,omitempty"`
}

// FullClip returns all-speech boundaries for a clip, used whenever
// detection cannot contribute a real envelope. reason may be empty for the
// plain no-speech case.
func FullClip(clipDuration float64, sampleRate int, reason string) Boundaries {
	return Boundaries{
		StartTime:           0,
		EndTime:             clipDuration,
		StartSample:         0,
		EndSample:           int(clipDuration * float64(sampleRate)),
		OriginalSpeechStart: 0,
		OriginalSpeechEnd:   clipDuration,
		SilenceStart:        0,
		SilenceEnd:          0,
		SpeechSegments:      0,
		ConfidenceScore:     0,
		VADFailed:           true,
		Err:                 reason,
	}
}

// Resolve merges the raw segments and derives the clip's speech envelope.
// mergeGap is the maximum silence, in seconds, bridged between consecutive
// segments; use [MergeGapAlign] or [MergeGapTrim]. Zero segments yield
// full-clip VADFailed boundaries with confidence 0.
func Resolve(segments []detect.Segment, clipDuration float64, sampleRate int, mergeGap float64) Boundaries {
	if len(segments) == 0 {
		return FullClip(clipDuration, sampleRate, "")
	}

	merged := merge(segments, mergeGap)

	start := merged[0].StartTime
	end := merged[0].EndTime
	var speechTotal float64
	for _, s := range merged {
		if s.StartTime < start {
			start = s.StartTime
		}
		if s.EndTime > end {
			end = s.EndTime
		}
		speechTotal += s.EndTime - s.StartTime
	}

	// Clamp the envelope to the clip.
	start = math.Max(0, start)
	if clipDuration > 0 {
		end = math.Min(end, clipDuration)
	}
	if end < start {
		end = start
	}

	confidence := 1.0
	if clipDuration > 0 {
		confidence = math.Min(1, speechTotal/(clipDuration*expectedSpeechShare))
	}

	return Boundaries{
		StartTime:           start,
		EndTime:             end,
		StartSample:         int(start * float64(sampleRate)),
		EndSample:           int(end * float64(sampleRate)),
		OriginalSpeechStart: start,
		OriginalSpeechEnd:   end,
		SilenceStart:        start,
		SilenceEnd:          math.Max(0, clipDuration-end),
		SpeechSegments:      len(merged),
		ConfidenceScore:     confidence,
		VADFailed:           false,
	}
}

// merge combines segments whose inter-segment gap is at most mergeGap
// seconds. Segments exactly touching (gap 0) always merge. Input order is
// not assumed; segments are sorted by start time first.
func merge(segments []detect.Segment, mergeGap float64) []detect.Segment {
	sorted := make([]detect.Segment, len(segments))
	copy(sorted, segments)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartTime < sorted[j].StartTime })

	out := sorted[:1]
	for _, next := range sorted[1:] {
		cur := &out[len(out)-1]
		if next.StartTime-cur.EndTime <= mergeGap {
			if next.EndTime > cur.EndTime {
				cur.EndTime = next.EndTime
			}
			cur.Length += next.Length
			continue
		}
		out = append(out, next)
	}
	return out
}

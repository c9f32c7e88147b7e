// Package detect turns a frame-level VAD scorer into clip-level speech
// segments.
//
// The detector owns everything backend-independent: resampling to the
// scorer's 16 kHz operating rate, the synthetic pre-padding trick, the
// hysteresis state machine that assembles frames into utterances, and the
// one-time backend initialisation with a timeout. Results are a tagged
// [Detection] — OK with segments, no speech, or backend unavailable — so
// callers pattern-match on status instead of probing sentinel fields.
package detect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/attune-audio/attune/pkg/audio"
	"github.com/attune-audio/attune/pkg/provider/vad"
)

// ErrUnavailable is wrapped by Detection.Err when the backend could not be
// initialised. Callers treat the clip as all-speech rather than failing.
var ErrUnavailable = errors.New("detect: vad backend unavailable")

// Default adapter parameters.
const (
	// DefaultPrePadMs is the synthetic leading silence prepended before
	// scoring. Detectors are unreliable on clips whose speech starts at (or
	// near) sample zero — common with re-encoded MP3 sources — and the
	// pre-pad makes detection invariant to the amount of original leading
	// silence. The same amount is subtracted from every reported boundary.
	DefaultPrePadMs = 320

	// DefaultInitTimeout bounds the one-time backend initialisation.
	DefaultInitTimeout = 5 * time.Second
)

// Status tags a Detection result.
type Status int

const (
	// StatusOK means the backend ran and found at least one speech segment.
	StatusOK Status = iota

	// StatusNoSpeech means the backend ran but found no speech. Callers
	// fall back to treating the whole clip as speech (no trimming).
	StatusNoSpeech

	// StatusUnavailable means the backend failed to initialise or score.
	// Same caller fallback as StatusNoSpeech; Err carries the reason.
	StatusUnavailable
)

// String returns the status name for logs.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNoSpeech:
		return "no_speech"
	case StatusUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Segment is one detected utterance. Times are seconds relative to the
// original (un-padded) clip timeline; Length is the segment's extent in
// samples at the scorer's 16 kHz operating rate.
type Segment struct {
	StartTime float64
	EndTime   float64
	Length    int
}

// Detection is the tagged result of one detection run.
type Detection struct {
	Status   Status
	Segments []Segment

	// Err is set when Status is StatusUnavailable.
	Err error
}

// Config holds the adapter-level parameters layered on top of the
// backend-level [vad.Config].
type Config struct {
	// VAD is the frame-level configuration handed to the scorer loop.
	// Zero values take the vad package defaults.
	VAD vad.Config

	// PrePadMs is the synthetic leading silence in milliseconds.
	// Zero means DefaultPrePadMs; negative disables pre-padding.
	PrePadMs int

	// InitTimeout bounds the one-time backend initialisation.
	// Zero means DefaultInitTimeout.
	InitTimeout time.Duration
}

func (c Config) withDefaults() Config {
	c.VAD = c.VAD.Normalize()
	if c.PrePadMs == 0 {
		c.PrePadMs = DefaultPrePadMs
	}
	if c.PrePadMs < 0 {
		c.PrePadMs = 0
	}
	if c.InitTimeout <= 0 {
		c.InitTimeout = DefaultInitTimeout
	}
	return c
}

// Detector adapts a [vad.Engine] to whole-clip segment detection.
//
// The first call performs a one-time warmup of the backend, bounded by
// Config.InitTimeout. If warmup fails or times out, the detector is
// permanently unavailable for the life of the process and every subsequent
// call returns StatusUnavailable immediately — the expensive initialisation
// is never retried. Concurrent DetectSegments calls are safe; each run gets
// its own scorer.
type Detector struct {
	engine vad.Engine
	cfg    Config

	warmupOnce sync.Once
	warmupErr  error
}

// New creates a Detector for the given backend engine.
func New(engine vad.Engine, cfg Config) *Detector {
	return &Detector{engine: engine, cfg: cfg.withDefaults()}
}

// Warmup performs the one-time backend initialisation if it has not run
// yet, and reports its outcome. Safe to call concurrently; only the first
// caller pays the cost. Exposed so a readiness probe can trigger and check
// initialisation before the first real clip arrives.
func (d *Detector) Warmup(ctx context.Context) error {
	d.warmupOnce.Do(func() {
		initCtx, cancel := context.WithTimeout(ctx, d.cfg.InitTimeout)
		defer cancel()

		start := time.Now()
		_, err := d.engine.NewScorer(initCtx)
		if err != nil {
			d.warmupErr = fmt.Errorf("%w: %v", ErrUnavailable, err)
			slog.Error("vad backend initialisation failed; detection disabled for this session",
				"err", err, "elapsed", time.Since(start))
			return
		}
		slog.Info("vad backend initialised", "elapsed", time.Since(start))
	})
	return d.warmupErr
}

// DetectSegments runs voice activity detection over a complete mono clip
// and returns the detected utterances. samples are float32 PCM in [-1, 1]
// at sampleRate Hz; the clip is resampled internally to the scorer's
// operating rate.
func (d *Detector) DetectSegments(ctx context.Context, samples []float32, sampleRate int) Detection {
	if err := d.Warmup(ctx); err != nil {
		return Detection{Status: StatusUnavailable, Err: err}
	}

	scorer, err := d.engine.NewScorer(ctx)
	if err != nil {
		// Warmup succeeded earlier, so this is a transient per-run failure;
		// degrade this call without poisoning the detector.
		slog.Warn("vad scorer construction failed for this run", "err", err)
		return Detection{Status: StatusUnavailable, Err: fmt.Errorf("%w: %v", ErrUnavailable, err)}
	}

	mono := audio.ResampleMono(samples, sampleRate, vad.OperatingRate)

	prePadSamples := d.cfg.PrePadMs * vad.OperatingRate / 1000
	if prePadSamples > 0 {
		padded := make([]float32, prePadSamples+len(mono))
		copy(padded[prePadSamples:], mono)
		mono = padded
	}

	raw, err := d.scoreFrames(ctx, scorer, mono)
	if err != nil {
		slog.Warn("vad scoring failed", "err", err)
		return Detection{Status: StatusUnavailable, Err: fmt.Errorf("%w: %v", ErrUnavailable, err)}
	}

	segs := d.correctPrePad(raw)
	if len(segs) == 0 {
		return Detection{Status: StatusNoSpeech}
	}
	return Detection{Status: StatusOK, Segments: segs}
}

// scoreFrames runs the hysteresis state machine over the (pre-padded) mono
// signal. Returned segment times are relative to the padded timeline.
func (d *Detector) scoreFrames(ctx context.Context, scorer vad.Scorer, mono []float32) ([]Segment, error) {
	cfg := d.cfg.VAD
	frameDur := float64(cfg.FrameSamples) / vad.OperatingRate
	totalFrames := (len(mono) + cfg.FrameSamples - 1) / cfg.FrameSamples

	var (
		segs []Segment

		inSpeech       bool
		tentativeStart = -1 // frame index of the first frame of a possible utterance
		activeRun      int  // consecutive active frames while not yet confirmed
		segStart       int  // confirmed segment start frame (pad applied)
		lastActive     int  // last frame at or above the negative threshold
		redemption     int  // consecutive silent frames while a segment is open
	)

	closeSegment := func(endFrame int) {
		end := endFrame + cfg.SpeechPadFrames
		if end > totalFrames {
			end = totalFrames
		}
		segs = append(segs, Segment{
			StartTime: float64(segStart) * frameDur,
			EndTime:   float64(end) * frameDur,
			Length:    (end - segStart) * cfg.FrameSamples,
		})
	}

	for f := 0; f < totalFrames; f++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lo := f * cfg.FrameSamples
		hi := lo + cfg.FrameSamples
		if hi > len(mono) {
			hi = len(mono)
		}
		p, err := scorer.Score(mono[lo:hi])
		if err != nil {
			return nil, fmt.Errorf("score frame %d: %w", f, err)
		}

		if inSpeech {
			if p < cfg.NegativeSpeechThreshold {
				redemption++
				if redemption >= cfg.RedemptionFrames {
					closeSegment(lastActive + 1)
					inSpeech = false
					redemption = 0
					tentativeStart = -1
					activeRun = 0
				}
			} else {
				redemption = 0
				lastActive = f
			}
			continue
		}

		if p >= cfg.PositiveSpeechThreshold {
			if tentativeStart < 0 {
				tentativeStart = f
			}
			activeRun++
			if activeRun >= cfg.MinSpeechFrames {
				segStart = tentativeStart - cfg.PreSpeechPadFrames
				if segStart < 0 {
					segStart = 0
				}
				inSpeech = true
				lastActive = f
				redemption = 0
			}
		} else {
			tentativeStart = -1
			activeRun = 0
		}
	}

	if inSpeech {
		closeSegment(lastActive + 1)
	}
	return segs, nil
}

// correctPrePad shifts segment boundaries back by the synthetic pre-pad,
// clamping starts at zero. A segment that lies entirely within the pre-pad
// region is a detector artefact and is dropped.
func (d *Detector) correctPrePad(segs []Segment) []Segment {
	offset := float64(d.cfg.PrePadMs) / 1000
	if offset == 0 {
		return segs
	}
	out := segs[:0]
	for _, s := range segs {
		s.StartTime -= offset
		s.EndTime -= offset
		if s.EndTime <= 0 {
			continue
		}
		if s.StartTime < 0 {
			s.StartTime = 0
		}
		s.Length = int((s.EndTime - s.StartTime) * vad.OperatingRate)
		out = append(out, s)
	}
	return out
}

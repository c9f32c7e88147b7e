// Package pipeline orchestrates the per-clip processing chain:
// decode → VAD → boundary resolve → {trim | align} → encode.
//
// The Processor is the only place the stages are wired together; each stage
// itself is a pure function taking everything it needs as parameters, so
// the core stays testable without any process-wide state. The process-wide
// singletons — the lazily initialised VAD backend and the level cache —
// are owned by the caller and injected here once at construction.
//
// Failure policy (availability over quality): decode errors are fatal for
// their clip and surface to the caller; every other failure degrades to
// passing the audio through unmodified.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/attune-audio/attune/internal/align"
	"github.com/attune-audio/attune/internal/boundary"
	"github.com/attune-audio/attune/internal/detect"
	"github.com/attune-audio/attune/internal/level"
	"github.com/attune-audio/attune/internal/observe"
	"github.com/attune-audio/attune/internal/trim"
	"github.com/attune-audio/attune/pkg/audio"
)

// Options holds the pipeline-level tunables. Zero values take the stage
// packages' defaults.
type Options struct {
	// TrimMergeGap is the segment-merge tolerance (seconds) used when
	// resolving boundaries for silence trimming.
	TrimMergeGap float64

	// AlignMergeGap is the wider tolerance used for two-clip alignment,
	// where mid-sentence pauses must not split the envelope.
	AlignMergeGap float64

	// Trim holds the silence-trim padding and safety caps.
	Trim trim.Options

	// AlignPaddingMs is the front padding at which both clips' speech
	// onsets are placed.
	AlignPaddingMs int
}

func (o Options) withDefaults() Options {
	if o.TrimMergeGap <= 0 {
		o.TrimMergeGap = boundary.MergeGapTrim
	}
	if o.AlignMergeGap <= 0 {
		o.AlignMergeGap = boundary.MergeGapAlign
	}
	if o.AlignPaddingMs <= 0 {
		o.AlignPaddingMs = align.DefaultPaddingMs
	}
	return o
}

// Processor runs clip operations. Safe for concurrent use: two independent
// clip pipelines may run fully in parallel; they share only the detector's
// read-only backend and the level analyzer's cache.
type Processor struct {
	detector *detect.Detector
	levels   *level.Analyzer
	metrics  *observe.Metrics
	opts     Options
}

// New creates a Processor. metrics may be nil in tests; levels may be nil
// when loudness endpoints are not served.
func New(detector *detect.Detector, levels *level.Analyzer, metrics *observe.Metrics, opts Options) *Processor {
	return &Processor{
		detector: detector,
		levels:   levels,
		metrics:  metrics,
		opts:     opts.withDefaults(),
	}
}

// ClipAnalysis pairs a decoded clip with its resolved speech boundaries.
type ClipAnalysis struct {
	Buffer     *audio.Buffer
	Boundaries boundary.Boundaries
}

// analyze decodes a clip and resolves its speech envelope with the given
// merge gap. Decode failures are returned as errors (fatal for the clip);
// detector failures resolve to full-clip VADFailed boundaries.
func (p *Processor) analyze(ctx context.Context, blob []byte, mergeGap float64) (ClipAnalysis, error) {
	start := time.Now()
	buf, err := audio.Decode(blob)
	p.metrics.ObserveStage(ctx, observe.StageDecode, time.Since(start), err == nil)
	if err != nil {
		return ClipAnalysis{}, fmt.Errorf("pipeline: %w", err)
	}

	dur := buf.Duration()

	vadStart := time.Now()
	det := p.detector.DetectSegments(ctx, buf.MixdownMono(), buf.SampleRate)
	p.metrics.ObserveStage(ctx, observe.StageVAD, time.Since(vadStart), det.Status == detect.StatusOK)

	var bounds boundary.Boundaries
	switch det.Status {
	case detect.StatusOK:
		bounds = boundary.Resolve(det.Segments, dur, buf.SampleRate, mergeGap)
	case detect.StatusNoSpeech:
		p.metrics.CountFallback(ctx, "no_speech")
		bounds = boundary.FullClip(dur, buf.SampleRate, "")
	default:
		p.metrics.CountFallback(ctx, "vad_unavailable")
		reason := ""
		if det.Err != nil {
			reason = det.Err.Error()
		}
		bounds = boundary.FullClip(dur, buf.SampleRate, reason)
	}

	return ClipAnalysis{Buffer: buf, Boundaries: bounds}, nil
}

// DetectBoundaries resolves a clip's speech envelope for display or
// debugging. It never fails: a decode error is folded into full-clip
// VADFailed boundaries carrying the reason, so callers that only want
// boundary metadata never have to handle a rejection.
func (p *Processor) DetectBoundaries(ctx context.Context, blob []byte) boundary.Boundaries {
	a, err := p.analyze(ctx, blob, p.opts.TrimMergeGap)
	if err != nil {
		slog.Warn("boundary detection failed on undecodable clip", "err", err)
		return boundary.FullClip(0, 0, err.Error())
	}
	return a.Boundaries
}

// TrimSilence removes leading/trailing silence from a clip. A decode error
// is returned as-is (the only fatal failure); any detection failure results
// in the original blob passing through untouched. Positive fields of
// override replace the configured trim options for this request only.
func (p *Processor) TrimSilence(ctx context.Context, blob []byte, override trim.Options) (trim.Result, error) {
	a, err := p.analyze(ctx, blob, p.opts.TrimMergeGap)
	if err != nil {
		return trim.Result{}, err
	}

	opts := p.opts.Trim
	if override.Padding > 0 {
		opts.Padding = override.Padding
	}
	if override.MaxTrimStart > 0 {
		opts.MaxTrimStart = override.MaxTrimStart
	}
	if override.MaxTrimEnd > 0 {
		opts.MaxTrimEnd = override.MaxTrimEnd
	}

	start := time.Now()
	res := trim.Trim(a.Buffer, blob, a.Boundaries, opts)
	p.metrics.ObserveStage(ctx, observe.StageTrim, time.Since(start), true)

	if res.TrimmedStart == 0 && res.TrimmedEnd == 0 {
		slog.Debug("trim skipped", "duration", res.OriginalDuration, "vad_failed", a.Boundaries.VADFailed)
	}
	return res, nil
}

// AlignPair produces two onset-synchronised, duration-matched blobs from a
// target clip and a learner's attempt. Both clips are analysed concurrently.
// paddingMs overrides the configured front padding when positive.
// AlignPair never returns an error: any failure — including a clip that
// does not decode — degrades to the original blobs with method
// error_fallback, because alignment must never block playback.
func (p *Processor) AlignPair(ctx context.Context, blob1, blob2 []byte, paddingMs int) align.Result {
	if paddingMs <= 0 {
		paddingMs = p.opts.AlignPaddingMs
	}
	start := time.Now()

	var a1, a2 ClipAnalysis
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		a1, err = p.analyze(gctx, blob1, p.opts.AlignMergeGap)
		return err
	})
	g.Go(func() error {
		var err error
		a2, err = p.analyze(gctx, blob2, p.opts.AlignMergeGap)
		return err
	})
	if err := g.Wait(); err != nil {
		p.metrics.CountFallback(ctx, "align_decode")
		p.metrics.ObserveStage(ctx, observe.StageAlign, time.Since(start), false)
		slog.Warn("alignment fell back to originals", "err", err)
		return align.Result{
			Audio1: blob1,
			Audio2: blob2,
			Info:   align.Info{Method: align.MethodErrorFallback, Err: err.Error()},
		}
	}

	res := align.Pair(
		align.Clip{Blob: blob1, Buffer: a1.Buffer, Boundaries: a1.Boundaries},
		align.Clip{Blob: blob2, Buffer: a2.Buffer, Boundaries: a2.Boundaries},
		paddingMs,
	)
	ok := res.Info.Method != align.MethodErrorFallback
	if !ok {
		p.metrics.CountFallback(ctx, "align_failed")
	}
	p.metrics.ObserveStage(ctx, observe.StageAlign, time.Since(start), ok)
	return res
}

// MeasureLevels decodes a clip and measures its loudness, serving repeat
// requests for the same blob identity from the analyzer's cache. cacheKey
// may be empty to bypass the cache.
func (p *Processor) MeasureLevels(ctx context.Context, blob []byte, cacheKey string) (level.Info, error) {
	start := time.Now()
	buf, err := audio.Decode(blob)
	p.metrics.ObserveStage(ctx, observe.StageDecode, time.Since(start), err == nil)
	if err != nil {
		return level.Info{}, fmt.Errorf("pipeline: %w", err)
	}

	measureStart := time.Now()
	info := p.levels.Measure(buf, cacheKey)
	p.metrics.ObserveStage(ctx, observe.StageLevels, time.Since(measureStart), true)
	return info, nil
}

// Warmup triggers the detector's one-time backend initialisation. Exposed
// for the readiness probe.
func (p *Processor) Warmup(ctx context.Context) error {
	return p.detector.Warmup(ctx)
}

// Package vad defines the Scorer and Engine interfaces for voice activity
// detection backends.
//
// A VAD backend is a frame-level speech scorer (an energy model, a Silero
// ONNX runtime, a WebRTC VAD binding...) surfaced behind a tiny contract:
// given one fixed-size frame of mono float32 PCM at the 16 kHz operating
// rate, yield a speech probability. Everything above the scorer — framing,
// hysteresis, segment assembly, pre-padding correction — lives in
// internal/detect and is backend-independent.
//
// Engines may be expensive to construct (model load); NewScorer takes a
// context so construction can be bounded by a timeout. A Scorer is used by
// a single detection run at a time; engines must be safe for concurrent
// NewScorer calls so that independent clips can be analysed in parallel.
package vad

import (
	"context"
	"fmt"
)

// OperatingRate is the sample rate, in Hz, at which every Scorer operates.
// Callers resample to this rate before framing.
const OperatingRate = 16000

// Default configuration values. See the Config field documentation for what
// each controls.
const (
	DefaultPositiveSpeechThreshold = 0.3
	DefaultNegativeSpeechThreshold = 0.2
	DefaultMinSpeechFrames         = 3
	DefaultFrameSamples            = 512
	DefaultRedemptionFrames        = 32
	DefaultPreSpeechPadFrames      = 4
	DefaultSpeechPadFrames         = 8
)

// Config holds the frame-level detection parameters shared by all backends.
// Zero values are replaced by the package defaults in [Config.Normalize].
type Config struct {
	// PositiveSpeechThreshold is the probability at or above which a frame
	// counts as speech. Range [0, 1].
	PositiveSpeechThreshold float64

	// NegativeSpeechThreshold is the probability below which a frame counts
	// as silence while a segment is open. Must be less than
	// PositiveSpeechThreshold; the gap between the two is the hysteresis
	// band that prevents flicker at segment edges.
	NegativeSpeechThreshold float64

	// MinSpeechFrames is the number of consecutive active frames required
	// before an utterance is confirmed. Shorter bursts are discarded.
	MinSpeechFrames int

	// FrameSamples is the frame length in samples at [OperatingRate].
	// 512 samples is ~32 ms.
	FrameSamples int

	// RedemptionFrames is how many frames of continued silence are tolerated
	// before an open utterance is closed. This bridges short intra-utterance
	// gaps (plosives, breath pauses).
	RedemptionFrames int

	// PreSpeechPadFrames is how many frames of context before a confirmed
	// speech start are retained in the reported segment.
	PreSpeechPadFrames int

	// SpeechPadFrames is how many frames of context after a speech end are
	// retained in the reported segment.
	SpeechPadFrames int
}

// Normalize returns a copy of the config with zero values replaced by the
// package defaults and out-of-range values clamped. It never fails: invalid
// caller input is corrected, not rejected, since every value has a safe
// interpretation.
func (c Config) Normalize() Config {
	if c.PositiveSpeechThreshold <= 0 || c.PositiveSpeechThreshold > 1 {
		c.PositiveSpeechThreshold = DefaultPositiveSpeechThreshold
	}
	if c.NegativeSpeechThreshold <= 0 || c.NegativeSpeechThreshold > 1 {
		c.NegativeSpeechThreshold = DefaultNegativeSpeechThreshold
	}
	if c.NegativeSpeechThreshold >= c.PositiveSpeechThreshold {
		c.NegativeSpeechThreshold = c.PositiveSpeechThreshold * 2 / 3
	}
	if c.MinSpeechFrames <= 0 {
		c.MinSpeechFrames = DefaultMinSpeechFrames
	}
	if c.FrameSamples <= 0 {
		c.FrameSamples = DefaultFrameSamples
	}
	if c.RedemptionFrames <= 0 {
		c.RedemptionFrames = DefaultRedemptionFrames
	}
	if c.PreSpeechPadFrames < 0 {
		c.PreSpeechPadFrames = DefaultPreSpeechPadFrames
	}
	if c.SpeechPadFrames < 0 {
		c.SpeechPadFrames = DefaultSpeechPadFrames
	}
	return c
}

// Validate reports whether the config is internally coherent. Use this when
// values come from user configuration and silent correction is not wanted.
func (c Config) Validate() error {
	if c.PositiveSpeechThreshold < 0 || c.PositiveSpeechThreshold > 1 {
		return fmt.Errorf("vad: positive speech threshold %.3f out of range [0, 1]", c.PositiveSpeechThreshold)
	}
	if c.NegativeSpeechThreshold < 0 || c.NegativeSpeechThreshold > 1 {
		return fmt.Errorf("vad: negative speech threshold %.3f out of range [0, 1]", c.NegativeSpeechThreshold)
	}
	if c.NegativeSpeechThreshold >= c.PositiveSpeechThreshold && c.PositiveSpeechThreshold > 0 {
		return fmt.Errorf("vad: negative threshold %.3f must be below positive threshold %.3f",
			c.NegativeSpeechThreshold, c.PositiveSpeechThreshold)
	}
	return nil
}

// Scorer assigns a speech probability to a single audio frame.
//
// A Scorer is owned by one detection run; it may keep internal state across
// frames of that run (noise-floor estimates, smoothing history) and is not
// required to be safe for concurrent use.
type Scorer interface {
	// Score returns the speech probability, in [0, 1], for one frame of mono
	// float32 PCM at [OperatingRate]. The frame length is fixed per run
	// (Config.FrameSamples); a short final frame is permitted.
	Score(frame []float32) (float64, error)
}

// Engine is the factory for scorers. Construction may be expensive (loading
// a model from disk, spinning up an inference runtime), which is why it
// takes a context: callers bound it with a timeout and treat failure or
// expiry as "this backend is unavailable".
//
// Implementations must be safe for concurrent NewScorer calls.
type Engine interface {
	// NewScorer creates a scorer for one detection run.
	NewScorer(ctx context.Context) (Scorer, error)
}

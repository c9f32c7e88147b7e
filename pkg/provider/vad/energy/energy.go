// Package energy implements a pure-Go VAD backend based on frame energy
// with an adaptive noise floor.
//
// It is the default backend: no model files, no CGO, deterministic. Speech
// probability is derived from how far a frame's RMS level sits above a
// running estimate of the background noise floor, so the scorer adapts to
// recordings with different microphone gains and room tones. Quality is
// below a neural detector's, but the contract is the same, and the
// surrounding pipeline (hysteresis, merge heuristics, safety caps) is
// designed to tolerate a noisy scorer.
package energy

import (
	"context"
	"math"

	"github.com/attune-audio/attune/pkg/provider/vad"
)

// Tuning constants. The floor bounds keep the adaptive estimate from
// collapsing to zero on digital silence or climbing into the speech band on
// a clip that is mostly speech.
const (
	minNoiseFloor = 0.0005
	maxNoiseFloor = 0.05

	// floorAdapt is the exponential update rate of the noise floor on
	// frames quieter than the current estimate.
	floorAdapt = 0.05

	// speechRatio is the RMS-to-floor ratio mapped to probability 1.0.
	speechRatio = 8.0
)

// Engine creates energy scorers. The zero value is ready to use.
type Engine struct{}

// Compile-time interface assertion.
var _ vad.Engine = (*Engine)(nil)

// NewScorer returns a fresh scorer with its noise-floor state reset.
// Construction is trivial; the context is only checked for cancellation.
func (e *Engine) NewScorer(ctx context.Context) (vad.Scorer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &scorer{floor: minNoiseFloor * 4}, nil
}

// scorer holds the per-run adaptive state. Not safe for concurrent use;
// each detection run gets its own instance.
type scorer struct {
	floor  float64
	primed bool
}

var _ vad.Scorer = (*scorer)(nil)

// Score maps the frame's RMS level to a speech probability relative to the
// adaptive noise floor.
func (s *scorer) Score(frame []float32) (float64, error) {
	if len(frame) == 0 {
		return 0, nil
	}
	var sum float64
	for _, v := range frame {
		sum += float64(v) * float64(v)
	}
	rms := math.Sqrt(sum / float64(len(frame)))

	// Seed the floor from the first frame so a clip that opens mid-speech
	// does not anchor the floor at digital silence.
	if !s.primed {
		s.primed = true
		s.floor = clampFloor(rms / 2)
	} else if rms < s.floor {
		s.floor = clampFloor(s.floor*(1-floorAdapt) + rms*floorAdapt)
	}

	ratio := rms / s.floor
	if ratio <= 1 {
		return 0, nil
	}
	p := (ratio - 1) / (speechRatio - 1)
	if p > 1 {
		p = 1
	}
	return p, nil
}

func clampFloor(f float64) float64 {
	if f < minNoiseFloor {
		return minNoiseFloor
	}
	if f > maxNoiseFloor {
		return maxNoiseFloor
	}
	return f
}

package level_test

import (
	"math"
	"testing"

	"github.com/attune-audio/attune/internal/level"
)

func info(lufs float64) level.Info {
	return level.Info{LUFS: lufs, RMS: 0.1, Peak: 0.5, Duration: 1, SampleRate: 16000}
}

func TestNormalizationGains_AverageMode(t *testing.T) {
	t.Parallel()
	g := level.NormalizationGains(info(-18), info(-24), level.GainOptions{Mode: level.ModeAverage})

	if math.Abs(g.ReferenceLUFS-(-21)) > 1e-9 {
		t.Errorf("ReferenceLUFS = %v, want -21 (midpoint)", g.ReferenceLUFS)
	}
	wantRef := math.Pow(10, -3.0/20)
	wantUser := math.Pow(10, 3.0/20)
	if math.Abs(g.Reference-wantRef) > 1e-9 {
		t.Errorf("Reference gain = %v, want %v", g.Reference, wantRef)
	}
	if math.Abs(g.User-wantUser) > 1e-9 {
		t.Errorf("User gain = %v, want %v", g.User, wantUser)
	}
}

func TestNormalizationGains_AverageModeWideSpreadFallsBackToTarget(t *testing.T) {
	t.Parallel()
	// 20 dB apart: averaging would drag both toward a bad midpoint.
	g := level.NormalizationGains(info(-10), info(-30), level.GainOptions{
		Mode:       level.ModeAverage,
		TargetLUFS: -18,
	})
	if g.ReferenceLUFS != -18 {
		t.Errorf("ReferenceLUFS = %v, want the configured target -18", g.ReferenceLUFS)
	}
}

func TestNormalizationGains_SilentClipGetsMaxGain(t *testing.T) {
	t.Parallel()
	g := level.NormalizationGains(info(-18), info(math.Inf(-1)), level.GainOptions{MaxGain: 4})

	if g.User != 4 {
		t.Errorf("User gain = %v, want capped at MaxGain 4", g.User)
	}
	if g.Reference != 1 {
		t.Errorf("Reference gain = %v, want 1 (already at the reference)", g.Reference)
	}
	if math.IsInf(g.ReferenceLUFS, 0) || math.IsNaN(g.ReferenceLUFS) {
		t.Errorf("ReferenceLUFS = %v must stay finite", g.ReferenceLUFS)
	}
}

func TestNormalizationGains_BothSilent(t *testing.T) {
	t.Parallel()
	g := level.NormalizationGains(info(math.Inf(-1)), info(math.Inf(-1)), level.GainOptions{})

	for name, v := range map[string]float64{"reference": g.Reference, "user": g.User} {
		if v < level.MinGain || v > level.DefaultMaxGain || math.IsNaN(v) {
			t.Errorf("%s gain = %v out of [%v, %v]", name, v, level.MinGain, level.DefaultMaxGain)
		}
	}
}

func TestNormalizationGains_ReferenceDriftClamped(t *testing.T) {
	t.Parallel()
	// Reference mode with a very quiet reference clip: 12 dB below target is
	// past the 6 dB drift bound, so the target wins.
	g := level.NormalizationGains(info(-30), info(-20), level.GainOptions{
		Mode:       level.ModeReference,
		TargetLUFS: -18,
	})
	if g.ReferenceLUFS != -18 {
		t.Errorf("ReferenceLUFS = %v, want clamped to -18", g.ReferenceLUFS)
	}
}

func TestNormalizationGains_TargetMode(t *testing.T) {
	t.Parallel()
	g := level.NormalizationGains(info(-18), info(-18), level.GainOptions{
		Mode:       level.ModeTarget,
		TargetLUFS: -18,
	})
	if math.Abs(g.Reference-1) > 1e-9 || math.Abs(g.User-1) > 1e-9 {
		t.Errorf("gains [%v, %v], want [1, 1] for clips already at target", g.Reference, g.User)
	}
}

func TestNormalizationGains_AttenuationFloored(t *testing.T) {
	t.Parallel()
	// A clip 40 dB above the reference would get gain 0.01; the floor holds.
	g := level.NormalizationGains(info(-18), info(-14), level.GainOptions{
		Mode:       level.ModeTarget,
		TargetLUFS: -18,
	})
	if g.User < level.MinGain {
		t.Errorf("User gain = %v below MinGain %v", g.User, level.MinGain)
	}

	loud := level.NormalizationGains(info(-18), info(22), level.GainOptions{
		Mode:       level.ModeTarget,
		TargetLUFS: -18,
	})
	if loud.User != level.MinGain {
		t.Errorf("User gain = %v, want floored at MinGain %v", loud.User, level.MinGain)
	}
}

func TestNormalizationGains_BoundsAlwaysHold(t *testing.T) {
	t.Parallel()
	values := []float64{math.Inf(-1), -60, -30, -18, -6, 0, 12, math.Inf(1)}
	for _, r := range values {
		for _, u := range values {
			g := level.NormalizationGains(info(r), info(u), level.GainOptions{})
			for name, v := range map[string]float64{"reference": g.Reference, "user": g.User} {
				if v < level.MinGain || v > level.DefaultMaxGain || math.IsNaN(v) {
					t.Errorf("LUFS (%v, %v): %s gain = %v out of bounds", r, u, name, v)
				}
			}
		}
	}
}

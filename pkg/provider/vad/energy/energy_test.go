package energy_test

import (
	"context"
	"math"
	"testing"

	"github.com/attune-audio/attune/pkg/provider/vad"
	"github.com/attune-audio/attune/pkg/provider/vad/energy"
)

func newScorer(t *testing.T) vad.Scorer {
	t.Helper()
	sc, err := (&energy.Engine{}).NewScorer(context.Background())
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}
	return sc
}

func frame(amplitude float32, n int) []float32 {
	f := make([]float32, n)
	for i := range f {
		f[i] = amplitude
	}
	return f
}

func TestEngine_NewScorerHonoursCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (&energy.Engine{}).NewScorer(ctx); err == nil {
		t.Fatal("expected an error from a cancelled context")
	}
}

func TestScorer_SilenceScoresZero(t *testing.T) {
	t.Parallel()
	sc := newScorer(t)
	for i := 0; i < 10; i++ {
		p, err := sc.Score(frame(0, 512))
		if err != nil {
			t.Fatalf("Score: %v", err)
		}
		if p != 0 {
			t.Fatalf("silent frame %d scored %v, want 0", i, p)
		}
	}
}

func TestScorer_SpeechAboveNoiseFloorScoresHigh(t *testing.T) {
	t.Parallel()
	sc := newScorer(t)

	// Establish a quiet noise floor, then hit it with a loud frame.
	for i := 0; i < 20; i++ {
		if _, err := sc.Score(frame(0.001, 512)); err != nil {
			t.Fatalf("Score: %v", err)
		}
	}
	p, err := sc.Score(frame(0.3, 512))
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if p < 0.5 {
		t.Errorf("loud frame scored %v, want >= 0.5", p)
	}
	if p > 1 {
		t.Errorf("probability %v exceeds 1", p)
	}
}

func TestScorer_ProbabilityStaysInRange(t *testing.T) {
	t.Parallel()
	sc := newScorer(t)
	amplitudes := []float32{0, 0.0001, 0.01, 0.1, 0.5, 1.0, 0.001, 0}
	for _, a := range amplitudes {
		p, err := sc.Score(frame(a, 512))
		if err != nil {
			t.Fatalf("Score(%v): %v", a, err)
		}
		if p < 0 || p > 1 || math.IsNaN(p) {
			t.Fatalf("Score(%v) = %v out of [0, 1]", a, p)
		}
	}
}

func TestScorer_EmptyFrame(t *testing.T) {
	t.Parallel()
	sc := newScorer(t)
	p, err := sc.Score(nil)
	if err != nil {
		t.Fatalf("Score(nil): %v", err)
	}
	if p != 0 {
		t.Errorf("Score(nil) = %v, want 0", p)
	}
}

func TestScorer_AdaptsToQuieterRoomTone(t *testing.T) {
	t.Parallel()
	sc := newScorer(t)

	// A moderately loud first frame seeds the floor high; sustained quiet
	// must pull it back down so later speech still stands out.
	if _, err := sc.Score(frame(0.05, 512)); err != nil {
		t.Fatalf("Score: %v", err)
	}
	for i := 0; i < 200; i++ {
		if _, err := sc.Score(frame(0.001, 512)); err != nil {
			t.Fatalf("Score: %v", err)
		}
	}
	p, err := sc.Score(frame(0.2, 512))
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if p < 0.5 {
		t.Errorf("speech after floor adaptation scored %v, want >= 0.5", p)
	}
}

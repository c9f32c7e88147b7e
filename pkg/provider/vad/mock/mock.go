// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to control scorer construction (including simulated load
// failures and hangs) and Scorer to script per-frame probabilities.
//
// Example:
//
//	sc := &mock.Scorer{Scores: []float64{0, 0, 0.9, 0.9, 0}}
//	eng := &mock.Engine{Scorer: sc}
package mock

import (
	"context"
	"sync"

	"github.com/attune-audio/attune/pkg/provider/vad"
)

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Scorer is returned by NewScorer. If nil, a zero-probability Scorer is
	// returned.
	Scorer vad.Scorer

	// NewScorerErr, if non-nil, is returned as the error from NewScorer.
	NewScorerErr error

	// Block, if true, makes NewScorer wait until the context is cancelled
	// and return ctx.Err(). Use this to exercise initialisation timeouts.
	Block bool

	// NewScorerCalls counts invocations of NewScorer.
	NewScorerCalls int
}

// NewScorer records the call and returns Scorer, NewScorerErr.
func (e *Engine) NewScorer(ctx context.Context) (vad.Scorer, error) {
	e.mu.Lock()
	e.NewScorerCalls++
	block := e.Block
	errOut := e.NewScorerErr
	sc := e.Scorer
	e.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if errOut != nil {
		return nil, errOut
	}
	if sc != nil {
		return sc, nil
	}
	return &Scorer{}, nil
}

// Calls returns the number of NewScorer invocations. Thread-safe.
func (e *Engine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.NewScorerCalls
}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

// Scorer is a mock implementation of vad.Scorer. It replays the Scores
// slice one value per frame, repeating the last value once the slice is
// exhausted (zero if the slice is empty).
type Scorer struct {
	mu sync.Mutex

	// Scores holds the per-frame probabilities to replay.
	Scores []float64

	// ScoreErr, if non-nil, is returned by every Score call.
	ScoreErr error

	// Frames records the length of every frame passed to Score.
	Frames []int

	next int
}

// Score records the frame length and returns the next scripted probability.
func (s *Scorer) Score(frame []float32) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Frames = append(s.Frames, len(frame))
	if s.ScoreErr != nil {
		return 0, s.ScoreErr
	}
	if len(s.Scores) == 0 {
		return 0, nil
	}
	idx := s.next
	if idx >= len(s.Scores) {
		idx = len(s.Scores) - 1
	} else {
		s.next++
	}
	return s.Scores[idx], nil
}

// Ensure Scorer implements vad.Scorer at compile time.
var _ vad.Scorer = (*Scorer)(nil)

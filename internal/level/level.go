// Package level measures clip loudness: RMS, peak, and a block-based
// LUFS-style integrated loudness estimate. The measurements feed the
// cross-clip gain matching used when the target and the learner's attempt
// were recorded at very different levels.
//
// Measurements are pure whole-buffer computations. The [Analyzer] adds an
// optional best-effort LRU cache keyed by the caller's blob identity
// (size/type/timestamp), since the browser client re-requests levels for
// the same blob on every playback-mode switch.
package level

import (
	"math"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/attune-audio/attune/pkg/audio"
)

// LUFS block parameters: 400 ms analysis blocks with 75% overlap (100 ms hop).
const (
	lufsBlockSeconds = 0.4
	lufsHopSeconds   = 0.1
)

// lufsOffset is the K-weighting offset constant from the BS.1770 loudness
// formula. The filter chain itself is not applied; this is an estimate, not
// a compliance meter.
const lufsOffset = -0.691

// Info is an immutable loudness snapshot for one clip.
type Info struct {
	// RMS is sqrt(mean(sample²)) over all channels and samples, in [0, 1].
	RMS float64 `json:"rms"`

	// Peak is the maximum absolute sample value over all channels.
	Peak float64 `json:"peak"`

	// Duration is the clip length in seconds.
	Duration float64 `json:"duration"`

	// SampleRate in Hz.
	SampleRate int `json:"sample_rate"`

	// LUFS is the integrated loudness estimate. math.Inf(-1) for a fully
	// silent clip.
	LUFS float64 `json:"lufs"`

	// Timestamp records when the measurement was taken.
	Timestamp time.Time `json:"timestamp"`
}

// RMS computes the root-mean-square level over all channels and samples.
func RMS(buf *audio.Buffer) float64 {
	var sum float64
	var n int
	for _, ch := range buf.Channels {
		for _, s := range ch {
			sum += float64(s) * float64(s)
		}
		n += len(ch)
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}

// Peak returns the maximum absolute sample value over all channels.
func Peak(buf *audio.Buffer) float64 {
	var peak float64
	for _, ch := range buf.Channels {
		for _, s := range ch {
			if a := math.Abs(float64(s)); a > peak {
				peak = a
			}
		}
	}
	return peak
}

// LUFS estimates integrated loudness over 400 ms blocks with a 100 ms hop.
// Per block: loudness = -0.691 + 10·log10(meanSquare); blocks are averaged
// in the energy domain and converted back. Returns -Inf when no block
// contains signal (a fully silent clip).
func LUFS(buf *audio.Buffer) float64 {
	rate := buf.SampleRate
	n := buf.NumSamples()
	if rate <= 0 || n == 0 {
		return math.Inf(-1)
	}

	blockLen := int(lufsBlockSeconds * float64(rate))
	hop := int(lufsHopSeconds * float64(rate))
	if blockLen <= 0 || hop <= 0 {
		return math.Inf(-1)
	}
	// A clip shorter than one block is measured as a single truncated block.
	if blockLen > n {
		blockLen = n
	}

	mono := buf.MixdownMono()

	var energySum float64
	var validBlocks int
	for start := 0; start+blockLen <= n; start += hop {
		var sum float64
		for _, s := range mono[start : start+blockLen] {
			sum += float64(s) * float64(s)
		}
		meanSquare := sum / float64(blockLen)
		if meanSquare <= 0 {
			continue
		}
		blockLUFS := lufsOffset + 10*math.Log10(meanSquare)
		energySum += math.Pow(10, blockLUFS/10)
		validBlocks++
	}

	if validBlocks == 0 {
		return math.Inf(-1)
	}
	return 10 * math.Log10(energySum/float64(validBlocks))
}

// Measure takes a full loudness snapshot of the buffer.
func Measure(buf *audio.Buffer) Info {
	return Info{
		RMS:        RMS(buf),
		Peak:       Peak(buf),
		Duration:   buf.Duration(),
		SampleRate: buf.SampleRate,
		LUFS:       LUFS(buf),
		Timestamp:  time.Now(),
	}
}

// Analyzer measures loudness with a best-effort LRU result cache. The cache
// key is caller-chosen (conventionally "size:type:timestamp" of the source
// blob — identity, not content-addressed). Safe for concurrent use.
type Analyzer struct {
	cache *lru.Cache[string, Info]
}

// NewAnalyzer creates an Analyzer with the given cache capacity. A capacity
// of zero or less disables caching.
func NewAnalyzer(cacheSize int) *Analyzer {
	a := &Analyzer{}
	if cacheSize > 0 {
		// lru.New only fails for non-positive sizes, which are excluded here.
		a.cache, _ = lru.New[string, Info](cacheSize)
	}
	return a
}

// Measure returns the loudness snapshot for buf, serving it from the cache
// when key is non-empty and present.
func (a *Analyzer) Measure(buf *audio.Buffer, key string) Info {
	if a.cache != nil && key != "" {
		if info, ok := a.cache.Get(key); ok {
			return info
		}
	}
	info := Measure(buf)
	if a.cache != nil && key != "" {
		a.cache.Add(key, info)
	}
	return info
}

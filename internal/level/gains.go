package level

import "math"

// BalanceMode selects how the reference loudness for gain matching is chosen.
type BalanceMode string

const (
	// ModeTarget pins the reference to the configured target LUFS.
	ModeTarget BalanceMode = "target"

	// ModeUser uses the user clip's measured loudness as the reference.
	ModeUser BalanceMode = "user"

	// ModeReference uses the reference (target) clip's measured loudness.
	ModeReference BalanceMode = "reference"

	// ModeAverage averages both clips' loudness, unless they differ by more
	// than [maxAverageSpreadDB] — then one outlier would drag the reference,
	// so the configured target LUFS is used instead.
	ModeAverage BalanceMode = "average"
)

const (
	// DefaultTargetLUFS is the reference loudness clips are matched toward.
	DefaultTargetLUFS = -18.0

	// DefaultMaxGain caps amplification; attenuation is uncapped downward
	// but floored at MinGain.
	DefaultMaxGain = 4.0

	// MinGain is the attenuation floor — results below it would be near-mute.
	MinGain = 0.1

	// maxAverageSpreadDB is the loudness spread beyond which average mode
	// falls back to the configured target.
	maxAverageSpreadDB = 12.0

	// maxReferenceDriftDB bounds how far the chosen reference may sit from
	// the configured target before it is clamped back to it.
	maxReferenceDriftDB = 6.0
)

// GainOptions configures [NormalizationGains]. Zero values take the
// package defaults; an empty Mode means ModeAverage.
type GainOptions struct {
	TargetLUFS float64
	MaxGain    float64
	Mode       BalanceMode
}

func (o GainOptions) withDefaults() GainOptions {
	if o.TargetLUFS == 0 {
		o.TargetLUFS = DefaultTargetLUFS
	}
	if o.MaxGain <= 0 {
		o.MaxGain = DefaultMaxGain
	}
	if o.Mode == "" {
		o.Mode = ModeAverage
	}
	return o
}

// Gains holds the per-clip multipliers that bring both clips to the chosen
// reference loudness. Both values are always within [MinGain, MaxGain].
type Gains struct {
	Reference float64 `json:"reference_gain"`
	User      float64 `json:"user_gain"`

	// ReferenceLUFS is the loudness both gains aim at.
	ReferenceLUFS float64 `json:"reference_lufs"`
}

// NormalizationGains computes gain multipliers that bring the reference
// (target) clip and the user clip to a common loudness. The reference
// loudness is chosen per opts.Mode, then clamped toward opts.TargetLUFS
// when it drifts more than 6 dB away. Per-clip gain is 10^((ref−clip)/20),
// capped at opts.MaxGain and floored at [MinGain], so a silent clip
// (LUFS −Inf) receives the maximum gain rather than an infinite one.
func NormalizationGains(reference, user Info, opts GainOptions) Gains {
	opts = opts.withDefaults()

	var ref float64
	switch opts.Mode {
	case ModeTarget:
		ref = opts.TargetLUFS
	case ModeUser:
		ref = user.LUFS
	case ModeReference:
		ref = reference.LUFS
	default: // ModeAverage
		spread := math.Abs(reference.LUFS - user.LUFS)
		if math.IsNaN(spread) || spread > maxAverageSpreadDB {
			ref = opts.TargetLUFS
		} else {
			ref = (reference.LUFS + user.LUFS) / 2
		}
	}

	// An extreme reference (one very quiet or very hot clip, or -Inf from
	// silence) gets clamped back toward the configured target.
	if math.IsInf(ref, 0) || math.IsNaN(ref) || math.Abs(ref-opts.TargetLUFS) > maxReferenceDriftDB {
		ref = opts.TargetLUFS
	}

	return Gains{
		Reference:     gainFor(ref, reference.LUFS, opts.MaxGain),
		User:          gainFor(ref, user.LUFS, opts.MaxGain),
		ReferenceLUFS: ref,
	}
}

func gainFor(ref, clip, maxGain float64) float64 {
	g := math.Pow(10, (ref-clip)/20)
	if math.IsNaN(g) || g > maxGain {
		return maxGain
	}
	if g < MinGain {
		return MinGain
	}
	return g
}

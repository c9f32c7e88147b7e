// Package config provides the configuration schema and loader for the
// attune audio service.
package config

import "time"

// LogLevel controls log verbosity for the attune server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for attune.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	VAD        VADConfig        `yaml:"vad"`
	Processing ProcessingConfig `yaml:"processing"`
	Levels     LevelsConfig     `yaml:"levels"`
}

// ServerConfig holds network and logging settings. The env tags allow
// container deployments to override the listen address and log level
// without editing the config file.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g. ":8080").
	ListenAddr string `yaml:"listen_addr" env:"ATTUNE_LISTEN_ADDR"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level" env:"ATTUNE_LOG_LEVEL"`

	// MaxUploadBytes caps the size of one uploaded clip. Default 64 MiB.
	MaxUploadBytes int64 `yaml:"max_upload_bytes" env:"ATTUNE_MAX_UPLOAD_BYTES"`
}

// VADConfig holds voice-activity-detection parameters. Frame-level values
// apply at the detector's 16 kHz operating rate.
type VADConfig struct {
	// Backend selects the scorer implementation. Currently "energy".
	Backend string `yaml:"backend"`

	// PositiveSpeechThreshold is the probability at or above which a frame
	// counts as speech. Range [0, 1]. Default 0.3.
	PositiveSpeechThreshold float64 `yaml:"positive_speech_threshold"`

	// NegativeSpeechThreshold closes segments below it. Must be less than
	// the positive threshold. Default 0.2.
	NegativeSpeechThreshold float64 `yaml:"negative_speech_threshold"`

	// MinSpeechFrames is the consecutive active frames required to confirm
	// an utterance. Default 3.
	MinSpeechFrames int `yaml:"min_speech_frames"`

	// FrameSamples is the frame length in samples at 16 kHz. Default 512.
	FrameSamples int `yaml:"frame_samples"`

	// RedemptionFrames is the silence tolerated before an utterance closes.
	// Default 32.
	RedemptionFrames int `yaml:"redemption_frames"`

	// PreSpeechPadFrames / SpeechPadFrames is the context retained around
	// an utterance by the detector itself. Defaults 4 / 8.
	PreSpeechPadFrames int `yaml:"pre_speech_pad_frames"`
	SpeechPadFrames    int `yaml:"speech_pad_frames"`

	// PrePadMs is the synthetic leading silence prepended before scoring.
	// Default 320.
	PrePadMs int `yaml:"pre_pad_ms"`

	// InitTimeout bounds backend initialisation. Default 5s.
	InitTimeout time.Duration `yaml:"init_timeout"`
}

// ProcessingConfig holds trim and alignment tunables. All durations are
// seconds unless the field name says otherwise.
type ProcessingConfig struct {
	// TrimPadding is the silence kept around the speech envelope when
	// trimming. Default 0.2.
	TrimPadding float64 `yaml:"trim_padding"`

	// MaxTrimStart / MaxTrimEnd are hard caps on removed audio. Default 5.0.
	MaxTrimStart float64 `yaml:"max_trim_start"`
	MaxTrimEnd   float64 `yaml:"max_trim_end"`

	// MergeGapTrim is the segment-merge tolerance for trimming. Default 0.1.
	MergeGapTrim float64 `yaml:"merge_gap_trim"`

	// MergeGapAlign is the wider tolerance for alignment. Default 0.5.
	MergeGapAlign float64 `yaml:"merge_gap_align"`

	// AlignPaddingMs is the front padding both onsets are placed at.
	// Default 200.
	AlignPaddingMs int `yaml:"align_padding_ms"`
}

// LevelsConfig holds loudness measurement and gain-matching settings.
type LevelsConfig struct {
	// CacheSize is the LRU capacity of the level-analysis cache.
	// Zero disables caching. Default 64.
	CacheSize int `yaml:"cache_size"`

	// TargetLUFS is the reference loudness for gain matching. Default -18.
	TargetLUFS float64 `yaml:"target_lufs"`

	// MaxGain caps amplification. Default 4.
	MaxGain float64 `yaml:"max_gain"`

	// BalanceMode selects the gain reference: target, user, reference, or
	// average. Default average.
	BalanceMode string `yaml:"balance_mode"`
}

package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// validBalanceModes lists the recognised gain-reference modes.
var validBalanceModes = map[string]bool{
	"": true, "target": true, "user": true, "reference": true, "average": true,
}

// Default values applied by [ApplyDefaults].
const (
	DefaultListenAddr     = ":8080"
	DefaultMaxUploadBytes = 64 << 20
)

// Load reads the YAML configuration file at path, overlays environment
// variables, and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, overlays environment
// variables on the server section, and validates the result. Useful in
// tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}

	// Env vars win over file values so container deployments can tweak the
	// server section without mounting a new file.
	if err := envconfig.Process(context.Background(), &cfg.Server); err != nil {
		return nil, fmt.Errorf("config: env overlay: %w", err)
	}

	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields with their documented defaults. Stage
// packages apply their own defaults for zero values too; filling them here
// as well makes the effective configuration visible in the startup log.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		cfg.Server.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.VAD.Backend == "" {
		cfg.VAD.Backend = "energy"
	}
	if cfg.Levels.CacheSize == 0 {
		cfg.Levels.CacheSize = 64
	}
	if cfg.Levels.BalanceMode == "" {
		cfg.Levels.BalanceMode = "average"
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.VAD.Backend != "energy" {
		errs = append(errs, fmt.Errorf("vad.backend %q is unknown; valid values: energy", cfg.VAD.Backend))
	}
	if t := cfg.VAD.PositiveSpeechThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("vad.positive_speech_threshold %.3f is out of range [0, 1]", t))
	}
	if t := cfg.VAD.NegativeSpeechThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("vad.negative_speech_threshold %.3f is out of range [0, 1]", t))
	}
	if cfg.VAD.PositiveSpeechThreshold > 0 && cfg.VAD.NegativeSpeechThreshold >= cfg.VAD.PositiveSpeechThreshold {
		errs = append(errs, fmt.Errorf("vad.negative_speech_threshold %.3f must be below vad.positive_speech_threshold %.3f",
			cfg.VAD.NegativeSpeechThreshold, cfg.VAD.PositiveSpeechThreshold))
	}
	if cfg.VAD.InitTimeout < 0 {
		errs = append(errs, fmt.Errorf("vad.init_timeout must not be negative"))
	}

	if cfg.Processing.TrimPadding < 0 {
		errs = append(errs, fmt.Errorf("processing.trim_padding must not be negative"))
	}
	if cfg.Processing.MaxTrimStart < 0 || cfg.Processing.MaxTrimEnd < 0 {
		errs = append(errs, fmt.Errorf("processing.max_trim_start and max_trim_end must not be negative"))
	}
	if cfg.Processing.AlignPaddingMs < 0 {
		errs = append(errs, fmt.Errorf("processing.align_padding_ms must not be negative"))
	}

	if !validBalanceModes[cfg.Levels.BalanceMode] {
		errs = append(errs, fmt.Errorf("levels.balance_mode %q is invalid; valid values: target, user, reference, average", cfg.Levels.BalanceMode))
	}
	if cfg.Levels.MaxGain < 0 {
		errs = append(errs, fmt.Errorf("levels.max_gain must not be negative"))
	}

	return errors.Join(errs...)
}

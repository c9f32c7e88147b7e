package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/attune-audio/attune/internal/config"
)

func TestLoadFromReader_EmptyInputUsesDefaults(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("ListenAddr = %q, want %q", cfg.Server.ListenAddr, config.DefaultListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("LogLevel = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Server.MaxUploadBytes != config.DefaultMaxUploadBytes {
		t.Errorf("MaxUploadBytes = %d, want default", cfg.Server.MaxUploadBytes)
	}
	if cfg.VAD.Backend != "energy" {
		t.Errorf("VAD backend = %q, want energy", cfg.VAD.Backend)
	}
	if cfg.Levels.BalanceMode != "average" {
		t.Errorf("BalanceMode = %q, want average", cfg.Levels.BalanceMode)
	}
}

func TestLoadFromReader_FullConfig(t *testing.T) {
	yaml := `
server:
  listen_addr: ":9090"
  log_level: debug
vad:
  backend: energy
  positive_speech_threshold: 0.4
  negative_speech_threshold: 0.25
  init_timeout: 2s
processing:
  trim_padding: 0.3
  merge_gap_align: 0.6
levels:
  cache_size: 16
  target_lufs: -20
  balance_mode: target
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want :9090", cfg.Server.ListenAddr)
	}
	if cfg.VAD.PositiveSpeechThreshold != 0.4 {
		t.Errorf("PositiveSpeechThreshold = %v, want 0.4", cfg.VAD.PositiveSpeechThreshold)
	}
	if cfg.VAD.InitTimeout != 2*time.Second {
		t.Errorf("InitTimeout = %v, want 2s", cfg.VAD.InitTimeout)
	}
	if cfg.Processing.MergeGapAlign != 0.6 {
		t.Errorf("MergeGapAlign = %v, want 0.6", cfg.Processing.MergeGapAlign)
	}
	if cfg.Levels.TargetLUFS != -20 {
		t.Errorf("TargetLUFS = %v, want -20", cfg.Levels.TargetLUFS)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	yaml := `
server:
  listen_address: ":8080"
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected an error for a misspelled field, got nil")
	}
}

func TestLoadFromReader_EnvOverridesFile(t *testing.T) {
	t.Setenv("ATTUNE_LISTEN_ADDR", ":7070")

	yaml := `
server:
  listen_addr: ":8080"
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":7070" {
		t.Errorf("ListenAddr = %q, want the env override :7070", cfg.Server.ListenAddr)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	yaml := `
server:
  log_level: verbose
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected an error for an invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_UnknownVADBackend(t *testing.T) {
	yaml := `
vad:
  backend: silero
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected an error for an unknown backend, got nil")
	}
	if !strings.Contains(err.Error(), "backend") {
		t.Errorf("error should mention the backend, got: %v", err)
	}
}

func TestValidate_InvertedThresholds(t *testing.T) {
	yaml := `
vad:
  positive_speech_threshold: 0.2
  negative_speech_threshold: 0.5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected an error for inverted thresholds, got nil")
	}
	if !strings.Contains(err.Error(), "negative_speech_threshold") {
		t.Errorf("error should mention the threshold, got: %v", err)
	}
}

func TestValidate_InvalidBalanceMode(t *testing.T) {
	yaml := `
levels:
  balance_mode: loudest
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected an error for an invalid balance mode, got nil")
	}
	if !strings.Contains(err.Error(), "balance_mode") {
		t.Errorf("error should mention balance_mode, got: %v", err)
	}
}

func TestValidate_CollectsAllFailures(t *testing.T) {
	yaml := `
server:
  log_level: loud
vad:
  backend: unknown
levels:
  balance_mode: nope
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	for _, want := range []string{"log_level", "backend", "balance_mode"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error should mention %s, got: %v", want, err)
		}
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if config.LogLevel("trace").IsValid() {
		t.Error(`"trace" should be invalid`)
	}
}

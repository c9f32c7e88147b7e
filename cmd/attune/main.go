// Command attune is the pronunciation-practice audio service: speech
// boundary detection, silence trimming, onset-synchronised two-clip
// alignment, and loudness measurement over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/attune-audio/attune/internal/config"
	"github.com/attune-audio/attune/internal/detect"
	"github.com/attune-audio/attune/internal/level"
	"github.com/attune-audio/attune/internal/observe"
	"github.com/attune-audio/attune/internal/pipeline"
	"github.com/attune-audio/attune/internal/server"
	"github.com/attune-audio/attune/internal/trim"
	"github.com/attune-audio/attune/pkg/provider/vad"
	"github.com/attune-audio/attune/pkg/provider/vad/energy"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Run on defaults when no config file is present; every knob has one.
			cfg = &config.Config{}
			config.ApplyDefaults(cfg)
		} else {
			fmt.Fprintf(os.Stderr, "attune: %v\n", err)
			return 1
		}
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("attune starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"vad_backend", cfg.VAD.Backend,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "attune",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise metrics provider", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(flushCtx); err != nil {
			slog.Warn("metrics shutdown", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metric instruments", "err", err)
		return 1
	}

	// ── Pipeline wiring ───────────────────────────────────────────────────────
	detector := detect.New(&energy.Engine{}, detect.Config{
		VAD: vad.Config{
			PositiveSpeechThreshold: cfg.VAD.PositiveSpeechThreshold,
			NegativeSpeechThreshold: cfg.VAD.NegativeSpeechThreshold,
			MinSpeechFrames:         cfg.VAD.MinSpeechFrames,
			FrameSamples:            cfg.VAD.FrameSamples,
			RedemptionFrames:        cfg.VAD.RedemptionFrames,
			PreSpeechPadFrames:      cfg.VAD.PreSpeechPadFrames,
			SpeechPadFrames:         cfg.VAD.SpeechPadFrames,
		},
		PrePadMs:    cfg.VAD.PrePadMs,
		InitTimeout: cfg.VAD.InitTimeout,
	})

	proc := pipeline.New(
		detector,
		level.NewAnalyzer(cfg.Levels.CacheSize),
		metrics,
		pipeline.Options{
			TrimMergeGap:  cfg.Processing.MergeGapTrim,
			AlignMergeGap: cfg.Processing.MergeGapAlign,
			Trim: trim.Options{
				Padding:      cfg.Processing.TrimPadding,
				MaxTrimStart: cfg.Processing.MaxTrimStart,
				MaxTrimEnd:   cfg.Processing.MaxTrimEnd,
			},
			AlignPaddingMs: cfg.Processing.AlignPaddingMs,
		},
	)

	// Warm the VAD backend in the background so the first clip does not pay
	// the initialisation cost. Failure is not fatal: the pipeline degrades
	// to all-speech boundaries.
	go func() {
		if err := proc.Warmup(ctx); err != nil {
			slog.Warn("vad warmup failed; clips will pass through untrimmed", "err", err)
		}
	}()

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := server.New(cfg.Server, proc, level.GainOptions{
		TargetLUFS: cfg.Levels.TargetLUFS,
		MaxGain:    cfg.Levels.MaxGain,
		Mode:       level.BalanceMode(cfg.Levels.BalanceMode),
	}, metrics)

	slog.Info("server ready — press Ctrl+C to shut down")
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server error", "err", err)
		return 1
	}

	slog.Info("shutdown complete")
	return 0
}

// newLogger builds the process-wide slog logger at the configured level.
func newLogger(lvl config.LogLevel) *slog.Logger {
	var level slog.Level
	switch lvl {
	case config.LogDebug:
		level = slog.LevelDebug
	case config.LogWarn:
		level = slog.LevelWarn
	case config.LogError:
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

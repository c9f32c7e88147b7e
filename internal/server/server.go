// Package server exposes the processing pipeline over HTTP for the browser
// client.
//
// All endpoints operate on in-memory uploads and responses; nothing is
// persisted. Degraded outcomes (failed VAD, skipped trim, alignment
// fallback) still return 200 with passthrough audio and debug metadata —
// only undecodable uploads produce a client-visible error.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/attune-audio/attune/internal/config"
	"github.com/attune-audio/attune/internal/health"
	"github.com/attune-audio/attune/internal/level"
	"github.com/attune-audio/attune/internal/observe"
	"github.com/attune-audio/attune/internal/pipeline"
)

// shutdownTimeout bounds graceful shutdown of in-flight requests.
const shutdownTimeout = 15 * time.Second

// Server wires the pipeline, health checks, and metrics into an HTTP API.
type Server struct {
	cfg     config.ServerConfig
	proc    *pipeline.Processor
	gains   level.GainOptions
	metrics *observe.Metrics
	http    *http.Server
}

// New creates a Server. metrics may be nil (no instrumentation).
func New(cfg config.ServerConfig, proc *pipeline.Processor, gains level.GainOptions, metrics *observe.Metrics) *Server {
	s := &Server{
		cfg:     cfg,
		proc:    proc,
		gains:   gains,
		metrics: metrics,
	}
	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           metrics.Middleware(s.routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// routes builds the endpoint mux.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/analyze", s.handleAnalyze)
	mux.HandleFunc("POST /v1/trim", s.handleTrim)
	mux.HandleFunc("POST /v1/align", s.handleAlign)
	mux.HandleFunc("POST /v1/levels", s.handleLevels)

	h := health.New(health.Checker{
		Name:  "vad",
		Check: s.proc.Warmup,
	})
	h.Register(mux)

	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", s.cfg.ListenAddr)
		if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.http.Shutdown(shutCtx)
	}
}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "err", err)
	}
}

// writeError emits the error JSON shape shared by all endpoints.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

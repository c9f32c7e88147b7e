// Package observe provides observability primitives for attune:
// OpenTelemetry metrics with a Prometheus exporter bridge, and HTTP
// middleware that records request latency.
//
// Metrics are recorded through the OpenTelemetry Metrics API and scraped
// via the standard /metrics endpoint. Tests should use [NewMetrics] with a
// private [metric.MeterProvider] to avoid cross-test pollution. All
// recording helpers are nil-receiver safe so that library code can carry an
// optional *Metrics without guarding every call site.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all attune metrics.
const meterName = "github.com/attune-audio/attune"

// Stage names the pipeline stages instrumented by [Metrics.ObserveStage].
type Stage string

const (
	StageDecode Stage = "decode"
	StageVAD    Stage = "vad"
	StageTrim   Stage = "trim"
	StageAlign  Stage = "align"
	StageLevels Stage = "levels"
)

// Metrics holds all OTel metric instruments for the application. The
// underlying OTel types handle their own synchronisation, so a single
// instance is shared across all goroutines.
type Metrics struct {
	// StageDuration tracks per-stage processing latency. Attributes:
	//   stage, ok.
	StageDuration metric.Float64Histogram

	// ClipsProcessed counts clips entering each stage. Attributes: stage, ok.
	ClipsProcessed metric.Int64Counter

	// Fallbacks counts graceful degradations by reason (no_speech,
	// vad_unavailable, align_decode, align_failed).
	Fallbacks metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	//   method, path, status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// whole-clip DSP passes, which run from sub-millisecond (cached levels) to
// several seconds (long clips through VAD).
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("attune.stage.duration",
		metric.WithDescription("Latency of one pipeline stage pass over a clip."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ClipsProcessed, err = m.Int64Counter("attune.clips.processed",
		metric.WithDescription("Clips processed per stage and outcome."),
	); err != nil {
		return nil, err
	}
	if met.Fallbacks, err = m.Int64Counter("attune.fallbacks",
		metric.WithDescription("Graceful degradations by reason."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("attune.http.request.duration",
		metric.WithDescription("HTTP request processing time."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// ObserveStage records one stage pass. Safe on a nil receiver.
func (m *Metrics) ObserveStage(ctx context.Context, stage Stage, d time.Duration, ok bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("stage", string(stage)),
		attribute.Bool("ok", ok),
	)
	m.StageDuration.Record(ctx, d.Seconds(), attrs)
	m.ClipsProcessed.Add(ctx, 1, attrs)
}

// CountFallback records one graceful degradation. Safe on a nil receiver.
func (m *Metrics) CountFallback(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.Fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// ObserveHTTP records one served HTTP request. Safe on a nil receiver.
func (m *Metrics) ObserveHTTP(ctx context.Context, method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", status),
	))
}

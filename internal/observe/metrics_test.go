package observe_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/attune-audio/attune/internal/observe"
)

func newTestMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all exported metric names from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]bool {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	return names
}

func TestObserveStage_RecordsInstruments(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)

	m.ObserveStage(context.Background(), observe.StageVAD, 25*time.Millisecond, true)
	m.CountFallback(context.Background(), "no_speech")

	names := collect(t, reader)
	for _, want := range []string{"attune.stage.duration", "attune.clips.processed", "attune.fallbacks"} {
		if !names[want] {
			t.Errorf("metric %q was not exported; got %v", want, names)
		}
	}
}

func TestNilMetrics_AllHelpersAreSafe(t *testing.T) {
	t.Parallel()
	var m *observe.Metrics

	m.ObserveStage(context.Background(), observe.StageDecode, time.Second, false)
	m.CountFallback(context.Background(), "vad_unavailable")
	m.ObserveHTTP(context.Background(), http.MethodPost, "/v1/trim", 200, time.Millisecond)
}

func TestMiddleware_RecordsRequest(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/trim", nil))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422 passed through", rec.Code)
	}
	if names := collect(t, reader); !names["attune.http.request.duration"] {
		t.Errorf("request duration metric missing; got %v", names)
	}
}

func TestMiddleware_NilMetricsReturnsNextUnchanged(t *testing.T) {
	t.Parallel()
	var m *observe.Metrics
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	if got := m.Middleware(next); got == nil {
		t.Fatal("nil metrics should return the next handler, not nil")
	}
}

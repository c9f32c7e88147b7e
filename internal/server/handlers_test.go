package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/attune-audio/attune/internal/config"
	"github.com/attune-audio/attune/internal/detect"
	"github.com/attune-audio/attune/internal/level"
	"github.com/attune-audio/attune/internal/pipeline"
	"github.com/attune-audio/attune/pkg/audio"
	"github.com/attune-audio/attune/pkg/provider/vad/energy"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	proc := pipeline.New(
		detect.New(&energy.Engine{}, detect.Config{}),
		level.NewAnalyzer(4),
		nil,
		pipeline.Options{},
	)
	return New(config.ServerConfig{
		ListenAddr:     ":0",
		MaxUploadBytes: 8 << 20,
	}, proc, level.GainOptions{}, nil)
}

// speechWAV builds a clip with 1 s of silence, 1 s of tone, 1 s of silence.
func speechWAV(t *testing.T) []byte {
	t.Helper()
	buf := audio.NewBuffer(1, 16000, 3*16000)
	for i := 16000; i < 2*16000; i++ {
		buf.Channels[0][i] = 0.5
	}
	return audio.EncodeWAV(buf)
}

// multipartBody builds a multipart form with file fields and plain values.
func multipartBody(t *testing.T, files map[string][]byte, values map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for field, data := range files {
		fw, err := w.CreateFormFile(field, field+".wav")
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatalf("write file field: %v", err)
		}
	}
	for k, v := range values {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, w.FormDataContentType()
}

func post(t *testing.T, s *Server, path string, files map[string][]byte, values map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, files, values)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)
	return rec
}

func TestHandleAnalyze(t *testing.T) {
	t.Parallel()
	s := testServer(t)

	rec := post(t, s, "/v1/analyze", map[string][]byte{"audio": speechWAV(t)}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\n%s", rec.Code, rec.Body.String())
	}

	var resp analyzeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if resp.Boundaries.VADFailed {
		t.Fatalf("VADFailed set: %s", resp.Boundaries.Err)
	}
	if resp.Boundaries.EndTime <= resp.Boundaries.StartTime {
		t.Errorf("envelope [%v, %v] is empty", resp.Boundaries.StartTime, resp.Boundaries.EndTime)
	}
}

func TestHandleAnalyze_UndecodableClipStillOK(t *testing.T) {
	t.Parallel()
	s := testServer(t)

	rec := post(t, s, "/v1/analyze", map[string][]byte{"audio": []byte("not audio")}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with fallback boundaries", rec.Code)
	}

	var resp analyzeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if !resp.Boundaries.VADFailed {
		t.Error("VADFailed should be set for an undecodable clip")
	}
}

func TestHandleAnalyze_MissingFile(t *testing.T) {
	t.Parallel()
	s := testServer(t)

	rec := post(t, s, "/v1/analyze", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for a missing audio field", rec.Code)
	}
}

func TestHandleTrim(t *testing.T) {
	t.Parallel()
	s := testServer(t)

	rec := post(t, s, "/v1/trim", map[string][]byte{"audio": speechWAV(t)}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\n%s", rec.Code, rec.Body.String())
	}

	var resp struct {
		TrimmedStart float64 `json:"trimmed_start"`
		NewDuration  float64 `json:"new_duration"`
		Audio        string  `json:"audio"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	blob, err := base64.StdEncoding.DecodeString(resp.Audio)
	if err != nil {
		t.Fatalf("audio is not base64: %v", err)
	}
	out, err := audio.Decode(blob)
	if err != nil {
		t.Fatalf("returned audio does not decode: %v", err)
	}
	if out.Duration() > 3.0 {
		t.Errorf("trimmed duration %v exceeds the original", out.Duration())
	}
}

func TestHandleTrim_FormOverridesCapRemoval(t *testing.T) {
	t.Parallel()
	s := testServer(t)

	rec := post(t, s, "/v1/trim", map[string][]byte{"audio": speechWAV(t)}, map[string]string{
		"max_trim_start": "0.1",
		"max_trim_end":   "0.1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\n%s", rec.Code, rec.Body.String())
	}

	var resp struct {
		TrimmedStart float64 `json:"trimmed_start"`
		TrimmedEnd   float64 `json:"trimmed_end"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if resp.TrimmedStart > 0.1 || resp.TrimmedEnd > 0.1 {
		t.Errorf("trim amounts [%v, %v] exceed the 0.1 s request caps", resp.TrimmedStart, resp.TrimmedEnd)
	}
}

func TestHandleTrim_UndecodableClipIs422(t *testing.T) {
	t.Parallel()
	s := testServer(t)

	rec := post(t, s, "/v1/trim", map[string][]byte{"audio": []byte("not audio")}, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestHandleAlign(t *testing.T) {
	t.Parallel()
	s := testServer(t)

	rec := post(t, s, "/v1/align", map[string][]byte{
		"target":  speechWAV(t),
		"attempt": speechWAV(t),
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\n%s", rec.Code, rec.Body.String())
	}

	var resp alignResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	b1, err := base64.StdEncoding.DecodeString(resp.Target)
	if err != nil {
		t.Fatalf("target is not base64: %v", err)
	}
	b2, err := base64.StdEncoding.DecodeString(resp.Attempt)
	if err != nil {
		t.Fatalf("attempt is not base64: %v", err)
	}
	out1, err := audio.Decode(b1)
	if err != nil {
		t.Fatalf("target does not decode: %v", err)
	}
	out2, err := audio.Decode(b2)
	if err != nil {
		t.Fatalf("attempt does not decode: %v", err)
	}
	if out1.NumSamples() != out2.NumSamples() {
		t.Errorf("aligned durations differ: %d vs %d samples", out1.NumSamples(), out2.NumSamples())
	}
}

func TestHandleAlign_UndecodableAttemptStillOK(t *testing.T) {
	t.Parallel()
	s := testServer(t)

	rec := post(t, s, "/v1/align", map[string][]byte{
		"target":  speechWAV(t),
		"attempt": []byte("not audio"),
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with fallback", rec.Code)
	}

	var resp alignResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if resp.Info.Method != "error_fallback" {
		t.Errorf("method = %q, want error_fallback", resp.Info.Method)
	}
}

func TestHandleLevels(t *testing.T) {
	t.Parallel()
	s := testServer(t)

	rec := post(t, s, "/v1/levels", map[string][]byte{"audio": speechWAV(t)}, map[string]string{
		"timestamp":    "1724800000000",
		"content_type": "audio/wav",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\n%s", rec.Code, rec.Body.String())
	}

	var resp levelsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if resp.Levels.Duration != 3.0 {
		t.Errorf("duration = %v, want 3.0", resp.Levels.Duration)
	}
	if resp.Gains != nil {
		t.Error("gains should be absent without a reference clip")
	}
}

func TestHandleLevels_WithReferenceReturnsGains(t *testing.T) {
	t.Parallel()
	s := testServer(t)

	rec := post(t, s, "/v1/levels", map[string][]byte{
		"audio":     speechWAV(t),
		"reference": speechWAV(t),
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\n%s", rec.Code, rec.Body.String())
	}

	var resp levelsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if resp.Gains == nil {
		t.Fatal("gains should be present with a reference clip")
	}
	if resp.Reference == nil {
		t.Fatal("reference levels should be present")
	}
	if resp.Gains.User < level.MinGain || resp.Gains.User > level.DefaultMaxGain {
		t.Errorf("user gain %v out of bounds", resp.Gains.User)
	}
}

func TestHandleLevels_UndecodableClipIs422(t *testing.T) {
	t.Parallel()
	s := testServer(t)

	rec := post(t, s, "/v1/levels", map[string][]byte{"audio": []byte("not audio")}, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestRoutes_HealthAndMetricsRegistered(t *testing.T) {
	t.Parallel()
	s := testServer(t)
	mux := s.routes()

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}

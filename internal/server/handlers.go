package server

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/attune-audio/attune/internal/align"
	"github.com/attune-audio/attune/internal/boundary"
	"github.com/attune-audio/attune/internal/level"
	"github.com/attune-audio/attune/internal/trim"
	"github.com/attune-audio/attune/pkg/audio"
)

// formFloat parses an optional numeric form value; absent or malformed
// values read as zero, which downstream code treats as "use the default".
func formFloat(r *http.Request, field string) float64 {
	v, err := strconv.ParseFloat(r.FormValue(field), 64)
	if err != nil {
		return 0
	}
	return v
}

// readUpload extracts one uploaded file from the multipart form. The size
// cap applies to the whole request body.
func (s *Server) readUpload(r *http.Request, field string) ([]byte, error) {
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		return nil, fmt.Errorf("parse multipart form: %w", err)
	}
	f, _, err := r.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("missing %q file field: %w", field, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %q upload: %w", field, err)
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return nil, fmt.Errorf("%q upload exceeds %d byte limit", field, s.cfg.MaxUploadBytes)
	}
	return data, nil
}

// cacheKey builds the best-effort level-cache key from blob identity. The
// timestamp form value carries the browser blob's lastModified when the
// client supplies one; the key degrades gracefully without it.
func cacheKey(r *http.Request, size int) string {
	ts := r.FormValue("timestamp")
	if ts == "" {
		return ""
	}
	ct := r.FormValue("content_type")
	return fmt.Sprintf("%d:%s:%s", size, ct, ts)
}

// analyzeResponse is the /v1/analyze body.
type analyzeResponse struct {
	Boundaries boundary.Boundaries `json:"boundaries"`
}

// handleAnalyze resolves speech boundaries for one clip. Always 200: an
// undecodable clip yields full-clip VADFailed boundaries with the reason,
// matching the availability-first policy for metadata-only requests.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	blob, err := s.readUpload(r, "audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bounds := s.proc.DetectBoundaries(r.Context(), blob)
	writeJSON(w, http.StatusOK, analyzeResponse{Boundaries: bounds})
}

// trimResponse is the /v1/trim body. Audio carries the (possibly
// passthrough) WAV as base64.
type trimResponse struct {
	trim.Result
	Audio string `json:"audio"`
}

// handleTrim trims leading/trailing silence. A clip that fails to decode
// is the one case that surfaces as a client error (422); every detection
// failure passes the original audio through with zero trim amounts.
// Optional form values padding, max_trim_start and max_trim_end (seconds)
// override the configured trim options per request.
func (s *Server) handleTrim(w http.ResponseWriter, r *http.Request) {
	blob, err := s.readUpload(r, "audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	override := trim.Options{
		Padding:      formFloat(r, "padding"),
		MaxTrimStart: formFloat(r, "max_trim_start"),
		MaxTrimEnd:   formFloat(r, "max_trim_end"),
	}
	res, err := s.proc.TrimSilence(r.Context(), blob, override)
	if err != nil {
		if errors.Is(err, audio.ErrDecode) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, trimResponse{
		Result: res,
		Audio:  base64.StdEncoding.EncodeToString(res.Blob),
	})
}

// alignResponse is the /v1/align body. Target and Attempt carry the
// aligned (or fallback original) blobs as base64.
type alignResponse struct {
	Info    align.Info `json:"alignment_info"`
	Target  string     `json:"target"`
	Attempt string     `json:"attempt"`
}

// handleAlign aligns a target clip and a learner's attempt. Always 200;
// alignment failures degrade to the original blobs tagged error_fallback
// so the client can still play the pair.
func (s *Server) handleAlign(w http.ResponseWriter, r *http.Request) {
	target, err := s.readUpload(r, "target")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	attempt, err := s.readUpload(r, "attempt")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	paddingMs, _ := strconv.Atoi(r.FormValue("padding_ms"))
	res := s.proc.AlignPair(r.Context(), target, attempt, paddingMs)
	writeJSON(w, http.StatusOK, alignResponse{
		Info:    res.Info,
		Target:  base64.StdEncoding.EncodeToString(res.Audio1),
		Attempt: base64.StdEncoding.EncodeToString(res.Audio2),
	})
}

// levelsResponse is the /v1/levels body. Gains is present only when a
// reference clip was uploaded alongside the main one.
type levelsResponse struct {
	Levels    level.Info   `json:"levels"`
	Reference *level.Info  `json:"reference_levels,omitempty"`
	Gains     *level.Gains `json:"gains,omitempty"`
}

// handleLevels measures loudness for one clip and, when a "reference" file
// accompanies it, the cross-clip normalization gains.
func (s *Server) handleLevels(w http.ResponseWriter, r *http.Request) {
	blob, err := s.readUpload(r, "audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, err := s.proc.MeasureLevels(r.Context(), blob, cacheKey(r, len(blob)))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	resp := levelsResponse{Levels: info}

	if f, _, ferr := r.FormFile("reference"); ferr == nil {
		refBlob, rerr := io.ReadAll(io.LimitReader(f, s.cfg.MaxUploadBytes+1))
		f.Close()
		if rerr != nil {
			writeError(w, http.StatusBadRequest, rerr.Error())
			return
		}
		refInfo, rerr := s.proc.MeasureLevels(r.Context(), refBlob, "")
		if rerr != nil {
			writeError(w, http.StatusUnprocessableEntity, rerr.Error())
			return
		}
		gains := level.NormalizationGains(refInfo, info, s.gains)
		resp.Reference = &refInfo
		resp.Gains = &gains
	}

	writeJSON(w, http.StatusOK, resp)
}

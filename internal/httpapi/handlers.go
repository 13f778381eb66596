package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/MimeLyc/caption-sync/internal/playback"
	"github.com/MimeLyc/caption-sync/internal/render"
	"github.com/MimeLyc/caption-sync/internal/session"
	"github.com/MimeLyc/caption-sync/internal/subtitle"
	"github.com/MimeLyc/caption-sync/internal/waveform"
)

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.session.State())
}

// handleAudio loads the request body as the audio resource. The display
// name comes from ?name=.
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	data, ok := s.readBody(w, r)
	if !ok {
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty audio body")
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "audio"
	}

	if err := s.session.LoadAudio(r.Context(), name, data); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.State())
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	s.transport(w, r, s.session.Play)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.transport(w, r, s.session.Pause)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	s.transport(w, r, func() error {
		s.session.Undo()
		return nil
	})
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	s.transport(w, r, func() error {
		s.session.Redo()
		return nil
	})
}

func (s *Server) transport(w http.ResponseWriter, r *http.Request, fn func() error) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := fn(); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.State())
}

// seekRequest moves the playhead either to Time or to the start of the
// caption with CaptionID.
type seekRequest struct {
	Time      *float64 `json:"time"`
	CaptionID *int     `json:"caption_id"`
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req seekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	var err error
	switch {
	case req.CaptionID != nil:
		err = s.session.SeekToCaption(*req.CaptionID)
	case req.Time != nil:
		err = s.session.Seek(*req.Time)
	default:
		writeError(w, http.StatusBadRequest, "time or caption_id is required")
		return
	}
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.State())
}

type volumeRequest struct {
	Volume *float64 `json:"volume"`
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req volumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Volume == nil {
		writeError(w, http.StatusBadRequest, "volume is required")
		return
	}
	if err := s.session.SetVolume(*req.Volume); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.State())
}

type rateRequest struct {
	Rate *float64 `json:"rate"`
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"rate":    s.session.State().Playback.Rate,
			"presets": playback.RatePresets,
		})
	case http.MethodPost:
		var req rateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Rate == nil {
			writeError(w, http.StatusBadRequest, "rate is required")
			return
		}
		if err := s.session.SetRate(*req.Rate); err != nil {
			writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.session.State())
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type captionsResponse struct {
	Captions    []subtitle.Caption `json:"captions"`
	ActiveIndex int                `json:"active_index"`
	Issues      []subtitle.Issue   `json:"issues,omitempty"`
}

func (s *Server) captionsResponse() captionsResponse {
	captions := s.session.Captions()
	return captionsResponse{
		Captions:    captions,
		ActiveIndex: s.session.ActiveIndex(),
		Issues:      subtitle.Validate(captions),
	}
}

func (s *Server) handleCaptions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.captionsResponse())
	case http.MethodPut:
		var next []subtitle.Caption
		if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if err := s.session.Apply(next); err != nil {
			writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.captionsResponse())
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	data, ok := s.readBody(w, r)
	if !ok {
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "upload.srt"
	}

	file, err := s.session.ImportSRT(data, name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp := s.captionsResponse()
	writeJSON(w, http.StatusOK, map[string]any{
		"language":     file.Language.String(),
		"captions":     resp.Captions,
		"active_index": resp.ActiveIndex,
		"issues":       resp.Issues,
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	name := s.session.State().Name
	if name == "" {
		name = "captions"
	}
	w.Header().Set("Content-Type", "application/x-subrip; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".srt"))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, s.session.Export())
}

type editRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// handleEditCaption serves PATCH /api/captions/{index}.
func (s *Server) handleEditCaption(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	raw := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/captions/"), "/")
	index, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := s.session.EditField(index, req.Field, req.Value); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.captionsResponse())
}

type renderResponse struct {
	render.Instructions
	Rects []render.Rect `json:"rects,omitempty"`
}

// handleRender returns the draw instructions. With ?width= and ?height= the
// response also carries pixel rectangles.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp := renderResponse{Instructions: s.session.Render()}

	q := r.URL.Query()
	if q.Has("width") || q.Has("height") {
		width, errW := strconv.ParseFloat(q.Get("width"), 64)
		height, errH := strconv.ParseFloat(q.Get("height"), 64)
		if errW != nil || errH != nil || width <= 0 || height <= 0 {
			writeError(w, http.StatusBadRequest, "width and height must be positive numbers")
			return
		}
		resp.Rects = resp.Instructions.Project(width, height)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWaveform(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	env, ok := s.session.Waveform()
	if !ok {
		st := s.session.State()
		msg := "waveform " + string(st.Waveform)
		if st.Waveform == waveform.StatusUnavailable && st.WaveformError != "" {
			msg = st.WaveformError
		}
		writeError(w, http.StatusNotFound, msg)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxUpload))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return nil, false
	}
	return data, true
}

// writeSessionError maps editor errors onto status codes.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, playback.ErrNotLoaded):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, playback.ErrInvalidValue),
		errors.Is(err, session.ErrCaptionShape),
		errors.Is(err, session.ErrCaptionIndex),
		errors.Is(err, session.ErrUnknownField):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrCaptionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, playback.ErrPlayback),
		errors.Is(err, subtitle.ErrInvalidTimestamp):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

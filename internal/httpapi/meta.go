package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"golang.org/x/text/language"

	"github.com/MimeLyc/caption-sync/internal/config"
	"github.com/MimeLyc/caption-sync/internal/prompt"
)

type promptRequest struct {
	Language        string `json:"language"`
	Description     string `json:"description"`
	DurationSeconds int    `json:"duration_seconds"`
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req promptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	brief := prompt.ProjectBrief{
		Language:        s.currentLocale(),
		Description:     req.Description,
		DurationSeconds: req.DurationSeconds,
	}
	if req.Language != "" {
		tag, err := language.Parse(req.Language)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid language: "+req.Language)
			return
		}
		brief.Language = tag
	}

	result, err := s.generator.Generate(r.Context(), brief)
	if err != nil {
		s.logger.Error("Prompt generation failed: %v", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type i18nResponse struct {
	Locale    string            `json:"locale"`
	Supported []string          `json:"supported"`
	Messages  map[string]string `json:"messages"`
}

// handleI18n returns the catalog for ?lang=, else for the Accept-Language
// header, else for the server default.
func (s *Server) handleI18n(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	loc := s.bundle.Locale(s.currentLocale())
	if code := strings.TrimSpace(r.URL.Query().Get("lang")); code != "" {
		tag, err := language.Parse(code)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid lang: "+code)
			return
		}
		loc = s.bundle.Locale(tag)
	} else if header := r.Header.Get("Accept-Language"); header != "" {
		loc = s.bundle.Accept(header)
	}

	supported := make([]string, 0, len(s.supported()))
	for _, tag := range s.supported() {
		supported = append(supported, tag.String())
	}
	writeJSON(w, http.StatusOK, i18nResponse{
		Locale:    loc.String(),
		Supported: supported,
		Messages:  loc.Messages(),
	})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		settings, err := s.settings.GetRuntimeSettings()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut:
		var req config.RuntimeSettings
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		saved, err := s.settings.UpdateRuntimeSettings(req)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if err := s.applySettings(saved); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, saved)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// applySettings pushes saved preferences into the running session and
// then into the optional applier.
func (s *Server) applySettings(next config.RuntimeSettings) error {
	if tag, err := language.Parse(next.Locale); err == nil {
		s.setLocale(tag)
	}
	if err := s.session.SetVolume(next.Volume); err != nil {
		return err
	}
	if err := s.session.SetRate(next.Rate); err != nil {
		return err
	}
	if s.apply != nil {
		return s.apply(next)
	}
	return nil
}

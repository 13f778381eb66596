package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/MimeLyc/caption-sync/internal/jobs"
)

type providerResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Authenticated bool   `json:"authenticated"`
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ret := make([]providerResponse, 0)
	if s.cloud != nil {
		for _, p := range s.cloud.Providers() {
			ret = append(ret, providerResponse{ID: p.ID(), Name: p.Name(), Authenticated: p.Authenticated()})
		}
	}
	writeJSON(w, http.StatusOK, ret)
}

type enqueueUploadRequest struct {
	Source   string   `json:"source"`
	Provider string   `json:"provider"`
	Files    []string `json:"files"`
}

// handleUploads lists upload jobs (GET) or saves the open project and
// queues an upload of its artefacts (POST).
func (s *Server) handleUploads(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		writeError(w, http.StatusNotImplemented, "uploads are not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.queue.List())
	case http.MethodPost:
		var req enqueueUploadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if req.Provider == "" {
			writeError(w, http.StatusBadRequest, "provider is required")
			return
		}
		if s.cloud != nil {
			if _, err := s.cloud.Provider(req.Provider); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
		if req.Source == "" {
			req.Source = "manual"
		}

		if s.projects != nil {
			if err := s.saveProject(r); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
		project, _ := s.session.Project()
		if len(req.Files) == 0 {
			req.Files = jobs.DefaultFiles(project.Name)
		}
		for _, name := range req.Files {
			if !jobs.SupportedFile(name) {
				writeError(w, http.StatusBadRequest, "unsupported file type: "+name)
				return
			}
		}

		job, created := s.queue.Enqueue(jobs.EnqueueRequest{
			Source:    req.Source,
			DedupeKey: req.Provider + "|" + project.ID,
			Payload: jobs.UploadPayload{
				Provider:    req.Provider,
				ProjectID:   project.ID,
				ProjectName: project.Name,
				Files:       req.Files,
			},
		})
		code := http.StatusCreated
		if !created {
			code = http.StatusOK
		}
		writeJSON(w, code, map[string]any{
			"created": created,
			"job":     job,
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleUploadByID serves GET /api/uploads/{id} and
// POST /api/uploads/{id}/retry.
func (s *Server) handleUploadByID(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		writeError(w, http.StatusNotImplemented, "uploads are not configured")
		return
	}
	id, action, _ := strings.Cut(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/uploads/"), "/"), "/")

	switch {
	case action == "" && r.Method == http.MethodGet:
		job, ok := s.queue.Get(id)
		if !ok {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeJSON(w, http.StatusOK, job)
	case action == "retry" && r.Method == http.MethodPost:
		job, err := s.queue.Retry(id)
		switch {
		case errors.Is(err, jobs.ErrJobNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, jobs.ErrJobNotFailed), errors.Is(err, jobs.ErrJobActive):
			writeError(w, http.StatusConflict, err.Error())
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
		default:
			writeJSON(w, http.StatusAccepted, job)
		}
	case action == "" || action == "retry":
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/MimeLyc/caption-sync/internal/persistence"
)

type projectRequest struct {
	Name string `json:"name"`
}

// handleProject serves the open project: GET returns it, PUT renames it and
// POST saves it.
func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		project, _ := s.session.Project()
		writeJSON(w, http.StatusOK, project)
	case http.MethodPut:
		var req projectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Name) == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		s.session.Rename(strings.TrimSpace(req.Name))
		writeJSON(w, http.StatusOK, s.session.State())
	case http.MethodPost:
		if s.projects == nil {
			writeError(w, http.StatusNotImplemented, "project store is not configured")
			return
		}
		if err := s.saveProject(r); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, s.session.State())
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) saveProject(r *http.Request) error {
	project, revision := s.session.Project()
	if err := s.projects.SaveProject(r.Context(), project); err != nil {
		return err
	}
	s.session.MarkSaved(revision)
	return nil
}

// handleProjects lists saved projects (GET) or starts a new one (POST).
func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if s.projects == nil {
			writeJSON(w, http.StatusOK, []persistence.ProjectSummary{})
			return
		}
		list, err := s.projects.ListProjects(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		var req projectRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid json body")
				return
			}
		}
		s.session.Restart(strings.TrimSpace(req.Name))
		writeJSON(w, http.StatusCreated, s.session.State())
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleProjectByID serves /api/projects/{id}: GET opens the project in the
// session, DELETE removes it from the store.
func (s *Server) handleProjectByID(w http.ResponseWriter, r *http.Request) {
	if s.projects == nil {
		writeError(w, http.StatusNotImplemented, "project store is not configured")
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/projects/"), "/")
	if decoded, err := url.PathUnescape(id); err == nil {
		id = decoded
	}
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing project id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		project, err := s.projects.LoadProject(r.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		s.session.Restore(project)
		writeJSON(w, http.StatusOK, s.session.State())
	case http.MethodDelete:
		if err := s.projects.DeleteProject(r.Context(), id); err != nil {
			writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, persistence.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

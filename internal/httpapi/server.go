// Package httpapi exposes the editor session to the host UI over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/language"

	"github.com/MimeLyc/caption-sync/internal/cloud"
	"github.com/MimeLyc/caption-sync/internal/config"
	"github.com/MimeLyc/caption-sync/internal/i18n"
	"github.com/MimeLyc/caption-sync/internal/jobs"
	"github.com/MimeLyc/caption-sync/internal/persistence"
	"github.com/MimeLyc/caption-sync/internal/prompt"
	"github.com/MimeLyc/caption-sync/internal/session"
	"github.com/MimeLyc/caption-sync/pkg/log"
)

type runtimeSettingsStore interface {
	GetRuntimeSettings() (config.RuntimeSettings, error)
	UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error)
}

type runtimeSettingsApplier func(next config.RuntimeSettings) error

type projectStore interface {
	SaveProject(ctx context.Context, p session.Project) error
	LoadProject(ctx context.Context, id string) (session.Project, error)
	ListProjects(ctx context.Context) ([]persistence.ProjectSummary, error)
	DeleteProject(ctx context.Context, id string) error
}

type Server struct {
	session   *session.Session
	queue     *jobs.Queue
	projects  projectStore
	cloud     *cloud.Manager
	generator prompt.Generator
	bundle    *i18n.Bundle
	settings  runtimeSettingsStore
	apply     runtimeSettingsApplier
	logger    *log.Logger

	maxUpload   int64
	keepAlive   time.Duration
	uiEnabled   bool
	uiStaticDir string

	localeMu sync.RWMutex
	locale   language.Tag

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

func WithUI(staticDir string, enabled bool) Option {
	return func(s *Server) {
		s.uiStaticDir = staticDir
		s.uiEnabled = enabled
	}
}

// WithUploads enables /api/uploads and /api/providers.
func WithUploads(queue *jobs.Queue, manager *cloud.Manager) Option {
	return func(s *Server) {
		s.queue = queue
		s.cloud = manager
	}
}

// WithProjects enables /api/projects.
func WithProjects(store projectStore) Option {
	return func(s *Server) {
		s.projects = store
	}
}

func WithGenerator(g prompt.Generator) Option {
	return func(s *Server) {
		if g != nil {
			s.generator = g
		}
	}
}

// WithLocale sets the locale used when a request names none.
func WithLocale(tag language.Tag) Option {
	return func(s *Server) {
		s.locale = tag
	}
}

func WithRuntimeSettingsStore(store runtimeSettingsStore) Option {
	return func(s *Server) {
		s.settings = store
	}
}

func WithRuntimeSettingsApplier(apply runtimeSettingsApplier) Option {
	return func(s *Server) {
		s.apply = apply
	}
}

// WithMaxUpload limits audio and SRT request bodies.
func WithMaxUpload(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithKeepAlive sets the SSE comment interval.
func WithKeepAlive(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.keepAlive = d
		}
	}
}

func NewServer(sess *session.Session, opts ...Option) *Server {
	s := &Server{
		session:   sess,
		generator: prompt.MockGenerator{},
		bundle:    i18n.Default(),
		locale:    language.English,
		logger:    log.GetLogger(),
		maxUpload: 200 << 20,
		keepAlive: 15 * time.Second,
		mux:       http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) currentLocale() language.Tag {
	s.localeMu.RLock()
	defer s.localeMu.RUnlock()
	return s.locale
}

func (s *Server) setLocale(tag language.Tag) {
	s.localeMu.Lock()
	s.locale = tag
	s.localeMu.Unlock()
}

// supported lists the locales the i18n bundle has catalogs for.
func (s *Server) supported() []language.Tag {
	return i18n.Supported
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/state", s.handleState)
	s.mux.HandleFunc("/api/audio", s.handleAudio)
	s.mux.HandleFunc("/api/play", s.handlePlay)
	s.mux.HandleFunc("/api/pause", s.handlePause)
	s.mux.HandleFunc("/api/seek", s.handleSeek)
	s.mux.HandleFunc("/api/volume", s.handleVolume)
	s.mux.HandleFunc("/api/rate", s.handleRate)
	s.mux.HandleFunc("/api/captions", s.handleCaptions)
	s.mux.HandleFunc("/api/captions/import", s.handleImport)
	s.mux.HandleFunc("/api/captions/export", s.handleExport)
	s.mux.HandleFunc("/api/captions/", s.handleEditCaption)
	s.mux.HandleFunc("/api/undo", s.handleUndo)
	s.mux.HandleFunc("/api/redo", s.handleRedo)
	s.mux.HandleFunc("/api/render", s.handleRender)
	s.mux.HandleFunc("/api/waveform", s.handleWaveform)
	s.mux.HandleFunc("/api/stream", s.handleStream)
	s.mux.HandleFunc("/api/project", s.handleProject)
	s.mux.HandleFunc("/api/projects", s.handleProjects)
	s.mux.HandleFunc("/api/projects/", s.handleProjectByID)
	s.mux.HandleFunc("/api/providers", s.handleProviders)
	s.mux.HandleFunc("/api/uploads", s.handleUploads)
	s.mux.HandleFunc("/api/uploads/", s.handleUploadByID)
	s.mux.HandleFunc("/api/prompt", s.handlePrompt)
	s.mux.HandleFunc("/api/i18n", s.handleI18n)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
	s.mux.HandleFunc("/", s.handleStatic)
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if !s.uiEnabled || s.uiStaticDir == "" {
		http.NotFound(w, r)
		return
	}

	rel := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	indexPath := filepath.Join(s.uiStaticDir, "index.html")

	if rel == "" || !strings.Contains(filepath.Base(rel), ".") {
		http.ServeFile(w, r, indexPath)
		return
	}

	filePath := filepath.Join(s.uiStaticDir, rel)
	if _, err := os.Stat(filePath); err != nil {
		// SPA fallback: non-existing static file path returns index
		http.ServeFile(w, r, indexPath)
		return
	}
	http.ServeFile(w, r, filePath)
}

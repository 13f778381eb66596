package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/MimeLyc/caption-sync/internal/audio"
	"github.com/MimeLyc/caption-sync/internal/autosave"
	"github.com/MimeLyc/caption-sync/internal/cloud"
	"github.com/MimeLyc/caption-sync/internal/config"
	"github.com/MimeLyc/caption-sync/internal/httpapi"
	"github.com/MimeLyc/caption-sync/internal/jobs"
	"github.com/MimeLyc/caption-sync/internal/llm"
	"github.com/MimeLyc/caption-sync/internal/persistence"
	"github.com/MimeLyc/caption-sync/internal/playback"
	"github.com/MimeLyc/caption-sync/internal/playback/speaker"
	"github.com/MimeLyc/caption-sync/internal/prompt"
	"github.com/MimeLyc/caption-sync/internal/session"
	"github.com/MimeLyc/caption-sync/internal/waveform"
	"github.com/MimeLyc/caption-sync/pkg/log"
)

type editorRunner interface {
	Run(ctx context.Context, interval time.Duration)
}

type autosaver interface {
	Start()
	Stop()
	SaveNow(ctx context.Context) (bool, error)
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

func newServeCommand() *cobra.Command {
	var envFiles []string
	var dataDir string
	var staticDir string
	var headless bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the editor HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []config.Option
			if dataDir != "" {
				opts = append(opts, config.WithDataDir(dataDir))
			}
			if cmd.Flags().Changed("headless") {
				opts = append(opts, config.WithHeadless(headless))
			}
			cfg, err := config.Load(envFiles, opts...)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, staticDir)
		},
	}

	cmd.Flags().StringSliceVar(&envFiles, "env-file", nil, "Env files to load (default .env)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Directory for the database, settings and lock file")
	cmd.Flags().StringVar(&staticDir, "ui", "", "Serve the web player from this directory")
	cmd.Flags().BoolVar(&headless, "headless", false, "Use the software clock instead of the sound card")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, staticDir string) error {
	logger := log.GetLogger()
	logger.SetLevel(log.ParseLevel(cfg.Log.Level))

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return errors.New("another caption-sync instance is already using " + cfg.Storage.DataDir)
	}
	defer func() { _ = lock.Unlock() }()

	settingsStore, err := config.OpenRuntimeSettingsStore(cfg.Storage.SettingsFile, cfg.RuntimeSettings())
	if err != nil {
		return err
	}
	settings := settingsStore.Current()
	config.WithRuntimeSettings(settings)(cfg)

	store, err := persistence.NewSQLiteStore(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	decoder := audio.NewAutoDecoder(cfg.Playback.SampleRate)
	var device playback.Device
	if cfg.Playback.Headless {
		device = playback.NewClockDevice(decoder)
	} else {
		device = speaker.New(decoder, cfg.Playback.SampleRate)
	}
	player := playback.NewController(device, playback.WithLogger(logger))
	defer player.Close()

	extractor := waveform.NewExtractor(decoder,
		waveform.WithResolution(cfg.Waveform.Resolution),
		waveform.WithLogger(logger),
	)
	sess := session.New(player, extractor, session.WithLogger(logger))
	defer sess.Close()
	restoreLatest(ctx, sess, store, logger)
	if err := sess.SetVolume(settings.Volume); err != nil {
		logger.Warn("Apply saved volume failed: %v", err)
	}
	if err := sess.SetRate(settings.Rate); err != nil {
		logger.Warn("Apply saved rate failed: %v", err)
	}

	registry, err := newRegistry(cfg)
	if err != nil {
		return err
	}
	manager := cloud.NewManager(registry, cloud.WithWorkers(cfg.Cloud.UploadWorkers), cloud.WithLogger(logger))
	queue := jobs.NewQueue(1, store, jobs.WithRetry(3, 5*time.Second), jobs.WithLogger(logger))
	queue.Start(jobs.NewUploadExecutor(store, manager))
	defer queue.Stop()

	saver := &reschedulingAutosaver{source: sess, saver: store, logger: logger}
	if err := saver.Reschedule(settings.AutosaveCron); err != nil {
		return err
	}

	generator, err := newGenerator(cfg)
	if err != nil {
		return err
	}

	srv := httpapi.NewServer(sess,
		httpapi.WithUI(staticDir, staticDir != ""),
		httpapi.WithUploads(queue, manager),
		httpapi.WithProjects(store),
		httpapi.WithGenerator(generator),
		httpapi.WithLocale(cfg.LocaleTag()),
		httpapi.WithRuntimeSettingsStore(settingsStore),
		httpapi.WithRuntimeSettingsApplier(func(next config.RuntimeSettings) error {
			return saver.Reschedule(next.AutosaveCron)
		}),
	)

	return runWithComponents(ctx, cfg, sess, saver, srv)
}

// runWithComponents drives the playback clock, autosave and HTTP server
// until ctx is cancelled or the server fails, then saves one last time.
func runWithComponents(ctx context.Context, cfg *config.Config, editor editorRunner, saver autosaver, httpSrv httpServer) error {
	logger := log.GetLogger()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		editor.Run(runCtx, cfg.Playback.TickInterval())
	}()
	saver.Start()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening on %s", cfg.Server.Addr)
		errCh <- httpSrv.ListenAndServe(cfg.Server.Addr)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown failed: %v", err)
	}
	saver.Stop()
	if savedNow, err := saver.SaveNow(shutdownCtx); err != nil {
		logger.Error("Final save failed: %v", err)
	} else if savedNow {
		logger.Info("Saved project on shutdown")
	}

	cancel()
	wg.Wait()
	return serveErr
}

// restoreLatest reopens the most recently saved project, if any.
func restoreLatest(ctx context.Context, sess *session.Session, store *persistence.SQLiteStore, logger *log.Logger) {
	list, err := store.ListProjects(ctx)
	if err != nil {
		logger.Warn("List projects failed: %v", err)
		return
	}
	if len(list) == 0 {
		return
	}
	project, err := store.LoadProject(ctx, list[0].ID)
	if err != nil {
		logger.Warn("Load project %s failed: %v", list[0].ID, err)
		return
	}
	sess.Restore(project)
	logger.Info("Restored project %q (%d captions)", project.Name, len(project.Captions))
}

func newRegistry(cfg *config.Config) (*cloud.Registry, error) {
	var providers []cloud.Provider
	if cfg.Cloud.GoogleToken != "" {
		providers = append(providers, cloud.NewGoogleDrive(cfg.Cloud.GoogleToken))
	}
	if cfg.Cloud.DropboxToken != "" {
		providers = append(providers, cloud.NewDropbox(cfg.Cloud.DropboxToken))
	}
	if cfg.Cloud.OneDriveToken != "" {
		providers = append(providers, cloud.NewOneDrive(cfg.Cloud.OneDriveToken))
	}
	return cloud.NewRegistry(providers...)
}

func newGenerator(cfg *config.Config) (prompt.Generator, error) {
	if !cfg.LLMEnabled() {
		log.Info("LLM_API_KEY not set, prompt generation uses canned results")
		return prompt.MockGenerator{}, nil
	}
	client, err := llm.NewClient(&cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}
	log.Info("Prompt generation uses %s", client.Model())
	return prompt.NewLLMGenerator(client), nil
}

// reschedulingAutosaver swaps the autosave schedule when the preferences
// change.
type reschedulingAutosaver struct {
	source autosave.Source
	saver  autosave.Saver
	logger *log.Logger

	mu      sync.Mutex
	current *autosave.Scheduler
	started bool
}

func (r *reschedulingAutosaver) Reschedule(expr string) error {
	next, err := autosave.New(expr, r.source, r.saver, autosave.WithLogger(r.logger))
	if err != nil {
		return err
	}

	r.mu.Lock()
	prev := r.current
	r.current = next
	started := r.started
	r.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
	if started {
		next.Start()
	}
	return nil
}

func (r *reschedulingAutosaver) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = true
	if r.current != nil {
		r.current.Start()
	}
}

func (r *reschedulingAutosaver) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = false
	if r.current != nil {
		r.current.Stop()
	}
}

func (r *reschedulingAutosaver) SaveNow(ctx context.Context) (bool, error) {
	r.mu.Lock()
	current := r.current
	r.mu.Unlock()
	if current == nil {
		return false, nil
	}
	return current.SaveNow(ctx)
}

// Package autosave persists the open project on a cron schedule.
package autosave

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/caption-sync/internal/session"
	"github.com/MimeLyc/caption-sync/pkg/icron"
	"github.com/MimeLyc/caption-sync/pkg/log"
)

// Source is the project being edited.
type Source interface {
	Dirty() bool
	Project() (session.Project, uint64)
	MarkSaved(revision uint64)
}

// Saver persists a project.
type Saver interface {
	SaveProject(ctx context.Context, p session.Project) error
}

type Scheduler struct {
	expr    string
	source  Source
	saver   Saver
	timeout time.Duration
	logger  *log.Logger

	cron  *cron.Cron
	group singleflight.Group
}

type Option func(*Scheduler)

func WithLogger(l *log.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTimeout bounds a single save.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New creates a scheduler firing on expr. It does not run until Start.
func New(expr string, source Source, saver Saver, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		expr:    expr,
		source:  source,
		saver:   saver,
		timeout: 10 * time.Second,
		logger:  log.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.cron = cron.New(cron.WithParser(icron.Parser))
	if _, err := s.cron.AddFunc(expr, s.run); err != nil {
		return nil, fmt.Errorf("schedule autosave %q: %w", expr, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.logger.Info("Autosave scheduled: %s", s.expr)
	s.cron.Start()
}

// Stop halts the schedule and waits for a running save.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Next reports the surrounding trigger times.
func (s *Scheduler) Next(now time.Time) (*icron.TriggerInfo, error) {
	return icron.GetTriggerInfo(s.expr, now)
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.SaveNow(ctx); err != nil {
		s.logger.Error("Autosave failed: %v", err)
	}
}

// SaveNow saves the project if it has unsaved changes and reports whether
// a save happened. Concurrent calls share one save.
func (s *Scheduler) SaveNow(ctx context.Context) (bool, error) {
	v, err, _ := s.group.Do("save", func() (interface{}, error) {
		if !s.source.Dirty() {
			return false, nil
		}
		project, revision := s.source.Project()
		if err := s.saver.SaveProject(ctx, project); err != nil {
			return false, fmt.Errorf("save project %s: %w", project.ID, err)
		}
		s.source.MarkSaved(revision)
		s.logger.Debug("Autosaved project %s at revision %d", project.ID, revision)
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/MimeLyc/caption-sync/internal/history"
	"github.com/MimeLyc/caption-sync/internal/playback"
	"github.com/MimeLyc/caption-sync/internal/render"
	"github.com/MimeLyc/caption-sync/internal/subtitle"
	"github.com/MimeLyc/caption-sync/internal/waveform"
	"github.com/MimeLyc/caption-sync/pkg/log"
)

const defaultProjectName = "Untitled"

// Session is one open project in the timeline editor.
//
// The playback controller owns the clock; the session listens to it and
// recomputes the active caption on every update. Caption edits and time
// updates are serialized on mu so a tick never observes a half-applied
// history swap. Controller methods that notify listeners must never be
// called while holding mu.
type Session struct {
	player    *playback.Controller
	extractor *waveform.Extractor
	history   *history.Manager
	logger    *log.Logger
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	id        string
	name      string
	audioName string
	language  language.Tag
	active    int
	dirty     bool
	revision  uint64
	updatedAt time.Time
	playSeq   uint64

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
	closed  bool

	unsubscribe func()
}

type Option func(*Session)

func WithLogger(l *log.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithProject sets the project identity instead of a fresh one.
func WithProject(id, name string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
		if name != "" {
			s.name = name
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates an empty session around player and extractor.
func New(player *playback.Controller, extractor *waveform.Extractor, opts ...Option) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		player:    player,
		extractor: extractor,
		history:   history.New(nil),
		logger:    log.GetLogger(),
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		id:        uuid.NewString(),
		name:      defaultProjectName,
		language:  language.Und,
		active:    subtitle.NoActive,
		subs:      make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.updatedAt = s.now()
	s.unsubscribe = player.Subscribe(s.onPlayback)
	return s
}

// LoadAudio loads a new audio resource. Playback metadata is resolved
// synchronously; the waveform is extracted in the background and any
// extraction still running for a previous resource is abandoned. Decode
// failures only disable the waveform.
func (s *Session) LoadAudio(ctx context.Context, name string, data []byte) error {
	s.mu.Lock()
	s.audioName = name
	s.active = subtitle.NoActive
	s.mu.Unlock()

	pending := s.extractor.Begin(s.ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, err := s.extractor.Finish(pending, data)
		if errors.Is(err, waveform.ErrStale) || errors.Is(err, context.Canceled) {
			return
		}
		s.publish(EventWaveform)
	}()

	err := s.player.Load(ctx, data)
	s.publish(EventAudio)
	if err != nil {
		return err
	}
	s.logger.Info("Loaded audio %q", name)
	return nil
}

// ImportCaptions replaces the caption list and clears the edit history.
func (s *Session) ImportCaptions(captions []subtitle.Caption, lang language.Tag) {
	snap := s.player.Snapshot()

	s.mu.Lock()
	s.history.Reset(captions)
	s.language = lang
	s.active = subtitle.ActiveIndex(captions, snap.CurrentTime, subtitle.NoActive)
	s.markChangedLocked()
	s.mu.Unlock()

	s.logger.Info("Imported %d captions (%s)", len(captions), lang)
	s.publish(EventCaptions)
}

// ImportSRT parses an SRT document and imports its captions.
func (s *Session) ImportSRT(data []byte, name string) (*subtitle.File, error) {
	file, err := subtitle.ReadSRTBytes(data, name)
	if err != nil {
		return nil, err
	}
	s.ImportCaptions(file.Captions, file.Language)
	return file, nil
}

// Apply commits a full caption list through history. The list must keep
// the ids and order of the current list. Field values are not validated.
func (s *Session) Apply(next []subtitle.Caption) error {
	snap := s.player.Snapshot()

	s.mu.Lock()
	var shapeErr error
	s.history.View(func(current []subtitle.Caption) {
		if !sameShape(current, next) {
			shapeErr = ErrCaptionShape
		}
	})
	if shapeErr != nil {
		s.mu.Unlock()
		return shapeErr
	}
	s.commitLocked(next, snap.CurrentTime)
	s.mu.Unlock()

	s.publish(EventCaptions)
	return nil
}

// EditField changes one field of the caption at index and commits the
// result through history.
func (s *Session) EditField(index int, field, value string) error {
	snap := s.player.Snapshot()

	s.mu.Lock()
	next := s.history.Current()
	if index < 0 || index >= len(next) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrCaptionIndex, index)
	}
	switch field {
	case FieldStart:
		next[index].Start = value
	case FieldEnd:
		next[index].End = value
	case FieldText:
		next[index].Text = value
	default:
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	s.commitLocked(next, snap.CurrentTime)
	s.mu.Unlock()

	s.logger.Debug("Edited caption %d %s", next[index].ID, field)
	s.publish(EventCaptions)
	return nil
}

// Undo reverts the last edit. It reports false when there was nothing to undo.
func (s *Session) Undo() bool {
	return s.step(s.history.Undo)
}

// Redo re-applies the last undone edit. It reports false when there was
// nothing to redo.
func (s *Session) Redo() bool {
	return s.step(s.history.Redo)
}

func (s *Session) step(move func() bool) bool {
	snap := s.player.Snapshot()

	s.mu.Lock()
	if !move() {
		s.mu.Unlock()
		return false
	}
	s.history.View(func(current []subtitle.Caption) {
		s.active = subtitle.ActiveIndex(current, snap.CurrentTime, s.active)
	})
	s.markChangedLocked()
	s.mu.Unlock()

	s.publish(EventCaptions)
	return true
}

// SeekToCaption moves the playhead to the start of the caption with id and
// makes it the active caption.
func (s *Session) SeekToCaption(id int) error {
	var (
		index = -1
		start float64
		err   error
	)
	s.history.View(func(current []subtitle.Caption) {
		index = subtitle.IndexOf(current, id)
		if index >= 0 {
			start, err = subtitle.Parse(current[index].Start)
		}
	})
	if index < 0 {
		return fmt.Errorf("%w: %d", ErrCaptionNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("caption %d: %w", id, err)
	}
	if err := s.player.Seek(start); err != nil {
		return err
	}

	s.mu.Lock()
	s.active = index
	s.mu.Unlock()

	s.publish(EventTick)
	return nil
}

func (s *Session) Play() error { return s.player.Play() }
func (s *Session) Pause() error { return s.player.Pause() }
func (s *Session) Seek(t float64) error { return s.player.Seek(t) }
func (s *Session) SetVolume(v float64) error { return s.player.SetVolume(v) }
func (s *Session) SetRate(r float64) error { return s.player.SetRate(r) }

// Run drives the playback clock until ctx is done.
func (s *Session) Run(ctx context.Context, interval time.Duration) {
	s.player.Run(ctx, interval)
}

// Captions returns a copy of the current caption list.
func (s *Session) Captions() []subtitle.Caption {
	return s.history.Current()
}

// Export renders the current captions as an SRT document.
func (s *Session) Export() string {
	var out string
	s.history.View(func(current []subtitle.Caption) {
		out = subtitle.Export(current)
	})
	return out
}

// ActiveIndex returns the index of the active caption or subtitle.NoActive.
func (s *Session) ActiveIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Waveform returns the envelope of the loaded audio, if available.
func (s *Session) Waveform() (waveform.Envelope, bool) {
	return s.extractor.Current()
}

// Render computes the draw instructions for the current frame.
func (s *Session) Render() render.Instructions {
	env, _ := s.extractor.Current()
	snap := s.player.Snapshot()

	var out render.Instructions
	s.history.View(func(current []subtitle.Caption) {
		out = render.Render(env.Peaks, snap.CurrentTime, snap.Duration, current)
	})
	return out
}

// State returns the editor state for the host UI.
func (s *Session) State() State {
	snap := s.player.Snapshot()
	status, waveErr := s.extractor.Status()

	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		ProjectID:    s.id,
		Name:         s.name,
		AudioName:    s.audioName,
		Playback:     snap,
		ActiveIndex:  s.active,
		CaptionCount: len(s.history.Current()),
		CanUndo:      s.history.CanUndo(),
		CanRedo:      s.history.CanRedo(),
		Waveform:     status,
		Dirty:        s.dirty,
		Revision:     s.revision,
	}
	if s.language != language.Und {
		st.Language = s.language.String()
	}
	if waveErr != nil {
		st.WaveformError = waveErr.Error()
	}
	return st
}

// Project returns the persisted view of the session and the revision it
// corresponds to.
func (s *Session) Project() (Project, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := Project{
		ID:        s.id,
		Name:      s.name,
		AudioName: s.audioName,
		Captions:  s.history.Current(),
		UpdatedAt: s.updatedAt,
	}
	if s.language != language.Und {
		p.Language = s.language.String()
	}
	return p, s.revision
}

// Restore replaces the session's project with p. History starts empty.
func (s *Session) Restore(p Project) {
	snap := s.player.Snapshot()
	tag := language.Und
	if p.Language != "" {
		if parsed, err := language.Parse(p.Language); err == nil {
			tag = parsed
		}
	}

	s.mu.Lock()
	s.id = p.ID
	s.name = p.Name
	s.audioName = p.AudioName
	s.language = tag
	s.updatedAt = p.UpdatedAt
	s.history.Reset(p.Captions)
	s.active = subtitle.ActiveIndex(p.Captions, snap.CurrentTime, subtitle.NoActive)
	s.dirty = false
	s.revision++
	s.mu.Unlock()

	s.publish(EventCaptions)
}

// Restart discards the project, including its audio, and starts a new
// empty one.
func (s *Session) Restart(name string) {
	if err := s.player.Unload(); err != nil {
		s.logger.Warn("Unload on restart failed: %v", err)
	}
	s.extractor.Reset()
	if name == "" {
		name = defaultProjectName
	}

	s.mu.Lock()
	s.id = uuid.NewString()
	s.name = name
	s.audioName = ""
	s.language = language.Und
	s.history.Reset(nil)
	s.active = subtitle.NoActive
	s.dirty = false
	s.revision++
	s.updatedAt = s.now()
	s.mu.Unlock()

	s.publish(EventAudio)
	s.publish(EventCaptions)
}

// Rename changes the project name.
func (s *Session) Rename(name string) {
	s.mu.Lock()
	s.name = name
	s.markChangedLocked()
	s.mu.Unlock()
}

// Dirty reports whether there are unsaved changes.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// MarkSaved clears the dirty flag if nothing changed since revision.
func (s *Session) MarkSaved(revision uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revision == revision {
		s.dirty = false
	}
}

// Subscribe returns a channel of events. Slow subscribers miss events
// rather than block playback. The returned function unsubscribes and
// closes the channel.
func (s *Session) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	s.subMu.Lock()
	if s.closed {
		s.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			if _, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(ch)
			}
			s.subMu.Unlock()
		})
	}
}

// Close stops background work, detaches from the player and closes all
// subscriber channels.
func (s *Session) Close() {
	s.unsubscribe()
	s.cancel()
	s.wg.Wait()

	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.closed = true
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}

func (s *Session) onPlayback(snap playback.Snapshot) {
	s.mu.Lock()
	if snap.Seq < s.playSeq {
		// overtaken by a newer notification
		s.mu.Unlock()
		return
	}
	s.playSeq = snap.Seq
	s.history.View(func(current []subtitle.Caption) {
		s.active = subtitle.ActiveIndex(current, snap.CurrentTime, s.active)
	})
	ev := Event{Kind: EventTick, Playback: snap, ActiveIndex: s.active, Revision: s.revision}
	s.mu.Unlock()

	s.send(ev)
}

func (s *Session) publish(kind EventKind) {
	snap := s.player.Snapshot()

	s.mu.Lock()
	ev := Event{Kind: kind, Playback: snap, ActiveIndex: s.active, Revision: s.revision}
	s.mu.Unlock()

	s.send(ev)
}

func (s *Session) send(ev Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *Session) commitLocked(next []subtitle.Caption, currentTime float64) {
	s.history.Apply(next)
	s.history.View(func(current []subtitle.Caption) {
		s.active = subtitle.ActiveIndex(current, currentTime, s.active)
	})
	s.markChangedLocked()
}

func (s *Session) markChangedLocked() {
	s.dirty = true
	s.revision++
	s.updatedAt = s.now()
}

func sameShape(a, b []subtitle.Caption) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}

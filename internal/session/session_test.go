package session

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/MimeLyc/caption-sync/internal/audio"
	"github.com/MimeLyc/caption-sync/internal/playback"
	"github.com/MimeLyc/caption-sync/internal/subtitle"
	"github.com/MimeLyc/caption-sync/internal/waveform"
)

var lyrics = []subtitle.Caption{
	{ID: 1, Start: "00:00:02,100", End: "00:00:04,500", Text: "Neon rivers in the night"},
	{ID: 2, Start: "00:00:05,200", End: "00:00:07,800", Text: "Chasing stars till morning light"},
	{ID: 3, Start: "00:00:08,500", End: "00:00:10,000", Text: "In this city, made of glass"},
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// tenSeconds decodes anything into 10s of audio at 100 Hz.
var tenSeconds = audio.DecoderFunc(func(ctx context.Context, data []byte) (*audio.Buffer, error) {
	if string(data) == "corrupt" {
		return nil, audio.ErrDecode
	}
	samples := make([]float32, 1000)
	for i := range samples {
		samples[i] = float32(i%10) / 10
	}
	return &audio.Buffer{SampleRate: 100, Channels: [][]float32{samples}}, nil
})

func newTestSession(t *testing.T, decoder audio.Decoder) (*Session, *playback.Controller, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(0, 0)}
	player := playback.NewController(playback.NewClockDevice(tenSeconds, playback.WithClock(clock.Now)))
	extractor := waveform.NewExtractor(decoder, waveform.WithResolution(100))
	s := New(player, extractor, WithProject("p1", "Demo"))
	t.Cleanup(s.Close)
	return s, player, clock
}

func loadAudio(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.LoadAudio(context.Background(), "song.mp3", []byte("audio")))
	require.Eventually(t, func() bool {
		return s.State().Waveform == waveform.StatusReady
	}, time.Second, 5*time.Millisecond)
}

func TestSession_LoadAudio(t *testing.T) {
	s, _, _ := newTestSession(t, tenSeconds)
	loadAudio(t, s)

	st := s.State()
	assert.Equal(t, playback.StateLoaded, st.Playback.State)
	assert.Equal(t, 10.0, st.Playback.Duration)
	assert.Equal(t, "song.mp3", st.AudioName)

	env, ok := s.Waveform()
	require.True(t, ok)
	assert.Len(t, env.Peaks, 100)
	assert.Equal(t, 10.0, env.Duration)
}

func TestSession_DecodeFailureKeepsPlayback(t *testing.T) {
	failing := audio.DecoderFunc(func(ctx context.Context, data []byte) (*audio.Buffer, error) {
		return nil, errors.New("unsupported container")
	})
	s, _, _ := newTestSession(t, failing)
	s.ImportCaptions(lyrics, language.English)

	require.NoError(t, s.LoadAudio(context.Background(), "song.ogg", []byte("audio")))
	require.Eventually(t, func() bool {
		return s.State().Waveform == waveform.StatusUnavailable
	}, time.Second, 5*time.Millisecond)

	st := s.State()
	assert.NotEmpty(t, st.WaveformError)
	assert.Equal(t, playback.StateLoaded, st.Playback.State)
	require.NoError(t, s.Play())
	assert.Equal(t, lyrics, s.Captions())

	in := s.Render()
	assert.Empty(t, in.Bars)
	assert.Len(t, in.Ranges, 3)
	assert.NotNil(t, in.Playhead)
}

func TestSession_ActiveCaptionFollowsPlayback(t *testing.T) {
	s, player, clock := newTestSession(t, tenSeconds)
	loadAudio(t, s)
	s.ImportCaptions(lyrics, language.English)
	assert.Equal(t, subtitle.NoActive, s.ActiveIndex())

	require.NoError(t, s.Play())
	clock.Advance(3 * time.Second)
	player.Tick()
	assert.Equal(t, 0, s.ActiveIndex())

	clock.Advance(2 * time.Second)
	player.Tick()
	assert.Equal(t, 0, s.ActiveIndex(), "gap keeps the previous caption")

	clock.Advance(time.Second)
	player.Tick()
	assert.Equal(t, 1, s.ActiveIndex())
}

func TestSession_SeekWhilePaused(t *testing.T) {
	s, _, _ := newTestSession(t, tenSeconds)
	loadAudio(t, s)
	s.ImportCaptions(lyrics, language.English)

	require.NoError(t, s.Seek(9))
	st := s.State()
	assert.Equal(t, 9.0, st.Playback.CurrentTime)
	assert.False(t, st.Playback.Playing)
	assert.Equal(t, 2, st.ActiveIndex)
}

func TestSession_EditUndoRedo(t *testing.T) {
	s, _, _ := newTestSession(t, tenSeconds)
	s.ImportCaptions(lyrics, language.English)
	assert.False(t, s.State().CanUndo)

	require.NoError(t, s.EditField(0, FieldText, "Neon rivers"))
	require.NoError(t, s.EditField(1, FieldStart, "00:00:05,000"))
	require.NoError(t, s.EditField(2, FieldEnd, "00:00:09,000"))

	edited := s.Captions()
	assert.Equal(t, "Neon rivers", edited[0].Text)
	assert.Equal(t, "00:00:05,000", edited[1].Start)
	assert.Equal(t, "00:00:09,000", edited[2].End)
	assert.True(t, s.State().CanUndo)

	for range 3 {
		require.True(t, s.Undo())
	}
	assert.Equal(t, lyrics, s.Captions())
	assert.False(t, s.Undo())
	assert.True(t, s.State().CanRedo)

	for range 3 {
		require.True(t, s.Redo())
	}
	assert.Equal(t, edited, s.Captions())
	assert.False(t, s.Redo())
}

func TestSession_EditFieldErrors(t *testing.T) {
	s, _, _ := newTestSession(t, tenSeconds)
	s.ImportCaptions(lyrics, language.English)

	assert.ErrorIs(t, s.EditField(5, FieldText, "x"), ErrCaptionIndex)
	assert.ErrorIs(t, s.EditField(-1, FieldText, "x"), ErrCaptionIndex)
	assert.ErrorIs(t, s.EditField(0, "id", "9"), ErrUnknownField)
	assert.False(t, s.State().CanUndo)
}

func TestSession_ApplyKeepsShape(t *testing.T) {
	s, _, _ := newTestSession(t, tenSeconds)
	s.ImportCaptions(lyrics, language.English)

	assert.ErrorIs(t, s.Apply(lyrics[:2]), ErrCaptionShape)

	reordered := []subtitle.Caption{lyrics[1], lyrics[0], lyrics[2]}
	assert.ErrorIs(t, s.Apply(reordered), ErrCaptionShape)

	next := subtitle.Clone(lyrics)
	next[0].Start = "00:00:06,000"
	next[0].End = "00:00:01,000"
	require.NoError(t, s.Apply(next), "start > end is not rejected")
	assert.Equal(t, next, s.Captions())

	next[2].Text = "mutated after apply"
	assert.NotEqual(t, next, s.Captions())
}

func TestSession_SeekToCaption(t *testing.T) {
	s, _, _ := newTestSession(t, tenSeconds)
	loadAudio(t, s)
	captions := subtitle.Clone(lyrics)
	captions[2].Start = "broken"
	s.ImportCaptions(captions, language.English)

	require.NoError(t, s.SeekToCaption(2))
	st := s.State()
	assert.Equal(t, 5.2, st.Playback.CurrentTime)
	assert.Equal(t, 1, st.ActiveIndex)

	assert.ErrorIs(t, s.SeekToCaption(3), subtitle.ErrInvalidTimestamp)
	assert.Equal(t, 5.2, s.State().Playback.CurrentTime)
	assert.ErrorIs(t, s.SeekToCaption(42), ErrCaptionNotFound)
}

func TestSession_ImportSRT(t *testing.T) {
	s, _, _ := newTestSession(t, tenSeconds)

	file, err := s.ImportSRT([]byte(subtitle.Export(lyrics)), "song.srt")
	require.NoError(t, err)
	assert.Len(t, file.Captions, 3)
	assert.Equal(t, lyrics, s.Captions())
	assert.Equal(t, subtitle.Export(lyrics), s.Export())

	require.NoError(t, s.EditField(0, FieldText, "x"))
	_, err = s.ImportSRT([]byte(subtitle.Export(lyrics[:1])), "other.srt")
	require.NoError(t, err)
	assert.False(t, s.State().CanUndo, "import clears history")
}

func TestSession_RenderUsesCurrentState(t *testing.T) {
	s, _, _ := newTestSession(t, tenSeconds)
	assert.True(t, s.Render().Empty())

	loadAudio(t, s)
	s.ImportCaptions(lyrics, language.English)
	require.NoError(t, s.Seek(5))

	in := s.Render()
	require.Len(t, in.Bars, 100)
	assert.True(t, in.Bars[49].Played)
	assert.False(t, in.Bars[50].Played)
	require.Len(t, in.Ranges, 3)
	assert.InDelta(t, 0.21, in.Ranges[0].Start, 1e-9)
	require.NotNil(t, in.Playhead)
	assert.Equal(t, 0.5, *in.Playhead)
}

func TestSession_DirtyTracking(t *testing.T) {
	s, _, _ := newTestSession(t, tenSeconds)
	assert.False(t, s.Dirty())

	s.ImportCaptions(lyrics, language.Japanese)
	assert.True(t, s.Dirty())

	p, rev := s.Project()
	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, "Demo", p.Name)
	assert.Equal(t, "ja", p.Language)
	assert.Equal(t, lyrics, p.Captions)

	require.NoError(t, s.EditField(0, FieldText, "changed"))
	s.MarkSaved(rev)
	assert.True(t, s.Dirty(), "stale revision does not clear dirty")

	_, rev = s.Project()
	s.MarkSaved(rev)
	assert.False(t, s.Dirty())
}

func TestSession_RestoreAndRestart(t *testing.T) {
	s, _, _ := newTestSession(t, tenSeconds)
	s.Restore(Project{ID: "saved", Name: "Saved", Language: "ko", Captions: lyrics})

	st := s.State()
	assert.Equal(t, "saved", st.ProjectID)
	assert.Equal(t, "ko", st.Language)
	assert.Equal(t, 3, st.CaptionCount)
	assert.False(t, st.Dirty)
	assert.False(t, st.CanUndo)

	s.Restart("")
	st = s.State()
	assert.NotEqual(t, "saved", st.ProjectID)
	assert.Equal(t, "Untitled", st.Name)
	assert.Equal(t, 0, st.CaptionCount)
	assert.Equal(t, subtitle.NoActive, st.ActiveIndex)
}

func TestSession_RestartUnloadsAudio(t *testing.T) {
	s, _, _ := newTestSession(t, tenSeconds)
	loadAudio(t, s)
	s.ImportCaptions(lyrics, language.English)
	require.NoError(t, s.Play())

	s.Restart("Next")

	st := s.State()
	assert.Equal(t, playback.StateIdle, st.Playback.State)
	assert.False(t, st.Playback.Playing)
	assert.Zero(t, st.Playback.Duration)
	assert.Empty(t, st.AudioName)
	assert.Equal(t, waveform.StatusEmpty, st.Waveform)
	assert.ErrorIs(t, s.Play(), playback.ErrNotLoaded)

	in := s.Render()
	assert.Empty(t, in.Bars)
	assert.Nil(t, in.Playhead)

	loadAudio(t, s)
	assert.Equal(t, playback.StateLoaded, s.State().Playback.State)
	assert.Equal(t, 10.0, s.State().Playback.Duration)
}

func TestSession_IgnoresOutOfOrderPlayback(t *testing.T) {
	s, player, _ := newTestSession(t, tenSeconds)
	loadAudio(t, s)
	s.ImportCaptions(lyrics, language.English)

	// a Seek notified before the Tick it raced with
	base := player.Snapshot().Seq
	seek := playback.Snapshot{State: playback.StatePaused, CurrentTime: 3, Duration: 10, Seq: base + 2}
	tick := playback.Snapshot{State: playback.StatePlaying, CurrentTime: 9, Duration: 10, Seq: base + 1}
	s.onPlayback(seek)
	s.onPlayback(tick)

	assert.Equal(t, 0, s.ActiveIndex())
}

func TestSession_Subscribe(t *testing.T) {
	s, player, clock := newTestSession(t, tenSeconds)
	events, unsubscribe := s.Subscribe(64)

	loadAudio(t, s)
	s.ImportCaptions(lyrics, language.English)
	require.NoError(t, s.Play())
	clock.Advance(3 * time.Second)
	player.Tick()

	kinds := map[EventKind]bool{}
	var last Event
	require.Eventually(t, func() bool {
		for {
			select {
			case ev := <-events:
				kinds[ev.Kind] = true
				last = ev
			default:
				return kinds[EventTick] && kinds[EventAudio] && kinds[EventCaptions] && kinds[EventWaveform] && last.ActiveIndex == 0
			}
		}
	}, time.Second, 5*time.Millisecond)

	unsubscribe()
	require.Eventually(t, func() bool {
		select {
		case _, open := <-events:
			return !open
		default:
			return false
		}
	}, time.Second, time.Millisecond)
	unsubscribe()
}

func TestSession_CloseClosesSubscribers(t *testing.T) {
	s, _, _ := newTestSession(t, tenSeconds)
	events, _ := s.Subscribe(1)
	s.Close()

	_, open := <-events
	assert.False(t, open)

	late, _ := s.Subscribe(1)
	_, open = <-late
	assert.False(t, open)
}

func TestSession_StaleWaveformDiscarded(t *testing.T) {
	release := make(chan struct{})
	slow := audio.DecoderFunc(func(ctx context.Context, data []byte) (*audio.Buffer, error) {
		if string(data) == "first" {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return &audio.Buffer{SampleRate: 10, Channels: [][]float32{make([]float32, 10)}}, nil
		}
		return tenSeconds(ctx, data)
	})
	s, _, _ := newTestSession(t, slow)

	require.NoError(t, s.LoadAudio(context.Background(), "first.mp3", []byte("first")))
	require.NoError(t, s.LoadAudio(context.Background(), "second.mp3", []byte("second")))
	close(release)

	require.Eventually(t, func() bool {
		env, ok := s.Waveform()
		return ok && env.Duration == 10
	}, time.Second, 5*time.Millisecond)
}

func TestSession_LatestLoadWinsRegardlessOfScheduling(t *testing.T) {
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(1))

	release := make(chan struct{})
	finished := make(chan struct{})
	dec := audio.DecoderFunc(func(ctx context.Context, data []byte) (*audio.Buffer, error) {
		if string(data) != "first" {
			return tenSeconds(ctx, data)
		}
		// ignore ctx so the outdated result still reaches the extractor
		<-release
		defer close(finished)
		return &audio.Buffer{SampleRate: 10, Channels: [][]float32{make([]float32, 10)}}, nil
	})
	s, _, _ := newTestSession(t, dec)

	require.NoError(t, s.LoadAudio(context.Background(), "first.mp3", []byte("first")))
	require.NoError(t, s.LoadAudio(context.Background(), "second.mp3", []byte("second")))
	require.Eventually(t, func() bool {
		env, ok := s.Waveform()
		return ok && env.Duration == 10
	}, time.Second, 5*time.Millisecond)

	close(release)
	<-finished
	s.Close()

	env, ok := s.Waveform()
	require.True(t, ok)
	assert.Equal(t, 10.0, env.Duration)
	assert.Equal(t, "second.mp3", s.State().AudioName)
}

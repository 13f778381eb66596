package autosave

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/caption-sync/internal/session"
)

type fakeSource struct {
	mu       sync.Mutex
	dirty    bool
	revision uint64
	saved    []uint64
}

func (f *fakeSource) Dirty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirty
}

func (f *fakeSource) Project() (session.Project, uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return session.Project{ID: "p1", Name: "Song"}, f.revision
}

func (f *fakeSource) MarkSaved(revision uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, revision)
	if revision == f.revision {
		f.dirty = false
	}
}

func (f *fakeSource) edit() {
	f.mu.Lock()
	f.dirty = true
	f.revision++
	f.mu.Unlock()
}

type fakeSaver struct {
	calls   atomic.Int32
	err     error
	release chan struct{}
}

func (f *fakeSaver) SaveProject(ctx context.Context, p session.Project) error {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	return f.err
}

func TestSaveNow(t *testing.T) {
	source := &fakeSource{}
	saver := &fakeSaver{}
	s, err := New("@every 1h", source, saver)
	require.NoError(t, err)

	saved, err := s.SaveNow(context.Background())
	require.NoError(t, err)
	assert.False(t, saved, "clean project is not saved")
	assert.Equal(t, int32(0), saver.calls.Load())

	source.edit()
	saved, err = s.SaveNow(context.Background())
	require.NoError(t, err)
	assert.True(t, saved)
	assert.False(t, source.Dirty())
	assert.Equal(t, []uint64{1}, source.saved)
}

func TestSaveNow_ErrorKeepsDirty(t *testing.T) {
	source := &fakeSource{}
	source.edit()
	saver := &fakeSaver{err: assert.AnError}
	s, err := New("@every 1h", source, saver)
	require.NoError(t, err)

	saved, err := s.SaveNow(context.Background())
	require.ErrorIs(t, err, assert.AnError)
	assert.False(t, saved)
	assert.True(t, source.Dirty())
}

func TestSaveNow_CollapsesConcurrentCalls(t *testing.T) {
	source := &fakeSource{}
	source.edit()
	saver := &fakeSaver{release: make(chan struct{})}
	s, err := New("@every 1h", source, saver)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.SaveNow(context.Background())
		}()
	}
	require.Eventually(t, func() bool { return saver.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(saver.release)
	wg.Wait()

	assert.LessOrEqual(t, saver.calls.Load(), int32(2))
	assert.False(t, source.Dirty())
}

func TestScheduler_RunsOnSchedule(t *testing.T) {
	source := &fakeSource{}
	source.edit()
	saver := &fakeSaver{}
	s, err := New("@every 1s", source, saver)
	require.NoError(t, err)

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool { return !source.Dirty() }, 3*time.Second, 20*time.Millisecond)
	assert.GreaterOrEqual(t, saver.calls.Load(), int32(1))
}

func TestNew_InvalidExpression(t *testing.T) {
	_, err := New("sometimes", &fakeSource{}, &fakeSaver{})
	require.Error(t, err)
}

func TestNext(t *testing.T) {
	s, err := New("*/10 * * * *", &fakeSource{}, &fakeSaver{})
	require.NoError(t, err)

	ref := time.Date(2024, 5, 1, 12, 3, 0, 0, time.UTC)
	info, err := s.Next(ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 10, 0, 0, time.UTC), info.Next)
}

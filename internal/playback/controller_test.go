package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/caption-sync/internal/audio"
)

type fakeDevice struct {
	mu       sync.Mutex
	duration float64
	pos      float64
	playing  bool
	volume   float64
	rate     float64
	loadErr  error
	playErr  error
	seeks    []float64
	closed   bool
}

func (d *fakeDevice) Load(ctx context.Context, data []byte) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loadErr != nil {
		return 0, d.loadErr
	}
	d.pos = 0
	return d.duration, nil
}

func (d *fakeDevice) Play() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.playErr != nil {
		return d.playErr
	}
	d.playing = true
	return nil
}

func (d *fakeDevice) Pause() error {
	d.mu.Lock()
	d.playing = false
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) Seek(seconds float64) error {
	d.mu.Lock()
	d.pos = seconds
	d.seeks = append(d.seeks, seconds)
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) SetVolume(v float64) error {
	d.mu.Lock()
	d.volume = v
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) SetRate(r float64) error {
	d.mu.Lock()
	d.rate = r
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) Position() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pos
}

func (d *fakeDevice) Close() error {
	d.closed = true
	return nil
}

func (d *fakeDevice) advance(to float64) {
	d.mu.Lock()
	d.pos = to
	d.mu.Unlock()
}

func loadedController(t *testing.T, duration float64) (*Controller, *fakeDevice) {
	t.Helper()
	dev := &fakeDevice{duration: duration}
	c := NewController(dev)
	require.NoError(t, c.Load(context.Background(), []byte("audio")))
	return c, dev
}

func TestController_InitialState(t *testing.T) {
	c := NewController(&fakeDevice{})
	snap := c.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, 1.0, snap.Volume)
	assert.Equal(t, 1.0, snap.Rate)
	assert.False(t, snap.Playing)

	assert.ErrorIs(t, c.Play(), ErrNotLoaded)
	assert.ErrorIs(t, c.Seek(1), ErrNotLoaded)
	assert.NoError(t, c.Pause())
}

func TestController_LoadPlayPause(t *testing.T) {
	c, dev := loadedController(t, 10)
	snap := c.Snapshot()
	assert.Equal(t, StateLoaded, snap.State)
	assert.Equal(t, 10.0, snap.Duration)
	assert.Equal(t, 0.0, snap.CurrentTime)

	require.NoError(t, c.Play())
	assert.True(t, c.Snapshot().Playing)
	assert.Equal(t, StatePlaying, c.Snapshot().State)

	dev.advance(2.5)
	snap = c.Tick()
	assert.Equal(t, 2.5, snap.CurrentTime)

	require.NoError(t, c.Pause())
	snap = c.Snapshot()
	assert.Equal(t, StatePaused, snap.State)
	assert.False(t, snap.Playing)
	assert.Equal(t, 2.5, snap.CurrentTime)
}

func TestController_SeekClamps(t *testing.T) {
	c, dev := loadedController(t, 10)

	require.NoError(t, c.Seek(4))
	assert.Equal(t, 4.0, c.Snapshot().CurrentTime)

	require.NoError(t, c.Seek(-3))
	assert.Equal(t, 0.0, c.Snapshot().CurrentTime)

	require.NoError(t, c.Seek(99))
	assert.Equal(t, 10.0, c.Snapshot().CurrentTime)
	assert.Equal(t, []float64{4, 0, 10}, dev.seeks)

	assert.ErrorIs(t, c.Seek(nan()), ErrInvalidValue)
}

func TestController_SeekKeepsPlayingFlag(t *testing.T) {
	c, _ := loadedController(t, 10)
	require.NoError(t, c.Play())
	require.NoError(t, c.Seek(3))
	assert.True(t, c.Snapshot().Playing)
}

func TestController_EndAndReplay(t *testing.T) {
	c, dev := loadedController(t, 5)
	require.NoError(t, c.Play())

	dev.advance(5.2)
	snap := c.Tick()
	assert.Equal(t, StateEnded, snap.State)
	assert.False(t, snap.Playing)
	assert.Equal(t, 5.0, snap.CurrentTime)

	require.NoError(t, c.Play())
	snap = c.Snapshot()
	assert.Equal(t, StatePlaying, snap.State)
	assert.Equal(t, 0.0, snap.CurrentTime)
	assert.Equal(t, 0.0, dev.Position())
}

func TestController_SeekFromEndedPauses(t *testing.T) {
	c, dev := loadedController(t, 5)
	require.NoError(t, c.Play())
	dev.advance(5)
	c.Tick()

	require.NoError(t, c.Seek(2))
	snap := c.Snapshot()
	assert.Equal(t, StatePaused, snap.State)
	assert.Equal(t, 2.0, snap.CurrentTime)
}

func TestController_VolumeAndRate(t *testing.T) {
	c, dev := loadedController(t, 5)

	require.NoError(t, c.SetVolume(0.4))
	assert.Equal(t, 0.4, c.Snapshot().Volume)
	assert.Equal(t, 0.4, dev.volume)

	require.NoError(t, c.SetVolume(3))
	assert.Equal(t, 1.0, c.Snapshot().Volume)
	require.NoError(t, c.SetVolume(-1))
	assert.Equal(t, 0.0, c.Snapshot().Volume)
	assert.ErrorIs(t, c.SetVolume(nan()), ErrInvalidValue)

	require.NoError(t, c.SetRate(1.5))
	assert.Equal(t, 1.5, c.Snapshot().Rate)
	assert.Equal(t, 1.5, dev.rate)

	require.NoError(t, c.SetRate(10))
	assert.Equal(t, MaxRate, c.Snapshot().Rate)
	require.NoError(t, c.SetRate(0.1))
	assert.Equal(t, MinRate, c.Snapshot().Rate)
	assert.ErrorIs(t, c.SetRate(0), ErrInvalidValue)
	assert.ErrorIs(t, c.SetRate(-2), ErrInvalidValue)
}

func TestController_SettingsSurviveReload(t *testing.T) {
	dev := &fakeDevice{duration: 3}
	c := NewController(dev)
	require.NoError(t, c.SetVolume(0.5))
	require.NoError(t, c.SetRate(2))

	require.NoError(t, c.Load(context.Background(), []byte("x")))
	assert.Equal(t, 0.5, dev.volume)
	assert.Equal(t, 2.0, dev.rate)
}

func TestController_LoadFailureDisablesPlayback(t *testing.T) {
	dev := &fakeDevice{loadErr: errors.New("unsupported codec")}
	c := NewController(dev)

	err := c.Load(context.Background(), []byte("x"))
	require.ErrorIs(t, err, ErrPlayback)
	assert.Equal(t, StateIdle, c.Snapshot().State)
	assert.NotEmpty(t, c.Snapshot().Error)
	assert.ErrorIs(t, c.Play(), ErrPlayback)

	dev.loadErr = nil
	dev.duration = 4
	require.NoError(t, c.Load(context.Background(), []byte("y")))
	assert.Empty(t, c.Snapshot().Error)
	assert.NoError(t, c.Play())
}

func TestController_PlayFailure(t *testing.T) {
	c, dev := loadedController(t, 5)
	dev.playErr = errors.New("autoplay blocked")

	require.ErrorIs(t, c.Play(), ErrPlayback)
	snap := c.Snapshot()
	assert.False(t, snap.Playing)
	assert.Contains(t, snap.Error, "autoplay blocked")
}

func TestController_Subscribe(t *testing.T) {
	c, dev := loadedController(t, 5)

	var mu sync.Mutex
	var got []float64
	unsubscribe := c.Subscribe(func(s Snapshot) {
		mu.Lock()
		got = append(got, s.CurrentTime)
		mu.Unlock()
	})

	require.NoError(t, c.Play())
	dev.advance(1)
	c.Tick()
	c.Tick()
	dev.advance(2)
	c.Tick()

	unsubscribe()
	dev.advance(3)
	c.Tick()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []float64{0, 1, 2}, got)
}

func TestController_ListenerMayCallBack(t *testing.T) {
	c, dev := loadedController(t, 5)
	done := make(chan Snapshot, 4)
	c.Subscribe(func(Snapshot) {
		done <- c.Snapshot()
	})

	require.NoError(t, c.Play())
	dev.advance(1)
	c.Tick()

	require.Eventually(t, func() bool { return len(done) == 2 }, time.Second, 10*time.Millisecond)
}

func TestController_Run(t *testing.T) {
	c, dev := loadedController(t, 5)
	require.NoError(t, c.Play())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx, 5*time.Millisecond)

	dev.advance(5)
	require.Eventually(t, func() bool {
		return c.Snapshot().State == StateEnded
	}, time.Second, 10*time.Millisecond)
}

func TestController_Close(t *testing.T) {
	c, dev := loadedController(t, 5)
	require.NoError(t, c.Close())
	assert.True(t, dev.closed)
}

func TestController_Unload(t *testing.T) {
	c, dev := loadedController(t, 5)
	require.NoError(t, c.SetVolume(0.3))
	require.NoError(t, c.Play())

	require.NoError(t, c.Unload())
	snap := c.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.False(t, snap.Playing)
	assert.Zero(t, snap.Duration)
	assert.Equal(t, 0.3, snap.Volume)
	assert.True(t, dev.closed)
	assert.ErrorIs(t, c.Play(), ErrNotLoaded)

	require.NoError(t, c.Load(context.Background(), []byte("audio")))
	assert.Equal(t, StateLoaded, c.Snapshot().State)
}

func TestController_SeqOrdersNotifications(t *testing.T) {
	c, dev := loadedController(t, 5)

	var mu sync.Mutex
	var seqs []uint64
	c.Subscribe(func(s Snapshot) {
		mu.Lock()
		seqs = append(seqs, s.Seq)
		mu.Unlock()
	})

	require.NoError(t, c.Play())
	dev.advance(1)
	c.Tick()
	c.Tick()
	require.NoError(t, c.Seek(3))
	require.NoError(t, c.SetRate(1.5))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seqs, 4, "unchanged ticks are not notified")
	for i := 1; i < len(seqs); i++ {
		assert.Greater(t, seqs[i], seqs[i-1])
	}
	assert.Equal(t, seqs[len(seqs)-1], c.Snapshot().Seq)
}

func TestClockDevice(t *testing.T) {
	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }
	decoder := audio.DecoderFunc(func(ctx context.Context, data []byte) (*audio.Buffer, error) {
		return &audio.Buffer{SampleRate: 10, Channels: [][]float32{make([]float32, 100)}}, nil
	})

	d := NewClockDevice(decoder, WithClock(clock))
	require.Error(t, d.Play())

	duration, err := d.Load(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 10.0, duration)

	require.NoError(t, d.Play())
	now = now.Add(2 * time.Second)
	assert.InDelta(t, 2.0, d.Position(), 1e-9)

	require.NoError(t, d.SetRate(2))
	now = now.Add(time.Second)
	assert.InDelta(t, 4.0, d.Position(), 1e-9)

	require.NoError(t, d.Pause())
	now = now.Add(time.Second)
	assert.InDelta(t, 4.0, d.Position(), 1e-9)

	require.NoError(t, d.Seek(9))
	require.NoError(t, d.Play())
	now = now.Add(5 * time.Second)
	assert.Equal(t, 10.0, d.Position())
}

func TestController_WithClockDevice(t *testing.T) {
	now := time.Unix(0, 0)
	decoder := audio.DecoderFunc(func(ctx context.Context, data []byte) (*audio.Buffer, error) {
		return &audio.Buffer{SampleRate: 100, Channels: [][]float32{make([]float32, 300)}}, nil
	})
	c := NewController(NewClockDevice(decoder, WithClock(func() time.Time { return now })))
	require.NoError(t, c.Load(context.Background(), nil))
	require.NoError(t, c.Play())

	now = now.Add(1500 * time.Millisecond)
	assert.InDelta(t, 1.5, c.Tick().CurrentTime, 1e-9)

	now = now.Add(2 * time.Second)
	snap := c.Tick()
	assert.Equal(t, StateEnded, snap.State)
	assert.Equal(t, 3.0, snap.CurrentTime)
}

package playback

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/MimeLyc/caption-sync/pkg/log"
)

// Listener receives a snapshot every time the playback clock advances or
// the transport state changes. Listeners must tolerate irregular spacing
// and repeated values.
type Listener func(Snapshot)

// Controller is the single owner of the playback state. Other components
// only read snapshots of it.
type Controller struct {
	device Device
	logger *log.Logger

	loadMu sync.Mutex

	mu        sync.Mutex
	snap      Snapshot
	failure   error
	listeners map[int]Listener
	nextID    int
}

type Option func(*Controller)

func WithLogger(l *log.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewController creates an idle controller driving device.
func NewController(device Device, opts ...Option) *Controller {
	c := &Controller{
		device: device,
		logger: log.GetLogger(),
		snap: Snapshot{
			State:  StateIdle,
			Volume: 1,
			Rate:   1,
		},
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load replaces the current resource. The controller is Idle while the
// device resolves metadata and Loaded afterwards, positioned at 0. A
// failed load leaves the controller Idle with playback disabled.
func (c *Controller) Load(ctx context.Context, data []byte) error {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	c.mu.Lock()
	if c.snap.Playing {
		if err := c.device.Pause(); err != nil {
			c.logger.Warn("Pause before reload failed: %v", err)
		}
	}
	c.snap = Snapshot{State: StateIdle, Volume: c.snap.Volume, Rate: c.snap.Rate, Seq: c.snap.Seq}
	c.failure = nil
	idle := c.stampLocked()
	c.mu.Unlock()
	c.emit(idle)

	duration, err := c.device.Load(ctx, data)

	c.mu.Lock()
	if err != nil {
		c.failure = fmt.Errorf("%w: load: %v", ErrPlayback, err)
		c.snap.Error = c.failure.Error()
		snap := c.stampLocked()
		failure := c.failure
		c.mu.Unlock()
		c.logger.Error("Audio load failed: %v", err)
		c.emit(snap)
		return failure
	}
	if math.IsNaN(duration) || duration < 0 {
		duration = 0
	}
	c.snap.State = StateLoaded
	c.snap.Duration = duration
	c.snap.CurrentTime = 0
	if err := c.device.SetVolume(c.snap.Volume); err != nil {
		c.logger.Warn("Apply volume failed: %v", err)
	}
	if err := c.device.SetRate(c.snap.Rate); err != nil {
		c.logger.Warn("Apply rate failed: %v", err)
	}
	snap := c.stampLocked()
	c.mu.Unlock()

	c.logger.Info("Audio loaded, duration %.3fs", duration)
	c.emit(snap)
	return nil
}

// Unload releases the current resource and returns the controller to Idle.
// Volume and rate are kept for the next load.
func (c *Controller) Unload() error {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	c.mu.Lock()
	err := c.device.Close()
	c.snap = Snapshot{State: StateIdle, Volume: c.snap.Volume, Rate: c.snap.Rate, Seq: c.snap.Seq}
	c.failure = nil
	snap := c.stampLocked()
	c.mu.Unlock()

	c.emit(snap)
	if err != nil {
		return fmt.Errorf("%w: unload: %v", ErrPlayback, err)
	}
	return nil
}

// Play starts or resumes playback. From Ended it restarts at 0.
func (c *Controller) Play() error {
	c.mu.Lock()
	switch c.snap.State {
	case StateIdle:
		err := c.failure
		c.mu.Unlock()
		if err != nil {
			return err
		}
		return ErrNotLoaded
	case StatePlaying:
		c.mu.Unlock()
		return nil
	}
	if c.failure != nil {
		err := c.failure
		c.mu.Unlock()
		return err
	}

	if c.snap.State == StateEnded {
		if err := c.device.Seek(0); err != nil {
			return c.failLocked(err)
		}
		c.snap.CurrentTime = 0
	}
	if err := c.device.Play(); err != nil {
		return c.failLocked(err)
	}
	c.snap.State = StatePlaying
	c.snap.Playing = true
	snap := c.stampLocked()
	c.mu.Unlock()

	c.emit(snap)
	return nil
}

// Pause stops the clock. It is a no-op unless playing.
func (c *Controller) Pause() error {
	c.mu.Lock()
	if c.snap.State != StatePlaying {
		c.mu.Unlock()
		return nil
	}
	err := c.device.Pause()
	c.snap.State = StatePaused
	c.snap.Playing = false
	c.snap.CurrentTime = c.clampLocked(c.device.Position())
	snap := c.stampLocked()
	c.mu.Unlock()

	c.emit(snap)
	if err != nil {
		return fmt.Errorf("%w: pause: %v", ErrPlayback, err)
	}
	return nil
}

// Seek moves the playhead to t, clamped to [0, duration]. The playing flag
// is left alone; seeking after the end leaves the controller paused at t.
func (c *Controller) Seek(t float64) error {
	if math.IsNaN(t) {
		return fmt.Errorf("%w: seek to NaN", ErrInvalidValue)
	}

	c.mu.Lock()
	if c.snap.State == StateIdle {
		c.mu.Unlock()
		return ErrNotLoaded
	}
	t = c.clampLocked(t)
	if err := c.device.Seek(t); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: seek: %v", ErrPlayback, err)
	}
	c.snap.CurrentTime = t
	if c.snap.State == StateEnded {
		c.snap.State = StatePaused
	}
	snap := c.stampLocked()
	c.mu.Unlock()

	c.emit(snap)
	return nil
}

// SetVolume clamps v into [0, 1] and applies it to the loaded resource.
func (c *Controller) SetVolume(v float64) error {
	if math.IsNaN(v) {
		return fmt.Errorf("%w: volume is NaN", ErrInvalidValue)
	}
	v = math.Max(0, math.Min(1, v))

	c.mu.Lock()
	if c.snap.State != StateIdle {
		if err := c.device.SetVolume(v); err != nil {
			c.mu.Unlock()
			return fmt.Errorf("%w: volume: %v", ErrPlayback, err)
		}
	}
	c.snap.Volume = v
	snap := c.stampLocked()
	c.mu.Unlock()

	c.emit(snap)
	return nil
}

// SetRate clamps r into [MinRate, MaxRate] and applies it to the loaded
// resource. Non-positive rates are rejected.
func (c *Controller) SetRate(r float64) error {
	if math.IsNaN(r) || r <= 0 {
		return fmt.Errorf("%w: rate %v", ErrInvalidValue, r)
	}
	r = math.Max(MinRate, math.Min(MaxRate, r))

	c.mu.Lock()
	if c.snap.State != StateIdle {
		if err := c.device.SetRate(r); err != nil {
			c.mu.Unlock()
			return fmt.Errorf("%w: rate: %v", ErrPlayback, err)
		}
	}
	c.snap.Rate = r
	snap := c.stampLocked()
	c.mu.Unlock()

	c.emit(snap)
	return nil
}

// Tick polls the device clock. While playing it updates CurrentTime,
// switches to Ended once the duration is reached and notifies listeners
// when anything changed.
func (c *Controller) Tick() Snapshot {
	c.mu.Lock()
	if c.snap.State != StatePlaying {
		snap := c.snap
		c.mu.Unlock()
		return snap
	}

	pos := c.clampLocked(c.device.Position())
	changed := pos != c.snap.CurrentTime
	c.snap.CurrentTime = pos
	if c.snap.Duration > 0 && pos >= c.snap.Duration {
		if err := c.device.Pause(); err != nil {
			c.logger.Warn("Pause at end failed: %v", err)
		}
		c.snap.State = StateEnded
		c.snap.Playing = false
		changed = true
	}
	snap := c.snap
	if changed {
		snap = c.stampLocked()
	}
	c.mu.Unlock()

	if changed {
		c.emit(snap)
	}
	return snap
}

// Run polls the device every interval until ctx is done.
func (c *Controller) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick()
		}
	}
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Subscribe registers fn for notifications and returns a function that
// removes it.
func (c *Controller) Subscribe(fn Listener) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Close releases the device.
func (c *Controller) Close() error {
	return c.device.Close()
}

func (c *Controller) failLocked(err error) error {
	c.failure = fmt.Errorf("%w: %v", ErrPlayback, err)
	c.snap.Error = c.failure.Error()
	c.snap.Playing = false
	if c.snap.State == StatePlaying {
		c.snap.State = StatePaused
	}
	snap := c.stampLocked()
	failure := c.failure
	c.mu.Unlock()

	c.logger.Error("Playback failed: %v", err)
	c.emit(snap)
	return failure
}

// stampLocked gives c.snap the next sequence number and returns it for
// emitting.
func (c *Controller) stampLocked() Snapshot {
	c.snap.Seq++
	return c.snap
}

func (c *Controller) clampLocked(t float64) float64 {
	if math.IsNaN(t) || t < 0 {
		return 0
	}
	if t > c.snap.Duration {
		return c.snap.Duration
	}
	return t
}

func (c *Controller) emit(snap Snapshot) {
	c.mu.Lock()
	listeners := make([]Listener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}
